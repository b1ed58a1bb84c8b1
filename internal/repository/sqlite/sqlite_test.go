package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/vind/internal/model"
)

// newTestDB creates an in-memory SQLite database for testing.
// Each test gets its own fresh database, closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestUser inserts a user named username and fails the test on error.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:    username,
		Email:       username + "@example.com",
		DisplayName: username,
		Followers:   model.NewRelationSet(),
		Following:   model.NewRelationSet(),
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user %s: %v", username, err)
	}
	return u
}

// createTestVideo inserts a video owned by username, created at base+offset.
func createTestVideo(t *testing.T, db *DB, username, description string, createdAt time.Time) *model.Video {
	t.Helper()
	v := &model.Video{
		Username:    username,
		Description: description,
		PlaybackID:  fmt.Sprintf("pb-%d", createdAt.UnixNano()),
		CreatedAt:   createdAt,
	}
	if err := db.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("failed to create test video: %v", err)
	}
	return v
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
