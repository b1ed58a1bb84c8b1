package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

func newSeedService(s *testServices) *SeedService {
	return NewSeedService(s.auth, s.store, s.store, s.relations, testLogger())
}

func TestSeed_CreatesDemoData(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	report, err := newSeedService(s).Seed(ctx, "password123")
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if report.Users != len(demoUsers) || report.Videos != len(demoVideos) || report.Follows != 7 {
		t.Errorf("Seed() = %+v", report)
	}

	if _, err := s.auth.Login(ctx, "creative_user@example.com", "password123"); err != nil {
		t.Errorf("seeded user cannot log in: %v", err)
	}

	view, err := s.profile.ViewProfile(ctx, "creative_user", "", model.TabVideos)
	if err != nil {
		t.Fatalf("ViewProfile() error = %v", err)
	}
	if !view.Profile.Verified || view.Profile.Bio == "" {
		t.Errorf("seeded profile lost its details: %+v", view.Profile)
	}
	stats := view.Profile.Stats
	if stats.Videos != 3 || stats.Followers != 3 || stats.Following != 2 || stats.Likes != 1234+892+2341 {
		t.Errorf("creative_user stats = %+v", stats)
	}
}

func TestSeed_SecondRunIsNoop(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed := newSeedService(s)

	if _, err := seed.Seed(ctx, "password123"); err != nil {
		t.Fatal(err)
	}
	report, err := seed.Seed(ctx, "password123")
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if *report != (SeedReport{}) {
		t.Errorf("second Seed() = %+v, want nothing created", report)
	}
}

func TestSeed_ShortPassword(t *testing.T) {
	s := newTestServices(t)

	_, err := newSeedService(s).Seed(context.Background(), "abc")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Seed(short password) error = %v, want ErrValidation", err)
	}
}
