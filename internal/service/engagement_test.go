package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

func TestToggleLike_TwiceRestoresState(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	first, err := s.engagement.ToggleLike(ctx, "v1", "bob")
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if !first.IsLiked || first.Likes != 1 {
		t.Errorf("first ToggleLike() = %+v, want liked with 1 like", first)
	}

	second, err := s.engagement.ToggleLike(ctx, "v1", "bob")
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if second.IsLiked || second.Likes != 0 {
		t.Errorf("second ToggleLike() = %+v, want unliked with 0 likes", second)
	}

	liked, err := s.engagement.ListLiked(ctx, "bob")
	if err != nil {
		t.Fatalf("ListLiked() error = %v", err)
	}
	if len(liked) != 0 {
		t.Errorf("ListLiked() = %d videos, want 0", len(liked))
	}
}

func TestToggleLike_CountsDistinctUsers(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	for _, u := range []string{"bob", "carol", "dave"} {
		if _, err := s.engagement.ToggleLike(ctx, "v1", u); err != nil {
			t.Fatalf("ToggleLike(%s) error = %v", u, err)
		}
	}
	state, err := s.engagement.ToggleLike(ctx, "v1", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if state.Likes != 2 {
		t.Errorf("likes = %d, want 2", state.Likes)
	}
}

func TestToggleLike_UnknownVideo(t *testing.T) {
	s := newTestServices(t)

	_, err := s.engagement.ToggleLike(context.Background(), "missing", "bob")
	if !errors.Is(err, apperror.ErrNotFound) || err.Error() != "Video not found" {
		t.Errorf("ToggleLike(missing) error = %v", err)
	}
	if _, err := s.engagement.ToggleLike(context.Background(), "missing", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ToggleLike(no user) error = %v, want ErrValidation", err)
	}
}

func TestToggleSave(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	state, err := s.engagement.ToggleSave(ctx, "v1", "bob")
	if err != nil {
		t.Fatalf("ToggleSave() error = %v", err)
	}
	if !state.IsSaved {
		t.Error("first ToggleSave() should save")
	}
	state, err = s.engagement.ToggleSave(ctx, "v1", "bob")
	if err != nil {
		t.Fatalf("ToggleSave() error = %v", err)
	}
	if state.IsSaved {
		t.Error("second ToggleSave() should unsave")
	}

	v, _ := s.store.GetVideo(ctx, "v1")
	if v.Likes != 0 {
		t.Errorf("saving changed likes to %d", v.Likes)
	}
}

func TestSetSaved_Idempotent(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	for range 2 {
		if _, err := s.engagement.SetSaved(ctx, "v1", "bob", true); err != nil {
			t.Fatalf("SetSaved(true) error = %v", err)
		}
	}
	saved, err := s.engagement.ListSaved(ctx, "bob")
	if err != nil {
		t.Fatalf("ListSaved() error = %v", err)
	}
	if len(saved) != 1 || !saved[0].IsSaved {
		t.Fatalf("ListSaved() = %+v, want one saved item", saved)
	}

	for range 2 {
		if _, err := s.engagement.SetSaved(ctx, "v1", "bob", false); err != nil {
			t.Fatalf("SetSaved(false) error = %v", err)
		}
	}
	saved, _ = s.engagement.ListSaved(ctx, "bob")
	if len(saved) != 0 {
		t.Errorf("ListSaved() after unsave = %d items, want 0", len(saved))
	}

	if _, err := s.engagement.SetSaved(ctx, "missing", "bob", true); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetSaved(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSetSaved_UnsaveUnknownVideo(t *testing.T) {
	s := newTestServices(t)

	state, err := s.engagement.SetSaved(context.Background(), "gone", "bob", false)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("SetSaved(gone, false) = %+v, %v, want ErrNotFound", state, err)
	}
	if err.Error() != "Video not found" {
		t.Errorf("SetSaved(gone, false) message = %q, want %q", err.Error(), "Video not found")
	}
}

func TestListLiked_NewestFirstSkipsMissing(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)
	s.mustVideo(t, "v2", "alice", base.Add(time.Hour))

	if _, err := s.engagement.ToggleLike(ctx, "v1", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.engagement.ToggleLike(ctx, "v2", "bob"); err != nil {
		t.Fatal(err)
	}
	// an event row whose video was deleted
	s.store.events[model.EngagementLike] = append(s.store.events[model.EngagementLike],
		model.Engagement{Kind: model.EngagementLike, Username: "bob", VideoID: "gone"})

	liked, err := s.engagement.ListLiked(ctx, "bob")
	if err != nil {
		t.Fatalf("ListLiked() error = %v", err)
	}
	if len(liked) != 2 {
		t.Fatalf("ListLiked() = %d videos, want 2", len(liked))
	}
	if liked[0].ID != "v2" || liked[1].ID != "v1" {
		t.Errorf("ListLiked() order = [%s %s], want [v2 v1]", liked[0].ID, liked[1].ID)
	}
}

func TestAnnotate(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	v1 := s.mustVideo(t, "v1", "alice", base)
	v2 := s.mustVideo(t, "v2", "alice", base)
	if _, err := s.engagement.ToggleLike(ctx, "v1", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.engagement.SetSaved(ctx, "v2", "bob", true); err != nil {
		t.Fatal(err)
	}

	items, err := s.engagement.Annotate(ctx, "bob", []model.Video{*v1, *v2})
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if !items[0].IsLiked || items[0].IsSaved || items[1].IsLiked || !items[1].IsSaved {
		t.Errorf("Annotate(bob) = %+v", items)
	}

	anon, err := s.engagement.Annotate(ctx, "", []model.Video{*v1, *v2})
	if err != nil {
		t.Fatalf("Annotate(anonymous) error = %v", err)
	}
	for _, it := range anon {
		if it.IsLiked || it.IsSaved {
			t.Errorf("anonymous item %s has flags set", it.ID)
		}
	}
}

func TestAddComment_IncrementsCount(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	c, err := s.engagement.AddComment(ctx, "v1", "bob", "nice!")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if c.ID == "" || c.Text != "nice!" || c.Username != "bob" || c.Timestamp != "now" {
		t.Errorf("AddComment() = %+v", c)
	}

	v, _ := s.store.GetVideo(ctx, "v1")
	if v.Comments != 1 {
		t.Errorf("comments = %d, want 1", v.Comments)
	}
	comments, err := s.engagement.ListComments(ctx, "v1")
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "nice!" {
		t.Errorf("ListComments() = %+v", comments)
	}
}

func TestAddComment_Validation(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	tests := []struct {
		name     string
		id       model.VideoID
		username string
		text     string
		want     error
	}{
		{"blank text", "v1", "bob", "   ", apperror.ErrValidation},
		{"no username", "v1", "", "hi", apperror.ErrValidation},
		{"too long", "v1", "bob", strings.Repeat("é", MaxCommentLength+1), apperror.ErrValidation},
		{"unknown video", "missing", "bob", "hi", apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.engagement.AddComment(ctx, tt.id, tt.username, tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddComment() error = %v, want %v", err, tt.want)
			}
		})
	}

	v, _ := s.store.GetVideo(ctx, "v1")
	if v.Comments != 0 {
		t.Errorf("rejected comments changed the counter to %d", v.Comments)
	}
}

func TestListComments_RelativeTimestamps(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)

	now := base.Add(48 * time.Hour)
	s.engagement.now = func() time.Time { return base }
	if _, err := s.engagement.AddComment(ctx, "v1", "bob", "first"); err != nil {
		t.Fatal(err)
	}
	s.engagement.now = func() time.Time { return now.Add(-5 * time.Minute) }
	if _, err := s.engagement.AddComment(ctx, "v1", "carol", "second"); err != nil {
		t.Fatal(err)
	}
	s.engagement.now = func() time.Time { return now }

	comments, err := s.engagement.ListComments(ctx, "v1")
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("ListComments() = %d, want 2", len(comments))
	}
	if comments[0].Text != "second" || comments[0].Timestamp != "5m" {
		t.Errorf("comments[0] = %q at %q, want second at 5m", comments[0].Text, comments[0].Timestamp)
	}
	if comments[1].Timestamp != "2d" {
		t.Errorf("comments[1].Timestamp = %q, want 2d", comments[1].Timestamp)
	}
}

func TestToggleCommentLike(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	s.mustVideo(t, "v1", "alice", base)
	s.mustVideo(t, "v2", "alice", base)
	c, err := s.engagement.AddComment(ctx, "v1", "bob", "nice!")
	if err != nil {
		t.Fatal(err)
	}

	state, err := s.engagement.ToggleCommentLike(ctx, "v1", c.ID, "carol")
	if err != nil {
		t.Fatalf("ToggleCommentLike() error = %v", err)
	}
	if !state.IsLiked || state.Likes != 1 {
		t.Errorf("first toggle = %+v", state)
	}
	state, err = s.engagement.ToggleCommentLike(ctx, "v1", c.ID, "carol")
	if err != nil {
		t.Fatalf("ToggleCommentLike() error = %v", err)
	}
	if state.IsLiked || state.Likes != 0 {
		t.Errorf("second toggle = %+v", state)
	}

	_, err = s.engagement.ToggleCommentLike(ctx, "v2", c.ID, "carol")
	if !errors.Is(err, apperror.ErrNotFound) || err.Error() != "Comment not found" {
		t.Errorf("ToggleCommentLike(wrong video) error = %v", err)
	}
}
