package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

// MaxCommentLength is measured in characters, not bytes.
const MaxCommentLength = 500

// EngagementService handles likes, saves and comments.
type EngagementService struct {
	videos   repository.VideoRepository
	comments repository.CommentRepository
	events   repository.EngagementRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngagementService(
	videos repository.VideoRepository,
	comments repository.CommentRepository,
	events repository.EngagementRepository,
	logger *slog.Logger,
) *EngagementService {
	return &EngagementService{
		videos:   videos,
		comments: comments,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ToggleLike flips username's like on a video and returns the new state with
// the video's current like count.
func (s *EngagementService) ToggleLike(ctx context.Context, videoID model.VideoID, username string) (*model.LikeState, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	liked, err := s.hasEvent(ctx, model.EngagementLike, username, video.ID)
	if err != nil {
		return nil, err
	}
	if liked {
		_, err = s.events.RemoveLike(ctx, video.ID, username)
	} else {
		_, err = s.events.AddLike(ctx, video.ID, username, s.now())
	}
	if err != nil {
		return nil, fmt.Errorf("service/engagement: toggling like on %s: %w", video.ID, err)
	}

	after, err := s.getVideo(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	return &model.LikeState{IsLiked: !liked, Likes: after.Likes}, nil
}

// ToggleSave flips username's save on a video.
func (s *EngagementService) ToggleSave(ctx context.Context, videoID model.VideoID, username string) (*model.SaveState, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	saved, err := s.hasEvent(ctx, model.EngagementSave, username, video.ID)
	if err != nil {
		return nil, err
	}
	return s.SetSaved(ctx, video.ID, username, !saved)
}

// SetSaved saves or unsaves a video. Both directions are idempotent.
func (s *EngagementService) SetSaved(ctx context.Context, videoID model.VideoID, username string, saved bool) (*model.SaveState, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if saved {
		_, err = s.events.AddSave(ctx, video.ID, username, s.now())
	} else {
		_, err = s.events.RemoveSave(ctx, video.ID, username)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Video not found")
		}
		return nil, fmt.Errorf("service/engagement: setting save on %s: %w", videoID, err)
	}
	return &model.SaveState{IsSaved: saved}, nil
}

// ListLiked returns the videos username liked, most recent like first.
// Likes of videos that no longer resolve are skipped.
func (s *EngagementService) ListLiked(ctx context.Context, username string) ([]model.Video, error) {
	return s.listEngaged(ctx, model.EngagementLike, username)
}

// ListSaved returns username's saved videos, most recent save first, with
// the viewer flags filled in.
func (s *EngagementService) ListSaved(ctx context.Context, username string) ([]model.FeedItem, error) {
	videos, err := s.listEngaged(ctx, model.EngagementSave, username)
	if err != nil {
		return nil, err
	}
	return s.Annotate(ctx, username, videos)
}

func (s *EngagementService) listEngaged(ctx context.Context, kind model.EngagementKind, username string) ([]model.Video, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	events, err := s.events.ListEngagements(ctx, kind, username)
	if err != nil {
		return nil, fmt.Errorf("service/engagement: listing %s events of %s: %w", kind, username, err)
	}
	ids := make([]model.VideoID, len(events))
	for i, e := range events {
		ids[i] = e.VideoID
	}
	videos, err := s.videos.GetVideosByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/engagement: resolving %s videos of %s: %w", kind, username, err)
	}
	if dropped := len(ids) - len(videos); dropped > 0 {
		s.logger.Debug("skipped unresolvable engagement rows",
			slog.String("kind", string(kind)),
			slog.String("username", username),
			slog.Int("dropped", dropped),
		)
	}
	return videos, nil
}

// Annotate marks which videos viewer has liked and saved. An anonymous viewer
// gets all flags false.
func (s *EngagementService) Annotate(ctx context.Context, viewer string, videos []model.Video) ([]model.FeedItem, error) {
	items := make([]model.FeedItem, len(videos))
	for i, v := range videos {
		items[i] = model.FeedItem{Video: v}
	}
	if viewer == "" || len(videos) == 0 {
		return items, nil
	}

	ids := make([]model.VideoID, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	liked, err := s.events.EngagedVideoIDs(ctx, model.EngagementLike, viewer, ids)
	if err != nil {
		return nil, fmt.Errorf("service/engagement: loading likes of %s: %w", viewer, err)
	}
	saved, err := s.events.EngagedVideoIDs(ctx, model.EngagementSave, viewer, ids)
	if err != nil {
		return nil, fmt.Errorf("service/engagement: loading saves of %s: %w", viewer, err)
	}
	for i := range items {
		items[i].IsLiked = liked[items[i].ID]
		items[i].IsSaved = saved[items[i].ID]
	}
	return items, nil
}

// AddComment posts a comment and bumps the video's comment counter.
func (s *EngagementService) AddComment(ctx context.Context, videoID model.VideoID, username, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" || username == "" {
		return nil, apperror.ValidationFailed("text", "Text and username are required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("Comment must be %d characters or less", MaxCommentLength))
	}

	c := &model.Comment{
		VideoID:   videoID,
		Username:  username,
		Text:      text,
		LikedBy:   []string{},
		CreatedAt: s.now(),
	}
	if err := s.comments.AddComment(ctx, c); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Video not found")
		}
		return nil, fmt.Errorf("service/engagement: adding comment on %s: %w", videoID, err)
	}
	c.Timestamp = model.RelativeTime(c.CreatedAt, s.now())

	s.logger.Info("comment added", slog.String("videoID", string(c.VideoID)), slog.String("username", username))
	return c, nil
}

// ListComments returns a video's comments, newest first, each with a
// relative timestamp.
func (s *EngagementService) ListComments(ctx context.Context, videoID model.VideoID) ([]model.Comment, error) {
	comments, err := s.comments.ListComments(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("service/engagement: listing comments of %s: %w", videoID, err)
	}
	now := s.now()
	for i := range comments {
		comments[i].Timestamp = model.RelativeTime(comments[i].CreatedAt, now)
	}
	return comments, nil
}

// ToggleCommentLike flips username's like on a comment.
func (s *EngagementService) ToggleCommentLike(ctx context.Context, videoID model.VideoID, commentID, username string) (*model.CommentLikeState, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	c, err := s.getComment(ctx, videoID, commentID)
	if err != nil {
		return nil, err
	}

	liked := slices.Contains(c.LikedBy, username)
	if liked {
		_, err = s.comments.RemoveCommentLike(ctx, c.ID, username)
	} else {
		_, err = s.comments.AddCommentLike(ctx, c.ID, username)
	}
	if err != nil {
		return nil, fmt.Errorf("service/engagement: toggling like on comment %s: %w", c.ID, err)
	}

	after, err := s.getComment(ctx, videoID, commentID)
	if err != nil {
		return nil, err
	}
	return &model.CommentLikeState{IsLiked: !liked, Likes: after.Likes}, nil
}

func (s *EngagementService) getVideo(ctx context.Context, id model.VideoID) (*model.Video, error) {
	v, err := s.videos.GetVideo(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Video not found")
		}
		return nil, fmt.Errorf("service/engagement: loading video %s: %w", id, err)
	}
	return v, nil
}

func (s *EngagementService) getComment(ctx context.Context, videoID model.VideoID, commentID string) (*model.Comment, error) {
	c, err := s.comments.GetComment(ctx, videoID, commentID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Comment not found")
		}
		return nil, fmt.Errorf("service/engagement: loading comment %s: %w", commentID, err)
	}
	return c, nil
}

func (s *EngagementService) hasEvent(ctx context.Context, kind model.EngagementKind, username string, id model.VideoID) (bool, error) {
	set, err := s.events.EngagedVideoIDs(ctx, kind, username, []model.VideoID{id})
	if err != nil {
		return false, fmt.Errorf("service/engagement: checking %s of %s: %w", kind, username, err)
	}
	return set[id], nil
}
