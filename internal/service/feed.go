package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

const (
	DefaultPageSize      = 10
	MaxPageSize          = 50
	MaxPage              = 100000
	MaxDescriptionLength = 2200
	MaxSearchLength      = 100
)

// FeedService lists, creates and shares videos.
type FeedService struct {
	videos     repository.VideoRepository
	engagement *EngagementService
	logger     *slog.Logger
}

func NewFeedService(videos repository.VideoRepository, engagement *EngagementService, logger *slog.Logger) *FeedService {
	return &FeedService{
		videos:     videos,
		engagement: engagement,
		logger:     logger,
	}
}

// FeedQuery selects one page of the feed. Viewer is the username of the
// caller, empty for anonymous requests.
type FeedQuery struct {
	Page   int
	Limit  int
	Search string
	Viewer string
}

// ListVideos returns one page of videos, newest first. Page defaults to 1
// and may not exceed MaxPage. Limit defaults to DefaultPageSize and is
// capped at MaxPageSize.
func (s *FeedService) ListVideos(ctx context.Context, q FeedQuery) (*model.VideoPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	// Keeps (Page-1)*Limit well inside every store's offset range.
	if q.Page > MaxPage {
		return nil, apperror.ValidationFailed("page",
			fmt.Sprintf("Page must be %d or less", MaxPage))
	}
	search := strings.TrimSpace(q.Search)
	if utf8.RuneCountInString(search) > MaxSearchLength {
		return nil, apperror.ValidationFailed("search",
			fmt.Sprintf("Search must be %d characters or less", MaxSearchLength))
	}

	videos, total, err := s.videos.ListVideos(ctx, repository.VideoQuery{
		Search: search,
		ListOptions: repository.ListOptions{
			Limit:  q.Limit,
			Offset: (q.Page - 1) * q.Limit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing videos: %w", err)
	}

	items, err := s.engagement.Annotate(ctx, q.Viewer, videos)
	if err != nil {
		return nil, err
	}
	return &model.VideoPage{
		Videos:  items,
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		HasMore: int64(q.Page)*int64(q.Limit) < total,
	}, nil
}

// GetVideo returns one video with the viewer's flags.
func (s *FeedService) GetVideo(ctx context.Context, id model.VideoID, viewer string) (*model.FeedItem, error) {
	v, err := s.engagement.getVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.engagement.Annotate(ctx, viewer, []model.Video{*v})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// CreateVideo publishes a video for draft.Username with zeroed counters.
func (s *FeedService) CreateVideo(ctx context.Context, draft model.VideoDraft) (*model.Video, error) {
	draft.Description = strings.TrimSpace(draft.Description)
	draft.PlaybackID = strings.TrimSpace(draft.PlaybackID)

	if draft.Username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	if draft.PlaybackID == "" {
		return nil, apperror.ValidationFailed("playback_id", "Playback ID is required")
	}
	if utf8.RuneCountInString(draft.Description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be %d characters or less", MaxDescriptionLength))
	}

	v := &model.Video{
		ID:          draft.ID,
		Username:    strings.ToLower(draft.Username),
		Description: draft.Description,
		PlaybackID:  draft.PlaybackID,
		AssetID:     draft.AssetID,
		Thumbnail:   draft.Thumbnail,
		CreatedAt:   draft.CreatedAt,
	}
	if err := s.videos.CreateVideo(ctx, v); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/feed: creating video: %w", err)
	}

	s.logger.Info("video created", slog.String("videoID", string(v.ID)), slog.String("username", v.Username))
	return v, nil
}

// PublishAsset creates the video for a provider asset unless one already
// exists, in which case the existing video is returned.
func (s *FeedService) PublishAsset(ctx context.Context, draft model.VideoDraft) (*model.Video, error) {
	if draft.AssetID != "" {
		existing, err := s.videos.GetVideoByAssetID(ctx, draft.AssetID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/feed: looking up asset %s: %w", draft.AssetID, err)
		}
	}
	return s.CreateVideo(ctx, draft)
}

// Share increments a video's share counter.
func (s *FeedService) Share(ctx context.Context, id model.VideoID) (int64, error) {
	shares, err := s.videos.IncrementShares(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return 0, apperror.NotFoundMessage("Video not found")
		}
		return 0, fmt.Errorf("service/feed: sharing %s: %w", id, err)
	}
	return shares, nil
}
