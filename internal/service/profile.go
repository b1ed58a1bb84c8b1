package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

// ProfileService composes a user's profile page.
type ProfileService struct {
	users      repository.UserRepository
	videos     repository.VideoRepository
	relations  *RelationshipService
	engagement *EngagementService
	logger     *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	videos repository.VideoRepository,
	relations *RelationshipService,
	engagement *EngagementService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:      users,
		videos:     videos,
		relations:  relations,
		engagement: engagement,
		logger:     logger,
	}
}

// ViewProfile returns username's profile as seen by viewerID (empty for
// anonymous viewers). tab selects whether owned or liked videos are listed;
// anything but TabLiked means TabVideos. The owned-video list always feeds
// the stats, the liked list is loaded only for TabLiked.
func (s *ProfileService) ViewProfile(ctx context.Context, username, viewerID string, tab model.ProfileTab) (*model.ProfileView, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, userLookupError(err, username)
	}
	if user, err = s.relations.Normalize(ctx, user); err != nil {
		return nil, err
	}

	var (
		owned      []model.Video
		liked      []model.Video
		totalLikes int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		videos, _, err := s.videos.ListVideos(gctx, repository.VideoQuery{Username: user.Username})
		if err != nil {
			return fmt.Errorf("service/profile: listing videos of %s: %w", user.Username, err)
		}
		owned = videos
		return nil
	})
	g.Go(func() error {
		sum, err := s.videos.SumLikes(gctx, user.Username)
		if err != nil {
			return fmt.Errorf("service/profile: summing likes of %s: %w", user.Username, err)
		}
		totalLikes = sum
		return nil
	})
	if tab == model.TabLiked {
		g.Go(func() error {
			videos, err := s.engagement.ListLiked(gctx, user.Username)
			if err != nil {
				return err
			}
			liked = videos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if liked == nil {
		liked = []model.Video{}
	}

	view := &model.ProfileView{
		Profile: model.Profile{
			Username:       user.Username,
			DisplayName:    user.DisplayName,
			Bio:            user.Bio,
			ProfilePicture: user.ProfilePicture,
			Verified:       user.Verified,
			JoinedDate:     user.CreatedAt,
			Stats: model.ProfileStats{
				Videos:    len(owned),
				Followers: user.Followers.Len(),
				Following: user.Following.Len(),
				Likes:     totalLikes,
			},
		},
		Videos:      owned,
		LikedVideos: liked,
		IsFollowing: s.relations.IsFollowing(viewerID, user),
	}
	return view, nil
}
