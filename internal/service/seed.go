package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

type seedUser struct {
	username    string
	displayName string
	bio         string
	verified    bool
	joined      time.Time
	following   []string
}

type seedVideo struct {
	id          model.VideoID
	username    string
	description string
	likes       int64
	comments    int64
	shares      int64
	views       int64
	createdAt   time.Time
}

var demoUsers = []seedUser{
	{
		username:    "creative_user",
		displayName: "Creative User",
		bio:         "Artist & Creator 🎨 | Sharing my journey through visual storytelling | DM for collaborations ✨",
		verified:    true,
		joined:      time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC),
		following:   []string{"artist_daily", "foodie_explorer"},
	},
	{
		username:    "funny_creator",
		displayName: "Funny Creator",
		bio:         "Making people laugh one video at a time 😂 | Comedy content creator",
		verified:    true,
		joined:      time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC),
		following:   []string{"creative_user"},
	},
	{
		username:    "artist_daily",
		displayName: "Daily Artist",
		bio:         "Daily art content ✨ | Time-lapse videos | Art tutorials",
		verified:    true,
		joined:      time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC),
		following:   []string{"creative_user", "funny_creator"},
	},
	{
		username:    "foodie_explorer",
		displayName: "Foodie Explorer",
		bio:         "Food adventures around the world 🍜 | Restaurant reviews | Cooking tips",
		joined:      time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		following:   []string{"creative_user", "artist_daily"},
	},
}

var demoVideos = []seedVideo{
	{"demo-1", "creative_user", "Check out this amazing view! 🌅 Perfect morning vibes with nature's beauty #nature #sunrise #peaceful", 1234, 89, 45, 15600, time.Date(2025, 7, 10, 8, 0, 0, 0, time.UTC)},
	{"demo-2", "creative_user", "Quick art session in the park 🎨 Love creating outdoors! #art #nature #creative", 892, 67, 32, 12300, time.Date(2025, 7, 9, 14, 30, 0, 0, time.UTC)},
	{"demo-3", "creative_user", "Sunset painting time-lapse ✨ Watch the magic happen! #art #painting #sunset", 2341, 234, 89, 28900, time.Date(2025, 7, 8, 18, 45, 0, 0, time.UTC)},
	{"demo-4", "funny_creator", "When you realize it's Monday again 😅 We've all been there! #mondayvibes #relatable #mood", 1876, 156, 67, 22100, time.Date(2025, 7, 10, 12, 30, 0, 0, time.UTC)},
	{"demo-5", "artist_daily", "Character design process ⚡ From sketch to final! #characterdesign #art #process", 3421, 127, 156, 41200, time.Date(2025, 7, 10, 15, 45, 0, 0, time.UTC)},
	{"demo-6", "foodie_explorer", "Best ramen in Tokyo! 🍜 This place is absolutely incredible - the broth is perfect! #food #ramen #tokyo", 567, 89, 23, 8900, time.Date(2025, 7, 10, 18, 20, 0, 0, time.UTC)},
}

// SeedReport counts what a seed run created. Rows that already existed are
// left untouched and not counted.
type SeedReport struct {
	Users   int `json:"users"`
	Videos  int `json:"videos"`
	Follows int `json:"follows"`
}

// SeedService loads demo data into an empty or partially seeded store.
type SeedService struct {
	auth      *AuthService
	users     repository.UserRepository
	videos    repository.VideoRepository
	relations *RelationshipService
	logger    *slog.Logger
}

func NewSeedService(
	authSvc *AuthService,
	users repository.UserRepository,
	videos repository.VideoRepository,
	relations *RelationshipService,
	logger *slog.Logger,
) *SeedService {
	return &SeedService{
		auth:      authSvc,
		users:     users,
		videos:    videos,
		relations: relations,
		logger:    logger,
	}
}

// Seed creates the demo accounts (all with password), their videos and the
// follow graph between them. Running it twice is harmless.
func (s *SeedService) Seed(ctx context.Context, password string) (*SeedReport, error) {
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}

	report := &SeedReport{}
	ids := make(map[string]string, len(demoUsers))
	var hash string

	for _, du := range demoUsers {
		u, err := s.users.GetUserByUsername(ctx, du.username)
		switch {
		case err == nil:
		case errors.Is(err, apperror.ErrNotFound):
			if hash == "" {
				if hash, err = s.auth.passwords.Hash(password); err != nil {
					return report, fmt.Errorf("service/seed: hashing password: %w", err)
				}
			}
			u = &model.User{
				Username:     du.username,
				Email:        du.username + "@example.com",
				PasswordHash: hash,
				DisplayName:  du.displayName,
				Bio:          du.bio,
				Verified:     du.verified,
				Followers:    model.NewRelationSet(),
				Following:    model.NewRelationSet(),
				CreatedAt:    du.joined,
			}
			if err := s.users.CreateUser(ctx, u); err != nil {
				return report, fmt.Errorf("service/seed: creating %s: %w", du.username, err)
			}
			report.Users++
		default:
			return report, fmt.Errorf("service/seed: loading %s: %w", du.username, err)
		}
		ids[du.username] = u.ID
	}

	for _, dv := range demoVideos {
		_, err := s.videos.GetVideo(ctx, dv.id)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return report, fmt.Errorf("service/seed: loading video %s: %w", dv.id, err)
		}
		v := &model.Video{
			ID:          dv.id,
			Username:    dv.username,
			Description: dv.description,
			Likes:       dv.likes,
			Comments:    dv.comments,
			Shares:      dv.shares,
			Views:       dv.views,
			PlaybackID:  string(dv.id),
			CreatedAt:   dv.createdAt,
		}
		if err := s.videos.CreateVideo(ctx, v); err != nil {
			return report, fmt.Errorf("service/seed: creating video %s: %w", dv.id, err)
		}
		report.Videos++
	}

	for _, du := range demoUsers {
		u, err := s.users.GetUserByID(ctx, ids[du.username])
		if err != nil {
			return report, fmt.Errorf("service/seed: reloading %s: %w", du.username, err)
		}
		for _, other := range du.following {
			if u.Following.Contains(ids[other]) {
				continue
			}
			if _, err := s.relations.Follow(ctx, ids[du.username], other); err != nil {
				return report, fmt.Errorf("service/seed: %s following %s: %w", du.username, other, err)
			}
			report.Follows++
		}
	}

	s.logger.Info("seed complete",
		slog.Int("users", report.Users),
		slog.Int("videos", report.Videos),
		slog.Int("follows", report.Follows),
	)
	return report, nil
}
