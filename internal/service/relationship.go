package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

// RelationshipService maintains the followers/following sets.
//
// A follow writes two documents: the target's followers and the follower's
// following. There is no transaction spanning both, so the second write is
// retried and, if it still fails, the pair is left for Repair.
type RelationshipService struct {
	users   repository.UserRepository
	logger  *slog.Logger
	backoff func() retry.Backoff
}

func NewRelationshipService(users repository.UserRepository, logger *slog.Logger) *RelationshipService {
	return &RelationshipService{
		users:  users,
		logger: logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
		},
	}
}

// Normalize persists the empty-set form of any legacy relationship field and
// returns the user as it now reads from storage.
func (s *RelationshipService) Normalize(ctx context.Context, u *model.User) (*model.User, error) {
	if !u.Followers.Legacy && !u.Following.Legacy {
		return u, nil
	}
	if err := s.users.NormalizeRelations(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("service/relationship: normalizing %s: %w", u.ID, err)
	}
	s.logger.Info("migrated legacy relationship fields",
		slog.String("userID", u.ID),
		slog.Bool("followers", u.Followers.Legacy),
		slog.Bool("following", u.Following.Legacy),
	)

	out := *u
	out.Followers = u.Followers.Normalized()
	out.Following = u.Following.Normalized()
	return &out, nil
}

// Follow makes followerID follow the user called targetUsername. Following
// someone already followed succeeds without changes.
func (s *RelationshipService) Follow(ctx context.Context, followerID, targetUsername string) (*model.FollowState, error) {
	follower, target, err := s.resolvePair(ctx, followerID, targetUsername)
	if err != nil {
		return nil, err
	}
	if follower.ID == target.ID {
		return nil, apperror.ValidationFailed("username", "You cannot follow yourself")
	}

	if err := s.users.AddFollower(ctx, target.ID, follower.ID); err != nil {
		return nil, fmt.Errorf("service/relationship: adding follower: %w", err)
	}
	s.secondSide(ctx, "follow", follower.ID, target.ID, func(ctx context.Context) error {
		return s.users.AddFollowing(ctx, follower.ID, target.ID)
	})

	s.logger.Info("user followed", slog.String("followerID", follower.ID), slog.String("targetID", target.ID))
	return &model.FollowState{IsFollowing: true, Message: "You are now following " + target.Username}, nil
}

// Unfollow removes the follow edge. Unfollowing someone not followed is a
// no-op.
func (s *RelationshipService) Unfollow(ctx context.Context, followerID, targetUsername string) (*model.FollowState, error) {
	follower, target, err := s.resolvePair(ctx, followerID, targetUsername)
	if err != nil {
		return nil, err
	}

	if err := s.users.RemoveFollower(ctx, target.ID, follower.ID); err != nil {
		return nil, fmt.Errorf("service/relationship: removing follower: %w", err)
	}
	s.secondSide(ctx, "unfollow", follower.ID, target.ID, func(ctx context.Context) error {
		return s.users.RemoveFollowing(ctx, follower.ID, target.ID)
	})

	s.logger.Info("user unfollowed", slog.String("followerID", follower.ID), slog.String("targetID", target.ID))
	return &model.FollowState{IsFollowing: false, Message: "You unfollowed " + target.Username}, nil
}

// IsFollowing reports whether viewerID is among target's followers.
func (s *RelationshipService) IsFollowing(viewerID string, target *model.User) bool {
	return viewerID != "" && target.Followers.Contains(viewerID)
}

// resolvePair loads and normalizes both ends of a follow edge.
func (s *RelationshipService) resolvePair(ctx context.Context, followerID, targetUsername string) (*model.User, *model.User, error) {
	if targetUsername == "" {
		return nil, nil, apperror.ValidationFailed("username", "Username is required")
	}

	target, err := s.users.GetUserByUsername(ctx, targetUsername)
	if err != nil {
		return nil, nil, userLookupError(err, targetUsername)
	}
	follower, err := s.users.GetUserByID(ctx, followerID)
	if err != nil {
		return nil, nil, userLookupError(err, followerID)
	}

	if target, err = s.Normalize(ctx, target); err != nil {
		return nil, nil, err
	}
	if follower.ID != target.ID {
		if follower, err = s.Normalize(ctx, follower); err != nil {
			return nil, nil, err
		}
	}
	return follower, target, nil
}

func userLookupError(err error, key string) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.NotFoundMessage("User not found")
	}
	return fmt.Errorf("service/relationship: loading user %s: %w", key, err)
}

// secondSide applies the follower-side write with retries. A final failure
// leaves the edge one-sided; it is logged and fixed later by Repair.
func (s *RelationshipService) secondSide(ctx context.Context, op, followerID, targetID string, write func(context.Context) error) {
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("relationship inconsistency",
			slog.String("op", op),
			slog.String("followerID", followerID),
			slog.String("targetID", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// Repair makes every edge touching userID symmetric. The followers side is
// written first by Follow and Unfollow, so it is treated as the source of
// truth: a missing following entry is added and a following entry without
// its follower counterpart is dropped. Edges pointing at users that no longer
// exist are dropped too. It returns the number of writes made.
func (s *RelationshipService) Repair(ctx context.Context, userID string) (int, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/relationship: loading %s: %w", userID, err)
	}
	if u, err = s.Normalize(ctx, u); err != nil {
		return 0, err
	}

	fixed := 0
	for _, followerID := range u.Followers.IDs {
		other, err := s.users.GetUserByID(ctx, followerID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			if err := s.users.RemoveFollower(ctx, u.ID, followerID); err != nil {
				return fixed, fmt.Errorf("service/relationship: dropping dangling follower: %w", err)
			}
			fixed++
			continue
		case err != nil:
			return fixed, fmt.Errorf("service/relationship: loading %s: %w", followerID, err)
		}
		if other.Following.Legacy || !other.Following.Contains(u.ID) {
			if err := s.users.AddFollowing(ctx, other.ID, u.ID); err != nil {
				return fixed, fmt.Errorf("service/relationship: repairing following of %s: %w", other.ID, err)
			}
			fixed++
		}
	}

	for _, targetID := range u.Following.IDs {
		other, err := s.users.GetUserByID(ctx, targetID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			if err := s.users.RemoveFollowing(ctx, u.ID, targetID); err != nil {
				return fixed, fmt.Errorf("service/relationship: dropping dangling following: %w", err)
			}
			fixed++
			continue
		case err != nil:
			return fixed, fmt.Errorf("service/relationship: loading %s: %w", targetID, err)
		}
		if !other.Followers.Contains(u.ID) {
			if err := s.users.RemoveFollowing(ctx, u.ID, other.ID); err != nil {
				return fixed, fmt.Errorf("service/relationship: repairing following of %s: %w", u.ID, err)
			}
			fixed++
		}
	}

	if fixed > 0 {
		s.logger.Info("repaired relationships", slog.String("userID", u.ID), slog.Int("writes", fixed))
	}
	return fixed, nil
}
