// Package repository declares the storage contracts the service layer depends
// on. Implementations live in the mongo and sqlite subpackages; both store the
// same five collections: users, videos, comments, user_likes and user_saves.
//
// WHY INTERFACES?
// The service package never imports a driver. It asks for a
// VideoRepository or an EngagementRepository and receives whatever the
// server wired in: MongoDB in production, SQLite for local development, or
// an in-memory fake in unit tests. Each interface is small and grouped by
// aggregate so a service declares exactly the storage it touches.
//
// Store bundles every interface plus Ping and Close. It is what the server
// and CLI open once at startup and close on shutdown.
//
// ERROR CONTRACT:
// Implementations translate driver errors at the boundary:
//
//	- a missing row or document becomes apperror.NotFound
//	- a unique index violation becomes apperror.Conflict
//	- anything else is wrapped with fmt.Errorf and %w
//
// so callers test with errors.Is and never see sql.ErrNoRows or
// mongo.ErrNoDocuments.
//
// VIDEO IDENTIFIERS:
// Older videos in the document store are addressed by their ObjectID hex,
// newer ones by a string id field. Every method taking a model.VideoID
// accepts either form, and engagement rows recorded under one form are
// treated as the same membership as rows under the other.
//
// IDEMPOTENT EVENTS:
// AddLike, RemoveLike, AddSave and RemoveSave report whether membership
// changed. Repeating a call is safe and leaves counters untouched.
package repository

import (
	"context"
	"time"

	"github.com/sakif/vind/internal/model"
)

// ListOptions is offset pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// VideoQuery filters a video listing. Search is a case-insensitive substring
// matched against description and owner username. Username restricts results
// to one owner. Results are always newest first.
type VideoQuery struct {
	Search   string
	Username string
	ListOptions
}

// UserRepository stores accounts and their follow relationships.
//
// Relationship mutations have set semantics: adding an existing member or
// removing a missing one succeeds without changing anything. They require the
// field to already be in set form; callers normalize legacy users first.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	LinkGitHub(ctx context.Context, userID string, githubID int64) error
	UpdatePresence(ctx context.Context, userID string, online bool, at time.Time) error

	// NormalizeRelations rewrites legacy numeric followers/following fields of
	// one user to empty sets. Fields already in set form are left alone.
	NormalizeRelations(ctx context.Context, userID string) error
	// MigrateLegacyRelations does the same for every user and reports how
	// many users were changed.
	MigrateLegacyRelations(ctx context.Context) (int64, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	AddFollower(ctx context.Context, userID, followerID string) error
	RemoveFollower(ctx context.Context, userID, followerID string) error
	AddFollowing(ctx context.Context, userID, targetID string) error
	RemoveFollowing(ctx context.Context, userID, targetID string) error
}

// VideoRepository stores videos and their counters.
type VideoRepository interface {
	CreateVideo(ctx context.Context, video *model.Video) error
	GetVideo(ctx context.Context, id model.VideoID) (*model.Video, error)
	// GetVideosByIDs resolves ids leniently: unknown ids are skipped and the
	// result keeps the order of ids.
	GetVideosByIDs(ctx context.Context, ids []model.VideoID) ([]model.Video, error)
	ListVideos(ctx context.Context, q VideoQuery) ([]model.Video, int64, error)
	// SumLikes is the total of the like counters of username's videos.
	SumLikes(ctx context.Context, username string) (int64, error)
	IncrementShares(ctx context.Context, id model.VideoID) (int64, error)
	// GetVideoByAssetID finds the video created for a provider asset, if any.
	GetVideoByAssetID(ctx context.Context, assetID string) (*model.Video, error)
}

// CommentRepository stores comments.
type CommentRepository interface {
	// AddComment inserts the comment and increments the parent video's
	// comment counter. Either both happen or neither does.
	AddComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, videoID model.VideoID) ([]model.Comment, error)
	GetComment(ctx context.Context, videoID model.VideoID, commentID string) (*model.Comment, error)
	// AddCommentLike and RemoveCommentLike change likedBy and the counter
	// together and report whether membership changed.
	AddCommentLike(ctx context.Context, commentID, username string) (bool, error)
	RemoveCommentLike(ctx context.Context, commentID, username string) (bool, error)
}

// EngagementRepository stores like and save events.
//
// AddLike/RemoveLike move the video's like counter only when the event row
// was actually inserted or deleted, so the counter tracks membership even
// under concurrent toggles. Saves have no counter.
type EngagementRepository interface {
	AddLike(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error)
	RemoveLike(ctx context.Context, videoID model.VideoID, username string) (bool, error)
	AddSave(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error)
	RemoveSave(ctx context.Context, videoID model.VideoID, username string) (bool, error)

	// ListEngagements returns username's events of kind, newest first.
	ListEngagements(ctx context.Context, kind model.EngagementKind, username string) ([]model.Engagement, error)
	// EngagedVideoIDs reports which of ids username has an event of kind for.
	EngagedVideoIDs(ctx context.Context, kind model.EngagementKind, username string, ids []model.VideoID) (map[model.VideoID]bool, error)
}

// Store bundles every repository behind one lifecycle.
type Store interface {
	UserRepository
	VideoRepository
	CommentRepository
	EngagementRepository
	Ping(ctx context.Context) error
	Close() error
}
