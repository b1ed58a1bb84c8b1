package model

import "time"

// EngagementKind distinguishes the two per-user event tables.
type EngagementKind string

const (
	EngagementLike EngagementKind = "like"
	EngagementSave EngagementKind = "save"
)

// Engagement is one like or save event. At most one exists per
// (kind, username, video).
type Engagement struct {
	Kind      EngagementKind `json:"kind"`
	Username  string         `json:"username"`
	VideoID   VideoID        `json:"videoId"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LikeState is the result of toggling a like.
type LikeState struct {
	IsLiked bool  `json:"isLiked"`
	Likes   int64 `json:"likes"`
}

// SaveState is the result of toggling a save.
type SaveState struct {
	IsSaved bool `json:"isSaved"`
}

// FollowState is the result of a follow or unfollow.
type FollowState struct {
	IsFollowing bool   `json:"isFollowing"`
	Message     string `json:"message"`
}
