package model

import "time"

// ProfileTab selects which video list a profile view carries.
type ProfileTab string

const (
	TabVideos ProfileTab = "videos"
	TabLiked  ProfileTab = "liked"
)

// ProfileStats are the aggregate counters shown on a profile header.
type ProfileStats struct {
	Videos    int   `json:"videos"`
	Followers int   `json:"followers"`
	Following int   `json:"following"`
	Likes     int64 `json:"likes"`
}

// Profile is the public part of a user shown on their page.
type Profile struct {
	Username       string       `json:"username"`
	DisplayName    string       `json:"displayName"`
	Bio            string       `json:"bio"`
	ProfilePicture string       `json:"profilePicture,omitempty"`
	Verified       bool         `json:"verified"`
	JoinedDate     time.Time    `json:"joinedDate"`
	Stats          ProfileStats `json:"stats"`
}

// ProfileView is the composed profile page.
type ProfileView struct {
	Profile     Profile `json:"profile"`
	Videos      []Video `json:"videos"`
	LikedVideos []Video `json:"likedVideos"`
	IsFollowing bool    `json:"isFollowing"`
}
