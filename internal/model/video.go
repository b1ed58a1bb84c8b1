package model

import (
	"fmt"
	"strings"
	"time"
)

// VideoID is the canonical external identifier of a video.
//
// Storage adapters may keep videos under a native key as well (for example a
// Mongo ObjectID); that mapping never leaves the adapter.
type VideoID string

const maxVideoIDLength = 64

// ParseVideoID validates a raw identifier from a URL or request body.
func ParseVideoID(raw string) (VideoID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("video id is required")
	}
	if len(id) > maxVideoIDLength {
		return "", fmt.Errorf("video id is too long")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("video id contains invalid character %q", r)
		}
	}
	return VideoID(id), nil
}

func (id VideoID) String() string { return string(id) }

// Video is a published short video. Counters are maintained by the
// engagement service together with the matching event rows.
type Video struct {
	ID          VideoID   `json:"id"`
	Username    string    `json:"username"`
	Description string    `json:"description"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	Shares      int64     `json:"shares"`
	Views       int64     `json:"views"`
	PlaybackID  string    `json:"playback_id"`
	AssetID     string    `json:"asset_id,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FeedItem is a video annotated with the viewer's engagement state.
type FeedItem struct {
	Video
	IsLiked bool `json:"isLiked"`
	IsSaved bool `json:"isSaved"`
}

// VideoPage is one offset-paginated slice of the feed.
type VideoPage struct {
	Videos  []FeedItem `json:"videos"`
	Total   int64      `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	HasMore bool       `json:"hasMore"`
}

// VideoDraft is the caller-supplied part of a new video. Counters always
// start at zero.
type VideoDraft struct {
	ID          VideoID
	Username    string
	Description string
	PlaybackID  string
	AssetID     string
	Thumbnail   string
	CreatedAt   time.Time
}
