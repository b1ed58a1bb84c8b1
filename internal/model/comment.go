package model

import (
	"fmt"
	"time"
)

// Comment is a text reply on a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   VideoID   `json:"videoId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Likes     int64     `json:"likes"`
	LikedBy   []string  `json:"likedBy"`
	CreatedAt time.Time `json:"createdAt"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// RelativeTime renders the age of t as shown next to comments:
// "now", then minutes, hours, days and finally weeks.
func RelativeTime(t, now time.Time) string {
	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dw", days/7)
}

// CommentLikeState is the result of toggling a like on a comment.
type CommentLikeState struct {
	IsLiked bool  `json:"isLiked"`
	Likes   int64 `json:"likes"`
}
