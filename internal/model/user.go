// Package model defines the domain types shared by services and handlers.
// Storage adapters translate between these types and their own document and
// row shapes.
package model

import "time"

// User represents a registered Vind account.
//
// Username and Email are always stored lowercased. PasswordHash is empty for
// accounts created through GitHub sign-in until the user sets a password.
//
// Followers and Following hold user IDs. A freshly loaded user may still carry
// a legacy representation (see RelationSet); the relationship service
// normalizes it before any follow logic looks at membership.
type User struct {
	ID             string      `json:"id"`
	Username       string      `json:"username"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	DisplayName    string      `json:"displayName"`
	Bio            string      `json:"bio"`
	ProfilePicture string      `json:"profilePicture,omitempty"`
	Verified       bool        `json:"verified"`
	GitHubID       int64       `json:"-"`
	Followers      RelationSet `json:"-"`
	Following      RelationSet `json:"-"`
	IsOnline       bool        `json:"isOnline"`
	LastLogin      time.Time   `json:"lastLogin,omitzero"`
	LastSeen       time.Time   `json:"lastSeen,omitzero"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// UserSummary is the user shape returned by the auth endpoints. It exposes
// relationship sizes instead of member lists.
type UserSummary struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Verified       bool      `json:"verified"`
	Followers      int       `json:"followers"`
	Following      int       `json:"following"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary builds the public summary of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
		Verified:       u.Verified,
		Followers:      u.Followers.Len(),
		Following:      u.Following.Len(),
		CreatedAt:      u.CreatedAt,
	}
}
