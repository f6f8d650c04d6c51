// Package friends manages the symmetric friend graph: who is connected to
// whom, and the predicate presence and messaging use to decide visibility.
// Adding a friend is immediate and mutual; there is no request/accept step.
package friends

import (
	"context"
	"time"
)

// Friend is the public summary of a user as seen from a friend list.
type Friend struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Since       time.Time `json:"since"`
}

// FriendStatus is a Friend annotated with live presence, as returned by
// GET /api/friends.
type FriendStatus struct {
	Friend
	Online bool `json:"online"`
}

// Edge is one direction of a friendship as stored. Every friendship is two
// edges written together.
type Edge struct {
	UserID    string
	FriendID  string
	CreatedAt time.Time
}

// MemberUser is the slice of a user record the friend graph needs.
type MemberUser struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   *string
}

// AddFriendRequest is the body of PUT /api/auth/add-friend.
type AddFriendRequest struct {
	FriendEmail string `json:"friendEmail" validate:"required,email,max=255"`
}

// AddedListener is told about every new friendship after it is committed.
// The presence hub uses it to introduce the two users to each other live.
type AddedListener interface {
	FriendAdded(ctx context.Context, a, b Friend)
}

// OnlineChecker reports which of the given users have a live connection.
type OnlineChecker interface {
	OnlineSubsetOf(ids []string) []string
}
