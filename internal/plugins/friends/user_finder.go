package friends

import (
	"context"

	"github.com/keyxmakerx/parley/internal/plugins/auth"
)

// UserFinder looks up users without the friends package depending on the
// auth repository directly.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*MemberUser, error)
	FindUserByID(ctx context.Context, id string) (*MemberUser, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]*MemberUser, error)
}

// UserFinderAdapter wraps auth.UserRepository to satisfy the UserFinder
// interface. Only this file references the auth package.
type UserFinderAdapter struct {
	repo auth.UserRepository
}

// NewUserFinderAdapter creates a new adapter around the auth repository.
func NewUserFinderAdapter(repo auth.UserRepository) UserFinder {
	return &UserFinderAdapter{repo: repo}
}

// FindUserByEmail looks up a user by email and maps to MemberUser.
func (a *UserFinderAdapter) FindUserByEmail(ctx context.Context, email string) (*MemberUser, error) {
	user, err := a.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return toMember(user), nil
}

// FindUserByID looks up a user by ID and maps to MemberUser.
func (a *UserFinderAdapter) FindUserByID(ctx context.Context, id string) (*MemberUser, error) {
	user, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toMember(user), nil
}

// FindUsersByIDs loads several users at once. Missing ids are skipped.
func (a *UserFinderAdapter) FindUsersByIDs(ctx context.Context, ids []string) ([]*MemberUser, error) {
	users, err := a.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	members := make([]*MemberUser, 0, len(users))
	for _, u := range users {
		members = append(members, toMember(u))
	}
	return members, nil
}

func toMember(u *auth.User) *MemberUser {
	return &MemberUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
