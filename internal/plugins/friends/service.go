package friends

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/keyxmakerx/parley/internal/apperror"
)

// FriendService defines the business logic contract for the friend graph.
type FriendService interface {
	// AddFriend befriends the user registered under email and returns the
	// caller's updated friend list.
	AddFriend(ctx context.Context, callerID, email string) ([]Friend, error)
	ListFriends(ctx context.Context, userID string) ([]Friend, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	SetAddedListener(l AddedListener)
}

type friendService struct {
	repo     FriendRepository
	users    UserFinder
	now      func() time.Time
	listener AddedListener
}

// NewFriendService creates a new friend service.
func NewFriendService(repo FriendRepository, users UserFinder, now func() time.Time) FriendService {
	if now == nil {
		now = time.Now
	}
	return &friendService{repo: repo, users: users, now: now}
}

// SetAddedListener registers the component notified of new friendships.
// Must be called before serving traffic.
func (s *friendService) SetAddedListener(l AddedListener) {
	s.listener = l
}

// AddFriend resolves email to a user and records the mutual friendship.
// Checks run in order: target exists, target is not the caller, the pair is
// not already connected.
func (s *friendService) AddFriend(ctx context.Context, callerID, email string) ([]Friend, error) {
	target, err := s.users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if apperror.Is(err, apperror.TypeNotFound) {
		return nil, apperror.NewUserNotFound()
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user by email: %w", err))
	}

	if target.ID == callerID {
		return nil, apperror.NewSelfFriend()
	}

	caller, err := s.users.FindUserByID(ctx, callerID)
	if apperror.Is(err, apperror.TypeNotFound) {
		return nil, apperror.NewUnauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding caller: %w", err))
	}

	at := s.now().UTC()
	if err := s.repo.Add(ctx, callerID, target.ID, at); err != nil {
		if apperror.Is(err, apperror.TypeAlreadyFriends) {
			return nil, err
		}
		return nil, apperror.NewInternal(err)
	}

	slog.Info("friendship added",
		slog.String("user_id", callerID),
		slog.String("friend_id", target.ID),
	)

	if s.listener != nil {
		s.listener.FriendAdded(ctx, toFriend(caller, at), toFriend(target, at))
	}

	return s.ListFriends(ctx, callerID)
}

// ListFriends returns userID's friends in the order they were added.
func (s *friendService) ListFriends(ctx context.Context, userID string) ([]Friend, error) {
	edges, err := s.repo.ListEdges(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if len(edges) == 0 {
		return []Friend{}, nil
	}

	ids := lo.Map(edges, func(e Edge, _ int) string { return e.FriendID })
	users, err := s.users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading friends: %w", err))
	}
	byID := lo.KeyBy(users, func(u *MemberUser) string { return u.ID })

	return lo.FilterMap(edges, func(e Edge, _ int) (Friend, bool) {
		u, ok := byID[e.FriendID]
		if !ok {
			return Friend{}, false
		}
		return toFriend(u, e.CreatedAt), true
	}), nil
}

// FriendIDs returns only the ids, for presence fan-out.
func (s *friendService) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.repo.ListEdges(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return lo.Map(edges, func(e Edge, _ int) string { return e.FriendID }), nil
}

// AreFriends is the visibility predicate. A user is never their own friend.
func (s *friendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	ok, err := s.repo.AreFriends(ctx, a, b)
	if err != nil {
		return false, apperror.NewInternal(err)
	}
	return ok, nil
}

func toFriend(u *MemberUser, since time.Time) Friend {
	return Friend{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Since:       since,
	}
}
