package friends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/keyxmakerx/parley/internal/apperror"
)

// badgerFriendsPrefix keys a user's adjacency list.
const badgerFriendsPrefix = "friends:"

// storedEdge is one entry of an adjacency list.
type storedEdge struct {
	FriendID  string    `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// badgerFriendRepository keeps each user's friends as a JSON array under
// friends:<id>. Both arrays change in the same read-write transaction, so
// readers never observe a one-sided friendship.
type badgerFriendRepository struct {
	db *badger.DB
}

// NewBadgerFriendRepository creates a friend repository backed by Badger.
func NewBadgerFriendRepository(db *badger.DB) FriendRepository {
	return &badgerFriendRepository{db: db}
}

// Add retries on ErrConflict until ctx ends. Every add rewrites both
// users' lists, so concurrent adds touching one user conflict even when
// they are distinct; a retry sees the winner's commit and either appends
// after it or, for an opposite add, reports AlreadyFriends.
func (r *badgerFriendRepository) Add(ctx context.Context, a, b string, at time.Time) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			aEdges, err := readEdges(txn, a)
			if err != nil {
				return err
			}
			bEdges, err := readEdges(txn, b)
			if err != nil {
				return err
			}

			if hasFriend(aEdges, b) || hasFriend(bEdges, a) {
				return apperror.NewAlreadyFriends()
			}

			if err := writeEdges(txn, a, append(aEdges, storedEdge{FriendID: b, CreatedAt: at})); err != nil {
				return err
			}
			return writeEdges(txn, b, append(bEdges, storedEdge{FriendID: a, CreatedAt: at}))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("adding friendship after %d conflicts: %w", attempt+1, ctx.Err())
		case <-time.After(conflictBackoff(attempt)):
		}
	}

	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("adding friendship: %w", err)
}

func (r *badgerFriendRepository) ListEdges(ctx context.Context, userID string) ([]Edge, error) {
	var stored []storedEdge
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = readEdges(txn, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading friendships: %w", err)
	}

	return lo.Map(stored, func(e storedEdge, _ int) Edge {
		return Edge{UserID: userID, FriendID: e.FriendID, CreatedAt: e.CreatedAt}
	}), nil
}

func (r *badgerFriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		edges, err := readEdges(txn, a)
		found = hasFriend(edges, b)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return found, nil
}

// conflictBackoff grows from 1ms to a 50ms ceiling, with full jitter so
// writers that collided once spread out on the retry.
func conflictBackoff(attempt int) time.Duration {
	ceiling := min(time.Millisecond<<min(attempt, 6), 50*time.Millisecond)
	return time.Duration(rand.Int64N(int64(ceiling))) + time.Millisecond/2
}

// readEdges returns an empty list for a user with no friends yet.
func readEdges(txn *badger.Txn, userID string) ([]storedEdge, error) {
	item, err := txn.Get([]byte(badgerFriendsPrefix + userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var edges []storedEdge
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &edges)
	})
	return edges, err
}

func writeEdges(txn *badger.Txn, userID string, edges []storedEdge) error {
	data, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	return txn.Set([]byte(badgerFriendsPrefix+userID), data)
}

func hasFriend(edges []storedEdge, id string) bool {
	return lo.ContainsBy(edges, func(e storedEdge) bool { return e.FriendID == id })
}
