package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/parley/internal/apperror"
)

// MariaDB error numbers the repository reacts to.
const (
	mysqlDuplicateEntry = 1062
	mysqlDeadlock       = 1213
)

// addAttempts bounds retries when two mirrored AddFriend calls deadlock on
// each other's rows.
const addAttempts = 3

// FriendRepository defines the data access contract for the friend graph.
type FriendRepository interface {
	// Add writes both directions of the friendship atomically. Returns
	// apperror AlreadyFriends if either direction already exists.
	Add(ctx context.Context, a, b string, at time.Time) error
	// ListEdges returns userID's outgoing edges in insertion order.
	ListEdges(ctx context.Context, userID string) ([]Edge, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// friendRepository implements FriendRepository with MariaDB queries.
type friendRepository struct {
	db *sql.DB
}

// NewFriendRepository creates a new friend repository backed by the given DB pool.
func NewFriendRepository(db *sql.DB) FriendRepository {
	return &friendRepository{db: db}
}

// Add inserts (a,b) and (b,a) in one transaction. The unique pair index
// turns a repeat into AlreadyFriends. Two opposite adds racing each other
// can deadlock; InnoDB rolls one back and the retry then sees the winner's
// rows.
func (r *friendRepository) Add(ctx context.Context, a, b string, at time.Time) error {
	var err error
	for attempt := 0; attempt < addAttempts; attempt++ {
		err = r.addOnce(ctx, a, b, at)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDeadlock {
			continue
		}
		break
	}
	return err
}

func (r *friendRepository) addOnce(ctx context.Context, a, b string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning friendship tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO friendships (user_id, friend_id, created_at) VALUES (?, ?, ?)`
	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		if _, err := tx.ExecContext(ctx, query, pair[0], pair[1], at); err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
				return apperror.NewAlreadyFriends()
			}
			return fmt.Errorf("inserting friendship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing friendship: %w", err)
	}
	return nil
}

// ListEdges returns the friends of userID ordered by when they were added.
func (r *friendRepository) ListEdges(ctx context.Context, userID string) ([]Edge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, friend_id, created_at FROM friendships WHERE user_id = ? ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying friendships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.UserID, &e.FriendID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning friendship: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friendships: %w", err)
	}
	return edges, nil
}

// AreFriends checks a single direction; Add keeps both in step.
func (r *friendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?)`,
		a, b,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return exists, nil
}
