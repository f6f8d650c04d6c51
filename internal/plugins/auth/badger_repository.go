package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/keyxmakerx/parley/internal/apperror"
)

// Badger key prefixes for the user keyspace.
const (
	badgerUserPrefix  = "user:"
	badgerEmailPrefix = "user_email:"
)

// badgerUser is the stored form of a User. User hides its password hash
// from JSON, so it cannot be persisted as-is.
type badgerUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// badgerUserRepository implements UserRepository on an embedded Badger
// store. The email index key makes uniqueness a transactional check.
type badgerUserRepository struct {
	db *badger.DB
}

// NewBadgerUserRepository creates a user repository backed by Badger.
func NewBadgerUserRepository(db *badger.DB) UserRepository {
	return &badgerUserRepository{db: db}
}

func (r *badgerUserRepository) Create(ctx context.Context, user *User) error {
	data, err := json.Marshal(toBadgerUser(user))
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(badgerEmailPrefix + user.Email)
		if _, err := txn.Get(emailKey); err == nil {
			return apperror.NewDuplicateEmail()
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(badgerUserPrefix+user.ID), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another transaction touched the same email key first.
		return apperror.NewDuplicateEmail()
	}
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *badgerUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var user *User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getBadgerUser(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func (r *badgerUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user *User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerEmailPrefix + email))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getBadgerUser(txn, string(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

func (r *badgerUserRepository) FindByIDs(ctx context.Context, ids []string) ([]*User, error) {
	var users []*User
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getBadgerUser(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying users by id: %w", err)
	}
	return users, nil
}

func (r *badgerUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(badgerEmailPrefix + email))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return true, nil
}

func (r *badgerUserRepository) UpdateProfile(ctx context.Context, user *User) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		stored, err := getBadgerUser(txn, user.ID)
		if err != nil {
			return err
		}
		stored.DisplayName = user.DisplayName
		stored.AvatarURL = user.AvatarURL
		stored.UpdatedAt = user.UpdatedAt

		data, err := json.Marshal(toBadgerUser(stored))
		if err != nil {
			return err
		}
		return txn.Set([]byte(badgerUserPrefix+user.ID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperror.NewNotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

func (r *badgerUserRepository) Ping(ctx context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

func getBadgerUser(txn *badger.Txn, id string) (*User, error) {
	item, err := txn.Get([]byte(badgerUserPrefix + id))
	if err != nil {
		return nil, err
	}
	var stored badgerUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	}); err != nil {
		return nil, err
	}
	return &User{
		ID:           stored.ID,
		Email:        stored.Email,
		DisplayName:  stored.DisplayName,
		PasswordHash: stored.PasswordHash,
		AvatarURL:    stored.AvatarURL,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}, nil
}

func toBadgerUser(u *User) badgerUser {
	return badgerUser{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		AvatarURL:    u.AvatarURL,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
