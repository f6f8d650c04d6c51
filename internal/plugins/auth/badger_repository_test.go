package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/parley/internal/apperror"
)

func newStoredUser(email string) *User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  "Someone",
		PasswordHash: "$argon2id$stub",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestBadgerUserRepository_CreateAndFind(t *testing.T) {
	req := require.New(t)
	repo := newBadgerRepo(t)
	ctx := context.Background()

	user := newStoredUser("ada@example.com")
	req.NoError(repo.Create(ctx, user))

	byID, err := repo.FindByID(ctx, user.ID)
	req.NoError(err)
	req.Equal(user.Email, byID.Email)
	req.Equal(user.DisplayName, byID.DisplayName)
	req.True(user.CreatedAt.Equal(byID.CreatedAt))
	req.Nil(byID.AvatarURL)

	byEmail, err := repo.FindByEmail(ctx, "ada@example.com")
	req.NoError(err)
	req.Equal(user.ID, byEmail.ID)
	req.Equal(user.PasswordHash, byEmail.PasswordHash)

	exists, err := repo.EmailExists(ctx, "ada@example.com")
	req.NoError(err)
	req.True(exists)

	_, err = repo.FindByEmail(ctx, "ghost@example.com")
	req.True(apperror.Is(err, apperror.TypeNotFound))
}

func TestBadgerUserRepository_RejectsDuplicateEmail(t *testing.T) {
	req := require.New(t)
	repo := newBadgerRepo(t)
	ctx := context.Background()

	req.NoError(repo.Create(ctx, newStoredUser("ada@example.com")))
	err := repo.Create(ctx, newStoredUser("ada@example.com"))
	req.True(apperror.Is(err, apperror.TypeDuplicateEmail))
}

func TestBadgerUserRepository_ConcurrentSignupsSameEmail(t *testing.T) {
	req := require.New(t)
	repo := newBadgerRepo(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, newStoredUser("race@example.com"))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		req.True(apperror.Is(err, apperror.TypeDuplicateEmail), "unexpected error %v", err)
	}
	req.Equal(1, succeeded)
}

func TestBadgerUserRepository_UpdateProfile(t *testing.T) {
	req := require.New(t)
	repo := newBadgerRepo(t)
	ctx := context.Background()

	user := newStoredUser("ada@example.com")
	req.NoError(repo.Create(ctx, user))

	avatar := "https://cdn.example.com/a.png"
	user.DisplayName = "Ada L."
	user.AvatarURL = &avatar
	user.Email = "hijack@example.com"
	req.NoError(repo.UpdateProfile(ctx, user))

	stored, err := repo.FindByID(ctx, user.ID)
	req.NoError(err)
	req.Equal("Ada L.", stored.DisplayName)
	req.Equal(&avatar, stored.AvatarURL)
	req.Equal("ada@example.com", stored.Email)

	err = repo.UpdateProfile(ctx, newStoredUser("nobody@example.com"))
	req.True(apperror.Is(err, apperror.TypeNotFound))
}

func TestBadgerUserRepository_FindByIDsSkipsMissing(t *testing.T) {
	req := require.New(t)
	repo := newBadgerRepo(t)
	ctx := context.Background()

	a := newStoredUser("a@example.com")
	b := newStoredUser("b@example.com")
	req.NoError(repo.Create(ctx, a))
	req.NoError(repo.Create(ctx, b))

	users, err := repo.FindByIDs(ctx, []string{a.ID, "missing", b.ID})
	req.NoError(err)
	req.Len(users, 2)
}
