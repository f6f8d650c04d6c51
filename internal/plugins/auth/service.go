package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/sanitize"
	"github.com/keyxmakerx/parley/internal/validation"
)

// RevocationListener is told when a session is revoked so live connections
// bound to it can be closed.
type RevocationListener interface {
	SessionRevoked(sessionID string)
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (*Session, error)
	CurrentUser(ctx context.Context, userID string) (*User, error)
	UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*User, error)
	SetRevocationListener(l RevocationListener)
	Ping(ctx context.Context) error
}

// authService implements AuthService with argon2id hashing, signed tokens,
// and Redis-held sessions.
type authService struct {
	repo       UserRepository
	sessions   SessionStore
	signer     *TokenSigner
	hasher     *Hasher
	sessionTTL time.Duration
	now        func() time.Time
	listener   RevocationListener
}

// NewAuthService creates a new auth service with the given dependencies.
// now is the clock for issuing and validating sessions; nil means time.Now.
func NewAuthService(repo UserRepository, sessions SessionStore, signer *TokenSigner, hasher *Hasher, sessionTTL time.Duration, now func() time.Time) AuthService {
	if now == nil {
		now = time.Now
	}
	return &authService{
		repo:       repo,
		sessions:   sessions,
		signer:     signer,
		hasher:     hasher,
		sessionTTL: sessionTTL,
		now:        now,
	}
}

// SetRevocationListener registers the component that tears down live
// connections on logout. Must be called before serving traffic.
func (s *authService) SetRevocationListener(l RevocationListener) {
	s.listener = l
}

// Signup creates a new user account and signs them in. The email is
// normalized before the uniqueness check; the repository's unique index
// catches a concurrent signup that slips past it.
func (s *authService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	displayName := sanitize.Text(input.DisplayName)
	if err := validation.Var(displayName, "required,min=2,max=100", "display_name"); err != nil {
		return nil, err
	}

	// Check if email is already taken before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewDuplicateEmail()
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := s.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, passThrough(err, "creating user")
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueSession(ctx, user)
}

// Login authenticates a user by email and password. Unknown email and wrong
// password produce the same error after the same amount of hashing work.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(input.Email))
	if apperror.Is(err, apperror.TypeNotFound) {
		if err := s.hasher.VerifyDummy(ctx, input.Password); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("verifying password: %w", err))
		}
		return nil, apperror.NewInvalidCredentials()
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	ok, err := s.hasher.Verify(ctx, input.Password, user.PasswordHash)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("verifying password: %w", err))
	}
	if !ok {
		return nil, apperror.NewInvalidCredentials()
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return s.issueSession(ctx, user)
}

// Logout revokes the session behind token. Missing, malformed, expired, or
// already revoked tokens are a successful no-op.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	id, ok := s.signer.SessionID(token)
	if !ok {
		return nil
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking session: %w", err))
	}

	if s.listener != nil {
		s.listener.SessionRevoked(id)
	}

	slog.Debug("session revoked", slog.String("session_id", id))
	return nil
}

// ValidateSession checks the token signature and expiry, then confirms the
// session still exists in Redis and belongs to the token's subject.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperror.NewUnauthenticated("authentication required")
	}

	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, apperror.NewUnauthenticated("session expired or invalid")
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperror.NewUnauthenticated("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	if session.UserID != claims.Subject {
		return nil, apperror.NewUnauthenticated("session expired or invalid")
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, apperror.NewUnauthenticated("session expired or invalid")
	}

	return session, nil
}

// CurrentUser returns the profile of the authenticated user. A session whose
// user has since disappeared is treated as unauthenticated.
func (s *authService) CurrentUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if apperror.Is(err, apperror.TypeNotFound) {
		return nil, apperror.NewUnauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

// UpdateProfile changes display name and/or avatar. Email and password are
// not editable here. An empty avatar clears it.
func (s *authService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*User, error) {
	if input.DisplayName == nil && input.AvatarURL == nil {
		return nil, apperror.NewValidation("display_name or avatar_url is required")
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		name := sanitize.Text(*input.DisplayName)
		if err := validation.Var(name, "required,min=2,max=100", "display_name"); err != nil {
			return nil, err
		}
		user.DisplayName = name
	}

	if input.AvatarURL != nil {
		avatar := strings.TrimSpace(*input.AvatarURL)
		if avatar == "" {
			user.AvatarURL = nil
		} else {
			if err := validation.Var(avatar, "url,max=2048", "avatar_url"); err != nil {
				return nil, err
			}
			user.AvatarURL = &avatar
		}
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, passThrough(err, "updating profile")
	}

	slog.Info("profile updated", slog.String("user_id", user.ID))
	return user, nil
}

// Ping reports whether both the user store and Redis are reachable.
func (s *authService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	if err := s.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// issueSession stores a new session and signs a token for it. Expiry is
// truncated to whole seconds so the JWT exp and the stored ExpiresAt agree.
func (s *authService) issueSession(ctx context.Context, user *User) (*AuthResult, error) {
	now := s.now().UTC().Truncate(time.Second)
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.signer.Sign(session)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	return &AuthResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

// normalizeEmail lowercases and trims so lookups are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// passThrough keeps domain errors intact and hides everything else.
func passThrough(err error, action string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", action, err))
}
