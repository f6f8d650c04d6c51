package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenSigner_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	signer := NewTokenSigner(testSecret, clock.Now)

	now := clock.Now().Truncate(time.Second)
	token, err := signer.Sign(&Session{ID: "sess-1", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.ID != "sess-1" || claims.Subject != "user-1" || claims.Issuer != tokenIssuer {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("expected exp %s, got %s", now.Add(time.Hour), claims.ExpiresAt.Time)
	}
}

func TestTokenSigner_RejectsExpiredButStillYieldsSessionID(t *testing.T) {
	clock := newFakeClock()
	signer := NewTokenSigner(testSecret, clock.Now)

	now := clock.Now()
	token, err := signer.Sign(&Session{ID: "sess-1", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(2 * time.Minute)

	if _, err := signer.Parse(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
	if id, ok := signer.SessionID(token); !ok || id != "sess-1" {
		t.Errorf("expected session id from expired token, got %q %v", id, ok)
	}
}

func TestTokenSigner_RejectsForeignTokens(t *testing.T) {
	clock := newFakeClock()
	signer := NewTokenSigner(testSecret, clock.Now)
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ID: "s", Subject: "u", Issuer: tokenIssuer, ExpiresAt: exp,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID: "s", Subject: "u", Issuer: "someone-else", ExpiresAt: exp,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID: "s", Subject: "u", Issuer: tokenIssuer,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	for name, token := range map[string]string{
		"alg none":     none,
		"other issuer": otherIssuer,
		"no expiry":    noExpiry,
	} {
		if _, err := signer.Parse(token); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}

	if _, ok := signer.SessionID(none); ok {
		t.Error("expected unsigned token to yield no session id")
	}
}
