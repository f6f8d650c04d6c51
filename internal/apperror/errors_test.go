package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := fmt.Errorf("adding friend: %w", NewAlreadyFriends())

	if !Is(err, TypeAlreadyFriends) {
		t.Error("expected wrapped error to match already_friends")
	}
	if Is(err, TypeSelfFriend) {
		t.Error("expected wrapped error not to match self_friend")
	}
	if Is(errors.New("plain"), TypeInternal) {
		t.Error("expected plain error not to match any kind")
	}
}

func TestSafeMessage_HidesInternalDetail(t *testing.T) {
	err := NewInternal(errors.New("dial tcp 10.0.0.3:3306: connection refused"))

	if got := SafeMessage(err); got != "An unexpected error occurred. Please try again." {
		t.Errorf("unexpected message %q", got)
	}
	if got := SafeMessage(errors.New("secret table name")); got != "an unexpected error occurred" {
		t.Errorf("unexpected message for foreign error %q", got)
	}
	if !errors.Is(err, err.Internal) {
		t.Error("expected Unwrap to expose the internal cause")
	}
}

func TestSafeCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", NewUnauthenticated("nope"), http.StatusUnauthorized},
		{"invalid credentials", NewInvalidCredentials(), http.StatusUnauthorized},
		{"duplicate email", NewDuplicateEmail(), http.StatusConflict},
		{"user not found", NewUserNotFound(), http.StatusNotFound},
		{"self friend", NewSelfFriend(), http.StatusBadRequest},
		{"already friends", NewAlreadyFriends(), http.StatusConflict},
		{"validation", NewValidation("bad"), http.StatusUnprocessableEntity},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeCode(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
