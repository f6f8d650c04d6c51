package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
)

// stubAuth accepts a fixed set of bearer tokens.
type stubAuth struct {
	sessions map[string]*auth.Session
}

func (s *stubAuth) Signup(ctx context.Context, input auth.SignupInput) (*auth.AuthResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAuth) Login(ctx context.Context, input auth.LoginInput) (*auth.AuthResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAuth) Logout(ctx context.Context, token string) error { return nil }

func (s *stubAuth) ValidateSession(ctx context.Context, token string) (*auth.Session, error) {
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, apperror.NewUnauthenticated("session expired or invalid")
}

func (s *stubAuth) CurrentUser(ctx context.Context, userID string) (*auth.User, error) {
	return nil, apperror.NewUnauthenticated("session expired or invalid")
}

func (s *stubAuth) UpdateProfile(ctx context.Context, userID string, input auth.UpdateProfileInput) (*auth.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAuth) SetRevocationListener(l auth.RevocationListener) {}

func (s *stubAuth) Ping(ctx context.Context) error { return nil }

type liveServer struct {
	hub *Hub
	url string
}

func newLiveServer(t *testing.T, graph FriendGraph, sessions map[string]*auth.Session) *liveServer {
	t.Helper()

	hub := NewHub(NewRegistry(4), graph, slog.Default())
	cfg := ConnConfig{SendBuffer: 16, PongWait: 5 * time.Second, WriteWait: time.Second}

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.JSON(apperror.SafeCode(err), map[string]string{"message": apperror.SafeMessage(err)})
	}
	RegisterRoutes(e, NewHandler(hub, cfg, "http://localhost", slog.Default()), &stubAuth{sessions: sessions})

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return &liveServer{hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (s *liveServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(echo.HeaderAuthorization, "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readEvent reads the next frame as a generic map.
func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

// nextOfType skips frames until one of type typ arrives. Two friends
// connecting together may each see the other's online event twice.
func nextOfType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		ev := readEvent(t, ws)
		if ev["type"] == typ {
			return ev
		}
		require.Equal(t, EventPresenceOnline, ev["type"], "unexpected frame %v", ev)
	}
}

func session(id, userID string, ttl time.Duration) *auth.Session {
	return &auth.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(ttl)}
}

func TestConn_PresenceAndMessagesEndToEnd(t *testing.T) {
	req := require.New(t)
	srv := newLiveServer(t, newFakeGraph([2]string{"alice", "bob"}), map[string]*auth.Session{
		"alice-token": session("s-alice", "alice", time.Hour),
		"bob-token":   session("s-bob", "bob", time.Hour),
	})

	bob := srv.dial(t, "bob-token")
	alice := srv.dial(t, "alice-token")

	// Whichever side registers second, each learns the other is online.
	req.Equal(map[string]any{"type": "presence.online", "userId": "alice"}, readEvent(t, bob))
	req.Equal(map[string]any{"type": "presence.online", "userId": "bob"}, readEvent(t, alice))

	req.NoError(alice.WriteJSON(map[string]string{"type": "message.send", "to": "bob", "body": "hello"}))
	msg := nextOfType(t, bob, "message.new")
	req.Equal("alice", msg["from"])
	req.Equal("hello", msg["body"])

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := nextOfType(t, alice, "error")
	req.Equal(codeBadFrame, bad["code"])

	req.NoError(alice.WriteJSON(map[string]string{"type": "typing"}))
	unknown := readEvent(t, alice)
	req.Equal(codeUnknownType, unknown["code"])

	req.NoError(alice.Close())
	req.Equal(map[string]any{"type": "presence.offline", "userId": "alice"}, nextOfType(t, bob, "presence.offline"))
}

func TestConn_ClosesWhenSessionExpires(t *testing.T) {
	srv := newLiveServer(t, newFakeGraph(), map[string]*auth.Session{
		"short-token": session("s-short", "carol", 300*time.Millisecond),
	})

	ws := srv.dial(t, "short-token")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	require.Eventually(t, func() bool {
		return !srv.hub.Registry().IsOnline("carol")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConn_RejectsUnauthenticatedUpgrade(t *testing.T) {
	srv := newLiveServer(t, newFakeGraph(), nil)

	header := http.Header{}
	header.Set(echo.HeaderAuthorization, "Bearer forged")
	_, resp, err := websocket.DefaultDialer.Dial(srv.url, header)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConn_RevokedSessionIsDisconnected(t *testing.T) {
	srv := newLiveServer(t, newFakeGraph(), map[string]*auth.Session{
		"alice-token": session("s-alice", "alice", time.Hour),
	})

	ws := srv.dial(t, "alice-token")
	require.Eventually(t, func() bool {
		return srv.hub.Registry().IsOnline("alice")
	}, 2*time.Second, 10*time.Millisecond)

	srv.hub.SessionRevoked("s-alice")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return !srv.hub.Registry().IsOnline("alice")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSameOrigin(t *testing.T) {
	check := sameOrigin("https://chat.example.com")

	cases := map[string]bool{
		"":                         true,
		"https://chat.example.com": true,
		"https://evil.example.com": false,
		"http://CHAT.example.com":  true,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://internal:8080/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		require.Equal(t, want, check(r), "origin %q", origin)
	}
}
