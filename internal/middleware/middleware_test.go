package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parley/internal/apperror"
)

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func run(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	err := mw(ok)(e.NewContext(req, rec))
	return rec, err
}

func httpStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestRateLimiter_Limit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewRateLimiter(rdb, slog.Default())
	limiter.now = func() time.Time { return time.Unix(1_700_000_010, 0) }
	mw := limiter.Limit("login", 2, time.Minute)

	newReq := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5000"
		return req
	}

	for i := 0; i < 2; i++ {
		if _, err := run(mw, newReq("203.0.113.7")); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}

	rec, err := run(mw, newReq("203.0.113.7"))
	if httpStatus(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Other clients have their own budget.
	if _, err := run(mw, newReq("198.51.100.1")); err != nil {
		t.Errorf("expected a different IP to pass, got %v", err)
	}

	// A new window resets the count.
	limiter.now = func() time.Time { return time.Unix(1_700_000_010, 0).Add(time.Minute) }
	if _, err := run(mw, newReq("203.0.113.7")); err != nil {
		t.Errorf("expected next window to pass, got %v", err)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	mw := NewRateLimiter(rdb, slog.Default()).Limit("signup", 1, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := run(mw, httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)); err != nil {
			t.Fatalf("expected requests through while redis is down, got %v", err)
		}
	}
}

func TestTrustedProxies(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct client", "203.0.113.9:4000", nil, "203.0.113.9"},
		{"untrusted peer cannot spoof", "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted proxy real ip", "10.1.2.3:80", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"trusted proxy forwarded for", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "198.51.100.5, 10.1.2.3"}, "198.51.100.5"},
		{"trusted proxy no headers", "10.1.2.3:80", nil, "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extract(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCookieRequestGuard(t *testing.T) {
	mw := CookieRequestGuard("parley_session")

	newReq := func(method, contentType string, cookie bool) *http.Request {
		req := httptest.NewRequest(method, "/api/auth/update-profile", strings.NewReader("{}"))
		if contentType != "" {
			req.Header.Set(echo.HeaderContentType, contentType)
		}
		if cookie {
			req.AddCookie(&http.Cookie{Name: "parley_session", Value: "t"})
		}
		return req
	}

	if _, err := run(mw, newReq(http.MethodPut, "application/x-www-form-urlencoded", true)); httpStatus(err) != http.StatusForbidden {
		t.Errorf("expected form post with cookie rejected, got %v", err)
	}
	if _, err := run(mw, newReq(http.MethodPut, "application/json; charset=utf-8", true)); err != nil {
		t.Errorf("expected JSON with cookie accepted, got %v", err)
	}
	if _, err := run(mw, newReq(http.MethodPut, "text/plain", false)); err != nil {
		t.Errorf("expected cookieless request accepted, got %v", err)
	}
	if _, err := run(mw, newReq(http.MethodGet, "", true)); err != nil {
		t.Errorf("expected GET accepted, got %v", err)
	}

	req := newReq(http.MethodPost, "", true)
	req.Header.Set(echo.HeaderXRequestedWith, "XMLHttpRequest")
	if _, err := run(mw, req); err != nil {
		t.Errorf("expected X-Requested-With accepted, got %v", err)
	}
}

func TestCORS(t *testing.T) {
	mw := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true}, slog.Default())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/friends", nil)
	preflight.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec, err := run(mw, preflight)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowCredentials) != "true" {
		t.Error("expected credentials allowed")
	}

	foreign := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	foreign.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec, _ = run(mw, foreign)
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Error("expected no CORS headers for a foreign origin")
	}
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := Recovery(slog.Default())(func(echo.Context) error { panic("boom") })(c)
	if !apperror.Is(err, apperror.TypeInternal) {
		t.Fatalf("expected internal app error, got %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec, _ := run(SecurityHeaders(false), httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS over plain http")
	}
}
