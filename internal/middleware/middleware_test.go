package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"group-decision/internal/auth"
	"group-decision/internal/config"
)

type stubValidator struct {
	claims *auth.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	return s.claims, s.err
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserID(r)
		w.Write([]byte(userID))
	})
}

func TestAuthenticate(t *testing.T) {
	valid := stubValidator{claims: &auth.JWTClaims{UserID: "member-1"}}

	tests := []struct {
		name       string
		validator  TokenValidator
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", valid, "Bearer abc", http.StatusOK, "member-1"},
		{"lowercase scheme", valid, "bearer abc", http.StatusOK, "member-1"},
		{"missing header", valid, "", http.StatusUnauthorized, ""},
		{"wrong scheme", valid, "Basic abc", http.StatusUnauthorized, ""},
		{"empty token", valid, "Bearer ", http.StatusUnauthorized, ""},
		{"rejected token", stubValidator{err: errors.New("bad")}, "Bearer abc", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(tt.validator).Authenticate(echoUser()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, expected %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, expected %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, Requests: 2, Duration: time.Minute})
	defer rl.Close()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, expected 429", code)
	}
	if code := call("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client: status = %d, expected 200", code)
	}

	clock = clock.Add(time.Minute)
	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Errorf("after the window: status = %d, expected 200", code)
	}
}

func TestClientKeyPrefersMember(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientKey(req); got != "ip:203.0.113.9" {
		t.Errorf("clientKey() = %q", got)
	}

	req = req.WithContext(WithUser(req.Context(), "member-1", ""))
	if got := clientKey(req); got != "user:member-1" {
		t.Errorf("clientKey() = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	cors := NewCORSMiddleware(&config.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	called := false
	handler := cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/decisions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight status = %d, handler called = %v", rec.Code, called)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Allow-Methods = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should not be allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("missing %s", header)
		}
	}
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, expected the first written 409", rec.Code)
	}
}
