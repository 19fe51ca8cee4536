package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"token-gateway/internal/audit"
	"token-gateway/internal/config"
	"token-gateway/internal/refresh"
	"token-gateway/internal/session"
	"token-gateway/internal/token"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	tokens   *token.Manager
	sessions *session.MemoryStore
	repo     *audit.MemoryRepo
	router   *gin.Engine
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := token.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "gateway",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	sessions := session.NewMemoryStore()
	repo := audit.NewMemoryRepo()

	coord, err := refresh.NewCoordinator(
		config.RefreshConfig{PollInterval: 5 * time.Millisecond, PollAttempts: 4},
		refresh.NewMemoryLockTable(),
		sessions,
		tokens,
		refresh.NewLocalExchange(tokens, sessions),
		nil,
	)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	h := Handlers{
		Tokens:     tokens,
		Sessions:   sessions,
		Refresher:  coord,
		Audit:      audit.NewService(repo),
		CookieName: "session_id",
		CookieTTL:  time.Hour,
	}

	r := gin.New()
	r.GET("/auth/login", h.LoginPage)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/refresh", h.Refresh)

	return testEnv{tokens: tokens, sessions: sessions, repo: repo, router: r}
}

func TestLogin_CreatesSessionAndCookie(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"user_id":"user-1"}`))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		SessionID   string `json:"session_id"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID == "" || body.AccessToken == "" {
		t.Fatalf("expected session and token in response: %s", w.Body.String())
	}

	creds, _ := env.sessions.Get(context.Background(), body.SessionID)
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		t.Fatalf("expected both credentials stored, got %+v", creds)
	}

	cookieSet := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.Value == body.SessionID {
			cookieSet = true
			if !c.HttpOnly {
				t.Fatalf("session cookie must be http-only")
			}
		}
	}
	if !cookieSet {
		t.Fatalf("expected session cookie")
	}

	evs := env.repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeLogin {
		t.Fatalf("expected login audit event, got %+v", evs)
	}
}

func TestLogin_RejectsMissingUserID(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoginPage_EchoesReturnURL(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/login?returnUrl=%2Fv1%2Fme", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		ReturnURL string `json:"return_url"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.ReturnURL != "/v1/me" {
		t.Fatalf("expected return url echoed, got %q", body.ReturnURL)
	}
}

func TestRefresh_IssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t)

	pair, _ := env.tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = env.sessions.Put(context.Background(), "sess-1", session.Credentials{RefreshToken: pair.RefreshToken})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.UserID != "user-1" || body.AccessToken == "" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
	if _, err := env.tokens.Verify(body.AccessToken, token.TypeAccess, time.Now()); err != nil {
		t.Fatalf("returned token invalid: %v", err)
	}
}

func TestRefresh_WithoutSessionIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogout_DestroysSession(t *testing.T) {
	env := newTestEnv(t)

	_ = env.sessions.Put(context.Background(), "sess-1", session.Credentials{RefreshToken: "r1"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	creds, _ := env.sessions.Get(context.Background(), "sess-1")
	if creds.RefreshToken != "" {
		t.Fatalf("expected session destroyed, got %+v", creds)
	}
}
