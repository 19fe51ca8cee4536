package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"token-gateway/internal/config"
	"token-gateway/internal/refresh"
	"token-gateway/internal/session"
	"token-gateway/internal/token"
)

func testTokens(t *testing.T, accessTTL time.Duration) *token.Manager {
	t.Helper()
	m, err := token.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "gateway",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: 24 * time.Hour,
		ExpiryBuffer:    30 * time.Second,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	claims token.Claims
	err    error
}

func (s *stubRefresher) Refresh(ctx context.Context, sessionKey string) (token.Claims, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.claims, s.err
}

type recordingSink struct {
	refreshFailures []string
	redirects       []string
}

func (r *recordingSink) RefreshFailed(ctx context.Context, sessionKey string, cause error) {
	r.refreshFailures = append(r.refreshFailures, sessionKey)
}

func (r *recordingSink) LoginRedirected(ctx context.Context, sessionKey, location string) {
	r.redirects = append(r.redirects, location)
}

func TestResolveUser_NoCredentialsIsNilWithoutError(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	r := NewResolver(tokens, session.NewMemoryStore(), &stubRefresher{}, "/auth/login", nil)

	claims, err := r.ResolveUser(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if claims != nil {
		t.Fatalf("expected nil claims, got %+v", claims)
	}
}

func TestResolveUser_ValidAccessToken(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	store := session.NewMemoryStore()
	ref := &stubRefresher{}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	pair, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})

	claims, err := r.ResolveUser(context.Background(), "sess-1")
	if err != nil || claims == nil {
		t.Fatalf("expected claims, got %v / %v", claims, err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if ref.calls != 0 {
		t.Fatalf("refresher should not run for a valid token")
	}
}

func TestResolveUser_NearExpiryTriggersRefresh(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	// Same key material, but tokens that are born inside the expiry buffer.
	shortLived := testTokens(t, 10*time.Second)

	store := session.NewMemoryStore()
	fresh, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	ref := &stubRefresher{claims: token.Claims{UserID: "user-1", SessionID: "sess-1"}}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	stale, _ := shortLived.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{
		AccessToken:  stale.AccessToken,
		RefreshToken: fresh.RefreshToken,
	})

	claims, err := r.ResolveUser(context.Background(), "sess-1")
	if err != nil || claims == nil {
		t.Fatalf("expected refreshed claims, got %v / %v", claims, err)
	}
	if ref.calls != 1 {
		t.Fatalf("expected one refresh, got %d", ref.calls)
	}
}

func TestResolveUser_InvalidAccessWithoutRefreshPropagates(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	shortLived := testTokens(t, 10*time.Second)

	store := session.NewMemoryStore()
	ref := &stubRefresher{}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	stale, _ := shortLived.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{AccessToken: stale.AccessToken})

	_, err := r.ResolveUser(context.Background(), "sess-1")
	if !errors.Is(err, token.ErrAboutToExpire) {
		t.Fatalf("expected ErrAboutToExpire, got %v", err)
	}
	if ref.calls != 0 {
		t.Fatalf("refresher must not run without a refresh token")
	}
}

func TestResolveUser_RefreshOnlySession(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	store := session.NewMemoryStore()
	ref := &stubRefresher{claims: token.Claims{UserID: "user-1", SessionID: "sess-1"}}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	pair, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{RefreshToken: pair.RefreshToken})

	claims, err := r.ResolveUser(context.Background(), "sess-1")
	if err != nil || claims == nil {
		t.Fatalf("expected claims via refresh, got %v / %v", claims, err)
	}
	if ref.calls != 1 {
		t.Fatalf("expected one refresh, got %d", ref.calls)
	}
}

func TestResolveUser_RefreshFailureIsAudited(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	store := session.NewMemoryStore()
	refErr := errors.New("exchange down")
	ref := &stubRefresher{err: refErr}
	sink := &recordingSink{}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)
	r.SetAuditSink(sink)

	pair, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{RefreshToken: pair.RefreshToken})

	_, err := r.ResolveUser(context.Background(), "sess-1")
	if !errors.Is(err, refErr) {
		t.Fatalf("expected refresher error, got %v", err)
	}
	if len(sink.refreshFailures) != 1 || sink.refreshFailures[0] != "sess-1" {
		t.Fatalf("expected audited refresh failure, got %v", sink.refreshFailures)
	}
}

func TestNearExpiryWithFailingExchangeEndsInRedirect(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	shortLived := testTokens(t, 10*time.Second)

	store := session.NewMemoryStore()
	ref := &stubRefresher{err: &refresh.ExchangeError{Status: 503}}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	stale, _ := shortLived.IssuePair(time.Now(), "user-1", "sess-1")
	fresh, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{
		AccessToken:  stale.AccessToken,
		RefreshToken: fresh.RefreshToken,
	})

	_, err := r.ResolveUser(context.Background(), "sess-1")
	var xerr *refresh.ExchangeError
	if !errors.As(err, &xerr) || xerr.Status != 503 {
		t.Fatalf("expected ExchangeError with status 503, got %v", err)
	}

	out := r.RequireAuth(context.Background(), "sess-1", "/v1/me")
	if out.State != StateRedirect {
		t.Fatalf("expected redirect after failed exchange, got %v", out.State)
	}
}

func TestIsAuthenticated_SwallowsFailures(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	store := session.NewMemoryStore()
	ref := &stubRefresher{err: errors.New("exchange down")}
	r := NewResolver(tokens, store, ref, "/auth/login", nil)

	pair, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{RefreshToken: pair.RefreshToken})

	if r.IsAuthenticated(context.Background(), "sess-1") {
		t.Fatalf("expected false on refresh failure")
	}
	if r.IsAuthenticated(context.Background(), "no-such-session") {
		t.Fatalf("expected false with no credentials")
	}
}

func TestRequireAuth_RedirectPreservesDestination(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	sink := &recordingSink{}
	r := NewResolver(tokens, session.NewMemoryStore(), &stubRefresher{}, "/auth/login", nil)
	r.SetAuditSink(sink)

	out := r.RequireAuth(context.Background(), "sess-1", "/v1/reports?from=2024-01-01")
	if out.State != StateRedirect {
		t.Fatalf("expected redirect outcome, got %v", out.State)
	}
	if out.RedirectStatus != 302 {
		t.Fatalf("expected 302, got %d", out.RedirectStatus)
	}
	want := "/auth/login?returnUrl=%2Fv1%2Freports%3Ffrom%3D2024-01-01"
	if out.Location != want {
		t.Fatalf("expected %q, got %q", want, out.Location)
	}
	if len(sink.redirects) != 1 || sink.redirects[0] != want {
		t.Fatalf("expected audited redirect, got %v", sink.redirects)
	}
}

func TestRequireAuth_AuthenticatedOutcome(t *testing.T) {
	tokens := testTokens(t, 15*time.Minute)
	store := session.NewMemoryStore()
	r := NewResolver(tokens, store, &stubRefresher{}, "/auth/login", nil)

	pair, _ := tokens.IssuePair(time.Now(), "user-1", "sess-1")
	_ = store.Put(context.Background(), "sess-1", session.Credentials{AccessToken: pair.AccessToken})

	out := r.RequireAuth(context.Background(), "sess-1", "/v1/me")
	if out.State != StateAuthenticated || out.Claims == nil {
		t.Fatalf("expected authenticated outcome, got %+v", out)
	}
	if out.Claims.UserID != "user-1" {
		t.Fatalf("unexpected claims: %+v", out.Claims)
	}
}
