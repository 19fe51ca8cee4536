package auth

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"token-gateway/internal/session"
	"token-gateway/internal/token"
)

// Refresher is the slice of the refresh coordinator the resolver needs.
type Refresher interface {
	Refresh(ctx context.Context, sessionKey string) (token.Claims, error)
}

// AuditSink receives auth-flow outcomes worth a trail. Implementations are
// best-effort; the resolver never fails a request over an audit error.
type AuditSink interface {
	RefreshFailed(ctx context.Context, sessionKey string, cause error)
	LoginRedirected(ctx context.Context, sessionKey, location string)
}

// Resolver decides, per request, whether the caller is authenticated:
// validate the stored access token, else refresh through the coordinator,
// else fail.
type Resolver struct {
	tokens    *token.Manager
	store     session.Store
	refresher Refresher
	audit     AuditSink // optional
	log       *slog.Logger

	loginPath string
	clock     func() time.Time
}

func NewResolver(tokens *token.Manager, store session.Store, refresher Refresher, loginPath string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if loginPath == "" {
		loginPath = "/auth/login"
	}
	return &Resolver{
		tokens:    tokens,
		store:     store,
		refresher: refresher,
		log:       log,
		loginPath: loginPath,
		clock:     time.Now,
	}
}

// SetAuditSink attaches an optional audit trail.
func (r *Resolver) SetAuditSink(sink AuditSink) { r.audit = sink }

// ResolveUser returns the caller's claims, or nil with a nil error when no
// authentication attempt could be made (no credentials at all).
//
// A present-but-unusable access token triggers a refresh when a refresh
// token exists; otherwise its validation failure is propagated.
func (r *Resolver) ResolveUser(ctx context.Context, sessionKey string) (*token.Claims, error) {
	creds, err := r.store.Get(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	if creds.AccessToken != "" {
		claims, verr := r.tokens.Verify(creds.AccessToken, token.TypeAccess, r.clock())
		if verr == nil {
			return &claims, nil
		}
		if creds.RefreshToken == "" {
			return nil, verr
		}
		r.log.Debug("access token unusable, refreshing", "session_key", sessionKey, "cause", verr)
		return r.refreshClaims(ctx, sessionKey)
	}

	if creds.RefreshToken != "" {
		return r.refreshClaims(ctx, sessionKey)
	}

	return nil, nil
}

func (r *Resolver) refreshClaims(ctx context.Context, sessionKey string) (*token.Claims, error) {
	claims, err := r.refresher.Refresh(ctx, sessionKey)
	if err != nil {
		if r.audit != nil {
			r.audit.RefreshFailed(ctx, sessionKey, err)
		}
		return nil, err
	}
	return &claims, nil
}

// IsAuthenticated degrades every failure to false; nothing is surfaced.
func (r *Resolver) IsAuthenticated(ctx context.Context, sessionKey string) bool {
	claims, err := r.ResolveUser(ctx, sessionKey)
	return err == nil && claims != nil
}

// RequireAuth resolves the caller and converts "not authenticated" into an
// explicit redirect outcome carrying the original destination, so the caller
// lands back where they started after logging in. Failures are logged here
// and never propagated as errors; a protected request either proceeds or is
// redirected.
func (r *Resolver) RequireAuth(ctx context.Context, sessionKey, originalURI string) Outcome {
	claims, err := r.ResolveUser(ctx, sessionKey)
	if err == nil && claims != nil {
		return Authenticated(claims)
	}

	if err != nil {
		r.log.Info("authentication failed, redirecting to login",
			"session_key", sessionKey,
			"err", err,
		)
	}

	location := r.loginPath + "?returnUrl=" + url.QueryEscape(originalURI)
	if r.audit != nil {
		r.audit.LoginRedirected(ctx, sessionKey, location)
	}
	return RedirectRequired(location)
}
