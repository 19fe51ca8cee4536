package auth

import (
	"context"
	"log/slog"

	"token-gateway/internal/audit"
)

// AuditAdapter bridges the resolver's audit hook to the shared
// audit.Service.
//
// This keeps the resolver from depending on persistence. Append failures
// are logged and dropped: audit is best-effort and must never fail an auth
// decision.

type AuditAdapter struct {
	Audit *audit.Service
	Log   *slog.Logger
}

func (a AuditAdapter) RefreshFailed(ctx context.Context, sessionKey string, cause error) {
	if a.Audit == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := a.Audit.LogRefreshFailed(ctx, sessionKey, msg); err != nil {
		a.logDrop("refresh_failed", err)
	}
}

func (a AuditAdapter) LoginRedirected(ctx context.Context, sessionKey, location string) {
	if a.Audit == nil {
		return
	}
	if err := a.Audit.LogLoginRedirect(ctx, sessionKey, location); err != nil {
		a.logDrop("login_redirect", err)
	}
}

func (a AuditAdapter) logDrop(event string, err error) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("audit event dropped", "event", event, "err", err)
}
