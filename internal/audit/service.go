package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records auth-flow events.
//
// Audit is internal-only and best-effort: callers log append failures and
// move on.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SessionKey == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogLogin records a successful login and the session it created.
func (s *Service) LogLogin(ctx context.Context, sessionKey, userID, ip string) error {
	return s.Append(ctx, Event{
		SessionKey: sessionKey,
		Type:       EventTypeLogin,
		UserID:     userID,
		IPAddress:  ip,
		Message:    "session created",
	})
}

// LogLogout records a session teardown.
func (s *Service) LogLogout(ctx context.Context, sessionKey, userID, ip string) error {
	return s.Append(ctx, Event{
		SessionKey: sessionKey,
		Type:       EventTypeLogout,
		UserID:     userID,
		IPAddress:  ip,
		Message:    "session destroyed",
	})
}

// LogRefreshFailed records a refresh attempt that did not produce a usable
// access token.
func (s *Service) LogRefreshFailed(ctx context.Context, sessionKey, cause string) error {
	return s.Append(ctx, Event{
		SessionKey: sessionKey,
		Type:       EventTypeRefreshFailed,
		Message:    "refresh failed",
		Metadata:   cause,
	})
}

// LogLoginRedirect records an unauthenticated caller being sent to login.
func (s *Service) LogLoginRedirect(ctx context.Context, sessionKey, location string) error {
	return s.Append(ctx, Event{
		SessionKey: sessionKey,
		Type:       EventTypeLoginRedirect,
		Message:    "redirected to login",
		Metadata:   location,
	})
}
