package audit

import "time"

// Event is an immutable, append-only record of an auth-flow outcome.
//
// Invariants:
// - Events are never updated or deleted.
// - session_key is required; it is the unit everything in the gateway is
//   scoped by.
// - actor and ip capture are best-effort; never block auth flows on audit
//   failures.
//
// Storage (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID         string `json:"id" db:"id"`
	SessionKey string `json:"session_key" db:"session_key"`

	// Type indicates the auth-flow category of the record.
	Type EventType `json:"type" db:"type"`

	// UserID is the authenticated user involved, when known.
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLogin         EventType = "login"
	EventTypeLogout        EventType = "logout"
	EventTypeRefreshFailed EventType = "refresh_failed"
	EventTypeLoginRedirect EventType = "login_redirect"
)
