package session

import "context"

// DefaultKey is the refresh scope used when a request carries neither a
// session cookie nor a session-key header. It is a map key, not a security
// boundary: anonymous callers simply share one refresh scope.
const DefaultKey = "anonymous"

// Credentials is the material stored per session key. Either field may be
// empty; emptiness is meaningful (no credential of that kind) and is not an
// error.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Store maps a session key to its credentials.
//
// Implementations must reflect externally updated values on re-read: the
// refresh coordinator's polling wait depends on observing an access token
// written by a concurrent winner.
type Store interface {
	// Get returns the credentials for key. A missing key yields zero
	// Credentials and a nil error.
	Get(ctx context.Context, key string) (Credentials, error)

	// Put replaces the credentials for key.
	Put(ctx context.Context, key string, creds Credentials) error

	// SetAccessToken overwrites only the access token, preserving the
	// refresh token and any remaining session lifetime.
	SetAccessToken(ctx context.Context, key, accessToken string) error

	// Delete removes the session entirely.
	Delete(ctx context.Context, key string) error
}
