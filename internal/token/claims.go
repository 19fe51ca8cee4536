package token

import "github.com/golang-jwt/jwt/v5"

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims are the only supported JWT claims shape for this gateway.
// SessionID scopes refresh deduplication: all requests carrying the same
// session id share one logical refresh scope.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	TokenType Type   `json:"token_type"`
}
