package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"token-gateway/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failure taxonomy. Callers branch on these with errors.Is;
// anything else coming out of Verify is a malformed-token parse error.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrInvalidIssuer    = errors.New("token: issuer mismatch")
	ErrExpired          = errors.New("token: expired")

	// ErrAboutToExpire marks a cryptographically valid token whose remaining
	// lifetime is under the expiry buffer. Treated the same as invalid so
	// callers refresh proactively instead of racing the real expiry.
	ErrAboutToExpire = errors.New("token: about to expire")

	ErrWrongType = errors.New("token: token_type mismatch")

	// ErrVerifyOnly is returned by IssuePair when the manager was built from
	// a public key and cannot sign.
	ErrVerifyOnly = errors.New("token: verify-only manager cannot issue")
)

// Manager verifies (and, in HS256 mode, issues) gateway credentials.
// Verify is a pure function of its inputs plus the supplied clock value;
// it performs no I/O.
type Manager struct {
	method    jwt.SigningMethod
	secret    []byte
	publicKey *rsa.PublicKey

	issuer       string
	audience     string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	expiryBuffer time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	m := &Manager{
		issuer:       cfg.JWTIssuer,
		audience:     cfg.JWTAudience,
		accessTTL:    cfg.AccessTokenTTL,
		refreshTTL:   cfg.RefreshTokenTTL,
		expiryBuffer: cfg.ExpiryBuffer,
	}
	if m.expiryBuffer <= 0 {
		m.expiryBuffer = 30 * time.Second
	}

	switch {
	case cfg.JWTSecret != "" && cfg.JWTPublicKeyPEM != "":
		return nil, errors.New("token: secret and public key are mutually exclusive")
	case cfg.JWTSecret != "":
		m.method = jwt.SigningMethodHS256
		m.secret = []byte(cfg.JWTSecret)
	case cfg.JWTPublicKeyPEM != "":
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("token: parse public key: %w", err)
		}
		m.method = jwt.SigningMethodRS256
		m.publicKey = pub
	default:
		return nil, errors.New("token: a JWT secret or public key is required")
	}
	return m, nil
}

type Pair struct {
	AccessToken  string
	RefreshToken string
}

// IssuePair mints an access+refresh token pair bound to one session.
// Only available in HS256 mode; RS256 deployments verify tokens issued
// elsewhere.
func (m *Manager) IssuePair(now time.Time, userID, sessionID string) (Pair, error) {
	if m.secret == nil {
		return Pair{}, ErrVerifyOnly
	}

	access, err := m.issue(now, TypeAccess, userID, sessionID, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.issue(now, TypeRefresh, userID, sessionID, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess mints a single access token against an existing session,
// leaving the session's refresh token untouched. Used by the local refresh
// exchange.
func (m *Manager) IssueAccess(now time.Time, userID, sessionID string) (string, error) {
	if m.secret == nil {
		return "", ErrVerifyOnly
	}
	return m.issue(now, TypeAccess, userID, sessionID, m.accessTTL)
}

// Verify checks signature, issuer, audience, expiry, and the custom claims.
// For access tokens the expiry check is forward-looking: a token inside the
// expiry buffer fails with ErrAboutToExpire even though it is still
// cryptographically valid.
func (m *Manager) Verify(tokenString string, expected Type, now time.Time) (Claims, error) {
	var claims Claims

	// Signature and structure only; claims are validated explicitly below
	// so the caller-supplied clock is authoritative.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if m.secret != nil {
			return m.secret, nil
		}
		return m.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, ErrInvalidSignature
		}
		return Claims{}, fmt.Errorf("token: parse: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(5 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	if err := jwt.NewValidator(opts...).Validate(claims.RegisteredClaims); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return Claims{}, ErrInvalidIssuer
		default:
			return Claims{}, fmt.Errorf("token: claims: %w", err)
		}
	}

	if claims.TokenType != expected {
		return Claims{}, ErrWrongType
	}
	if claims.UserID == "" {
		return Claims{}, errors.New("token: user_id missing")
	}
	if claims.SessionID == "" {
		return Claims{}, errors.New("token: session_id missing")
	}

	// Forward-looking expiry: access tokens only. Refresh tokens are used
	// exactly once per exchange, so a buffer would just waste lifetime.
	if expected == TypeAccess && claims.ExpiresAt != nil {
		if claims.ExpiresAt.Time.Sub(now) < m.expiryBuffer {
			return Claims{}, ErrAboutToExpire
		}
	}

	return claims, nil
}

func (m *Manager) issue(now time.Time, typ Type, userID, sessionID string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:    userID,
		SessionID: sessionID,
		TokenType: typ,
	}

	t := jwt.NewWithClaims(m.method, claims)
	return t.SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
