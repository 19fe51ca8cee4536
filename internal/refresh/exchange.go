package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"token-gateway/internal/config"
	"token-gateway/internal/session"
	"token-gateway/internal/token"

	"github.com/hashicorp/go-retryablehttp"
)

// Exchange performs the round trip trading a refresh token for a new access
// token. On success the new access token must be readable from the
// credential store before Exchange returns; the coordinator re-reads the
// store rather than receiving the token directly.
//
// The returned status is the auth service's verdict (HTTP status or
// equivalent); err is reserved for transport-level failures.
type Exchange interface {
	Exchange(ctx context.Context, sessionKey, refreshToken string) (status int, err error)
}

// ExchangeError reports a refresh exchange that ran but did not succeed.
type ExchangeError struct {
	Status int
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh: exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh: exchange failed with status %d", e.Status)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// HTTPExchange calls a remote auth service. Retries are bounded and only
// cover transport-level failures and 5xx responses (retryablehttp's default
// policy); a 4xx verdict is final.
type HTTPExchange struct {
	url    string
	client *retryablehttp.Client
	store  session.Store
}

func NewHTTPExchange(cfg config.RefreshConfig, store session.Store) (*HTTPExchange, error) {
	if cfg.ExchangeURL == "" {
		return nil, fmt.Errorf("refresh: exchange url is required")
	}
	if store == nil {
		return nil, fmt.Errorf("refresh: store is required")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = cfg.ExchangeTimeout
	client.Logger = nil // exchange outcomes are logged by the coordinator

	return &HTTPExchange{url: cfg.ExchangeURL, client: client, store: store}, nil
}

type exchangeRequest struct {
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
}

func (e *HTTPExchange) Exchange(ctx context.Context, sessionKey, refreshToken string) (int, error) {
	body, err := json.Marshal(exchangeRequest{RefreshToken: refreshToken, SessionID: sessionKey})
	if err != nil {
		return 0, fmt.Errorf("refresh: encode exchange request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("refresh: build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("refresh: exchange round trip: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	var out exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, fmt.Errorf("refresh: decode exchange response: %w", err)
	}
	if out.AccessToken == "" {
		// Success verdict with an empty body; the coordinator will surface
		// this as a missing issued credential when it re-reads the store.
		return resp.StatusCode, nil
	}
	if err := e.store.SetAccessToken(ctx, sessionKey, out.AccessToken); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// LocalExchange is the single-node mode: the gateway is its own auth
// service. The refresh token is verified and a fresh access token is minted
// into the store directly.
type LocalExchange struct {
	tokens *token.Manager
	store  session.Store
	clock  func() time.Time
}

func NewLocalExchange(tokens *token.Manager, store session.Store) *LocalExchange {
	return &LocalExchange{tokens: tokens, store: store, clock: time.Now}
}

func (e *LocalExchange) Exchange(ctx context.Context, sessionKey, refreshToken string) (int, error) {
	now := e.clock()
	claims, err := e.tokens.Verify(refreshToken, token.TypeRefresh, now)
	if err != nil {
		return http.StatusUnauthorized, nil
	}
	if claims.SessionID != sessionKey {
		// A refresh token must not mint access tokens for someone else's
		// session scope.
		return http.StatusForbidden, nil
	}

	access, err := e.tokens.IssueAccess(now, claims.UserID, claims.SessionID)
	if err != nil {
		return http.StatusInternalServerError, nil
	}
	if err := e.store.SetAccessToken(ctx, sessionKey, access); err != nil {
		return 0, err
	}
	return http.StatusOK, nil
}
