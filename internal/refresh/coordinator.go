package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"token-gateway/internal/config"
	"token-gateway/internal/session"
	"token-gateway/internal/token"
)

var (
	ErrMissingRefreshToken = errors.New("refresh: no refresh token for session")

	// ErrMissingIssuedCredential means the exchange reported success but no
	// access token became readable from the credential store.
	ErrMissingIssuedCredential = errors.New("refresh: no access token readable after exchange")

	// ErrPollTimeout is internal to the coordinator: a waiter exhausted its
	// attempt budget. Callers never see it; the waiter falls through to its
	// own exchange instead.
	ErrPollTimeout = errors.New("refresh: wait for concurrent refresh timed out")
)

// Coordinator deduplicates concurrent refresh attempts per session key.
//
// The first caller for a key runs the exchange; callers arriving while it is
// marked in the lock table poll the credential store, re-validating whatever
// access token is externally visible. The coupling is observational: waiters
// never receive the winner's result directly.
//
// A waiter that exhausts its poll budget performs its own exchange rather
// than failing. This is best-effort deduplication, not mutual exclusion:
// under sustained contention more than one exchange can be in flight for the
// same key.
type Coordinator struct {
	locks    LockTable
	store    session.Store
	tokens   *token.Manager
	exchange Exchange
	log      *slog.Logger

	pollInterval time.Duration
	pollAttempts int

	clock func() time.Time
}

func NewCoordinator(cfg config.RefreshConfig, locks LockTable, store session.Store, tokens *token.Manager, exchange Exchange, log *slog.Logger) (*Coordinator, error) {
	if locks == nil || store == nil || tokens == nil || exchange == nil {
		return nil, errors.New("refresh: locks, store, tokens, and exchange are all required")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		locks:        locks,
		store:        store,
		tokens:       tokens,
		exchange:     exchange,
		log:          log,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		clock:        time.Now,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 100 * time.Millisecond
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = 30
	}
	return c, nil
}

// Refresh obtains a usable access token for sessionKey, deduplicating
// against concurrent attempts. On success the new token has already been
// validated and its claims are returned; the token itself is readable from
// the credential store.
func (c *Coordinator) Refresh(ctx context.Context, sessionKey string) (token.Claims, error) {
	acquired, err := c.locks.TryAcquire(ctx, sessionKey)
	if err != nil {
		return token.Claims{}, fmt.Errorf("refresh: acquire lock for %q: %w", sessionKey, err)
	}

	if !acquired {
		claims, err := c.awaitConcurrent(ctx, sessionKey)
		if err == nil {
			return claims, nil
		}
		if !errors.Is(err, ErrPollTimeout) {
			return token.Claims{}, err
		}
		c.log.Warn("refresh wait exhausted, performing independent exchange",
			"session_key", sessionKey,
			"attempts", c.pollAttempts,
		)
		return c.doExchange(ctx, sessionKey)
	}

	// The unmark must survive request cancellation; a leaked entry would
	// send every later caller for this key into the polling path.
	defer func() {
		if relErr := c.locks.Release(context.WithoutCancel(ctx), sessionKey); relErr != nil {
			c.log.Error("refresh lock release failed", "session_key", sessionKey, "err", relErr)
		}
	}()

	return c.doExchange(ctx, sessionKey)
}

// awaitConcurrent polls the store until a valid access token appears,
// presumably written by whoever holds the lock.
func (c *Coordinator) awaitConcurrent(ctx context.Context, sessionKey string) (token.Claims, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for i := 0; i < c.pollAttempts; i++ {
		creds, err := c.store.Get(ctx, sessionKey)
		if err != nil {
			return token.Claims{}, fmt.Errorf("refresh: poll credential store: %w", err)
		}
		if creds.AccessToken != "" {
			if claims, err := c.tokens.Verify(creds.AccessToken, token.TypeAccess, c.clock()); err == nil {
				return claims, nil
			}
		}

		timer.Reset(c.pollInterval)
		select {
		case <-ctx.Done():
			return token.Claims{}, ctx.Err()
		case <-timer.C:
		}
	}
	return token.Claims{}, ErrPollTimeout
}

func (c *Coordinator) doExchange(ctx context.Context, sessionKey string) (token.Claims, error) {
	creds, err := c.store.Get(ctx, sessionKey)
	if err != nil {
		return token.Claims{}, fmt.Errorf("refresh: read credential store: %w", err)
	}
	if creds.RefreshToken == "" {
		return token.Claims{}, ErrMissingRefreshToken
	}

	status, err := c.exchange.Exchange(ctx, sessionKey, creds.RefreshToken)
	if err != nil {
		return token.Claims{}, &ExchangeError{Status: status, Err: err}
	}
	if status < 200 || status > 299 {
		c.log.Warn("refresh exchange rejected", "session_key", sessionKey, "status", status)
		return token.Claims{}, &ExchangeError{Status: status}
	}

	creds, err = c.store.Get(ctx, sessionKey)
	if err != nil {
		return token.Claims{}, fmt.Errorf("refresh: re-read credential store: %w", err)
	}
	if creds.AccessToken == "" {
		return token.Claims{}, ErrMissingIssuedCredential
	}

	claims, err := c.tokens.Verify(creds.AccessToken, token.TypeAccess, c.clock())
	if err != nil {
		return token.Claims{}, fmt.Errorf("refresh: issued credential rejected: %w", err)
	}

	c.log.Info("access token refreshed", "session_key", sessionKey, "user_id", claims.UserID)
	return claims, nil
}
