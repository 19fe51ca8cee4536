package httpapi

import (
	"errors"
	"net/http"
	"time"

	"token-gateway/internal/audit"
	"token-gateway/internal/auth"
	"token-gateway/internal/refresh"
	"token-gateway/internal/session"
	"token-gateway/internal/token"
	"token-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Tokens    *token.Manager
	Sessions  session.Store
	Refresher auth.Refresher
	Audit     *audit.Service

	CookieName    string
	CookieTTL     time.Duration
	SecureCookies bool
}

// --- Login / logout ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login creates a session and issues a token pair bound to it.
//
// NOTE: This is a skeleton-only endpoint. Real deployments must validate
// credentials (password, SSO assertion, ...) before calling IssuePair.
func (h Handlers) Login(c *gin.Context) {
	if h.Tokens == nil || h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	sessionID := uuid.NewString()
	pair, err := h.Tokens.IssuePair(time.Now(), req.UserID, sessionID)
	if err != nil {
		if errors.Is(err, token.ErrVerifyOnly) {
			c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "gateway is verify-only; log in at the auth service"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	err = h.Sessions.Put(c.Request.Context(), sessionID, session.Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if err != nil {
		logger.FromGin(c).Error("session store write failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session creation failed"})
		return
	}

	h.setSessionCookie(c, sessionID, int(h.CookieTTL.Seconds()))

	if h.Audit != nil {
		if err := h.Audit.LogLogin(c.Request.Context(), sessionID, req.UserID, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit event dropped", "event", "login", "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   sessionID,
		"access_token": pair.AccessToken,
	})
}

// LoginPage is the redirect target for unauthenticated callers. A real
// deployment serves (or proxies) a login UI here; the gateway returns the
// preserved destination so the UI can send the caller back.
func (h Handlers) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"login_required": true,
		"return_url":     c.Query("returnUrl"),
	})
}

func (h Handlers) Logout(c *gin.Context) {
	key := auth.SessionKeyFromRequest(c, h.CookieName)
	if key == session.DefaultKey {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.Sessions.Delete(c.Request.Context(), key); err != nil {
		logger.FromGin(c).Error("session delete failed", "session_key", key, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	h.setSessionCookie(c, "", -1)

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		if err := h.Audit.LogLogout(c.Request.Context(), key, uid, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit event dropped", "event", "logout", "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Refresh ---

// Refresh lets a client force a token refresh instead of waiting for a
// protected request to trigger one. Same coordinator, same deduplication.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Refresher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "refresh not configured"})
		return
	}
	key := auth.SessionKeyFromRequest(c, h.CookieName)

	claims, err := h.Refresher.Refresh(c.Request.Context(), key)
	if err != nil {
		var xerr *refresh.ExchangeError
		switch {
		case errors.Is(err, refresh.ErrMissingRefreshToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no refresh token"})
		case errors.As(err, &xerr):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "refresh rejected", "upstream_status": xerr.Status})
		default:
			logger.FromGin(c).Error("refresh failed", "session_key", key, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		}
		return
	}

	creds, err := h.Sessions.Get(c.Request.Context(), key)
	if err != nil || creds.AccessToken == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "refreshed token unreadable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": creds.AccessToken,
		"user_id":      claims.UserID,
	})
}

// --- Protected ---

func (h Handlers) Me(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
		return
	}
	sid, _ := auth.SessionID(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "session_id": sid})
}

func (h Handlers) Session(c *gin.Context) {
	key := auth.SessionKeyFromRequest(c, h.CookieName)
	creds, err := h.Sessions.Get(c.Request.Context(), key)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_key":       key,
		"has_access_token":  creds.AccessToken != "",
		"has_refresh_token": creds.RefreshToken != "",
	})
}

func (h Handlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.CookieName, value, maxAge, "/", "", h.SecureCookies, true)
}
