package auth

import (
	"github.com/gin-gonic/gin"

	"token-gateway/internal/session"
)

// HeaderSessionKey overrides the cookie-derived session key. Meant for
// service-to-service callers that manage their own refresh scope.
const HeaderSessionKey = "X-Session-Key"

// SessionKeyFromRequest derives the refresh scope for a request:
// header override, else session cookie, else the shared default.
func SessionKeyFromRequest(c *gin.Context, cookieName string) string {
	if v := c.GetHeader(HeaderSessionKey); v != "" {
		return v
	}
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	return session.DefaultKey
}

// RequireAuth resolves the caller and either injects identity into the
// request context or redirects to the login page with the original
// destination preserved. The redirect is terminal for the request.
func RequireAuth(r *Resolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := SessionKeyFromRequest(c, cookieName)
		out := r.RequireAuth(c.Request.Context(), key, c.Request.URL.RequestURI())

		if out.State != StateAuthenticated {
			c.Redirect(out.RedirectStatus, out.Location)
			c.Abort()
			return
		}

		ctx := WithIdentity(c.Request.Context(), out.Claims.UserID, out.Claims.SessionID)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", out.Claims.UserID)
		c.Set("session_id", out.Claims.SessionID)

		c.Next()
	}
}

// OptionalAuth injects identity when the caller resolves, and lets the
// request through either way.
func OptionalAuth(r *Resolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := SessionKeyFromRequest(c, cookieName)
		if claims, err := r.ResolveUser(c.Request.Context(), key); err == nil && claims != nil {
			ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.SessionID)
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", claims.UserID)
			c.Set("session_id", claims.SessionID)
		}
		c.Next()
	}
}
