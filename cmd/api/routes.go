package main

import (
	"token-gateway/internal/audit"
	"token-gateway/internal/auth"
	"token-gateway/internal/config"
	"token-gateway/internal/httpapi"
	"token-gateway/internal/refresh"
	"token-gateway/internal/session"
	"token-gateway/internal/token"

	"github.com/gin-gonic/gin"
)

type httpDeps struct {
	tokens      *token.Manager
	sessions    session.Store
	coordinator *refresh.Coordinator
	audit       *audit.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal
// modules.
func registerRoutes(r *gin.Engine, cfg config.Config, resolver *auth.Resolver, deps httpDeps) {
	h := httpapi.Handlers{
		Tokens:        deps.tokens,
		Sessions:      deps.sessions,
		Refresher:     deps.coordinator,
		Audit:         deps.audit,
		CookieName:    cfg.Session.CookieName,
		CookieTTL:     cfg.Session.TTL,
		SecureCookies: cfg.IsProduction(),
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/login", h.LoginPage)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group; unauthenticated callers are redirected to login
	// with their destination preserved
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAuth(resolver, cfg.Session.CookieName))
	{
		v1.GET("/me", h.Me)
		v1.GET("/session", h.Session)
	}
}
