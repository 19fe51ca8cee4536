package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-gateway/internal/audit"
	"token-gateway/internal/auth"
	"token-gateway/internal/config"
	"token-gateway/internal/refresh"
	"token-gateway/internal/session"
	"token-gateway/internal/token"
	"token-gateway/pkg/logger"
	"token-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "token-gateway")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	sessions, err := session.NewRedisStore(rdb, cfg.Session.TTL)
	if err != nil {
		log.Error("session store init failed", "err", err)
		os.Exit(1)
	}

	auditRepo, err := audit.NewPostgresRepo(db)
	if err != nil {
		log.Error("audit repo init failed", "err", err)
		os.Exit(1)
	}
	auditSvc := audit.NewService(auditRepo)

	var locks refresh.LockTable
	if cfg.Refresh.LockBackend == "redis" {
		locks, err = refresh.NewRedisLockTable(rdb, cfg.Refresh.LockTTL)
		if err != nil {
			log.Error("lock table init failed", "err", err)
			os.Exit(1)
		}
	} else {
		locks = refresh.NewMemoryLockTable()
	}

	var exchange refresh.Exchange
	if cfg.Refresh.ExchangeURL != "" {
		exchange, err = refresh.NewHTTPExchange(cfg.Refresh, sessions)
		if err != nil {
			log.Error("exchange init failed", "err", err)
			os.Exit(1)
		}
	} else {
		exchange = refresh.NewLocalExchange(tokens, sessions)
	}

	coordinator, err := refresh.NewCoordinator(cfg.Refresh, locks, sessions, tokens, exchange, log)
	if err != nil {
		log.Error("coordinator init failed", "err", err)
		os.Exit(1)
	}

	resolver := auth.NewResolver(tokens, sessions, coordinator, cfg.Auth.LoginPath, log)
	resolver.SetAuditSink(auth.AuditAdapter{Audit: auditSvc, Log: log})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, resolver, httpDeps{
		tokens:      tokens,
		sessions:    sessions,
		coordinator: coordinator,
		audit:       auditSvc,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"lock_backend", cfg.Refresh.LockBackend,
			"exchange", exchangeKind(cfg),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func exchangeKind(cfg config.Config) string {
	if cfg.Refresh.ExchangeURL != "" {
		return "remote"
	}
	return "local"
}
