package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the gateway process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Refresh RefreshConfig
	Session SessionConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	// Exactly one verification key source must be set:
	// JWTSecret for HS256, or JWTPublicKeyPEM for RS256 (verify-only mode).
	JWTSecret       string
	JWTPublicKeyPEM string

	JWTIssuer   string
	JWTAudience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ExpiryBuffer is the lead time before real expiry at which an access
	// token is already treated as unusable, so callers refresh proactively
	// instead of racing the real expiry.
	ExpiryBuffer time.Duration

	// LoginPath is where unauthenticated callers of protected routes are
	// redirected.
	LoginPath string
}

type RefreshConfig struct {
	// ExchangeURL is the auth-service endpoint that trades a refresh token
	// for a new access token. Empty means the gateway serves the exchange
	// itself (single-node mode).
	ExchangeURL     string
	ExchangeTimeout time.Duration
	RetryMax        int

	PollInterval time.Duration
	PollAttempts int

	// LockBackend selects the refresh lock table: "memory" (single
	// instance) or "redis" (deduplication across instances).
	LockBackend string

	// LockTTL bounds a redis-held refresh lock so a crashed process cannot
	// leak it. Ignored by the in-memory lock table.
	LockTTL time.Duration
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTPublicKeyPEM = os.Getenv("JWT_PUBLIC_KEY_PEM")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optionalDuration("JWT_REFRESH_TTL")
	c.Auth.ExpiryBuffer = optionalDuration("JWT_EXPIRY_BUFFER")
	c.Auth.LoginPath = strings.TrimSpace(os.Getenv("AUTH_LOGIN_PATH"))

	c.Refresh.ExchangeURL = strings.TrimSpace(os.Getenv("REFRESH_EXCHANGE_URL"))
	c.Refresh.ExchangeTimeout = optionalDuration("REFRESH_EXCHANGE_TIMEOUT")
	c.Refresh.RetryMax = optionalInt("REFRESH_RETRY_MAX")
	c.Refresh.PollInterval = optionalDuration("REFRESH_POLL_INTERVAL")
	c.Refresh.PollAttempts = optionalInt("REFRESH_POLL_ATTEMPTS")
	c.Refresh.LockBackend = strings.TrimSpace(os.Getenv("REFRESH_LOCK_BACKEND"))
	c.Refresh.LockTTL = optionalDuration("REFRESH_LOCK_TTL")

	c.Session.CookieName = strings.TrimSpace(os.Getenv("SESSION_COOKIE_NAME"))
	c.Session.TTL = optionalDuration("SESSION_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKeyPEM == "" {
		errs = append(errs, errors.New("one of JWT_SECRET or JWT_PUBLIC_KEY_PEM is required"))
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWTPublicKeyPEM != "" {
		errs = append(errs, errors.New("JWT_SECRET and JWT_PUBLIC_KEY_PEM are mutually exclusive"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.ExpiryBuffer <= 0 {
		c.Auth.ExpiryBuffer = 30 * time.Second
	}
	if c.Auth.ExpiryBuffer >= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_EXPIRY_BUFFER must be smaller than JWT_ACCESS_TTL"))
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = "/auth/login"
	} else if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		errs = append(errs, fmt.Errorf("AUTH_LOGIN_PATH must start with /, got %q", c.Auth.LoginPath))
	}

	if c.Refresh.ExchangeTimeout <= 0 {
		c.Refresh.ExchangeTimeout = 5 * time.Second
	}
	if c.Refresh.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("REFRESH_RETRY_MAX must be >= 0, got %d", c.Refresh.RetryMax))
	}
	if c.Refresh.PollInterval <= 0 {
		c.Refresh.PollInterval = 100 * time.Millisecond
	}
	if c.Refresh.PollAttempts <= 0 {
		c.Refresh.PollAttempts = 30
	}
	switch c.Refresh.LockBackend {
	case "":
		c.Refresh.LockBackend = "memory"
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("REFRESH_LOCK_BACKEND must be memory or redis, got %q", c.Refresh.LockBackend))
	}
	if c.Refresh.LockTTL <= 0 {
		// Must outlive the longest plausible exchange including retries.
		c.Refresh.LockTTL = 30 * time.Second
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "session_id"
	}
	if c.Session.TTL <= 0 {
		// A session is useless once its refresh token has expired.
		c.Session.TTL = c.Auth.RefreshTokenTTL
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
