// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Auth backend identifiers accepted by AUTH_BACKEND.
const (
	BackendLocal  = "local"
	BackendHosted = "hosted"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding the golang-migrate SQL files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication and session-lifecycle settings.
	Auth AuthConfig

	// Metrics toggles the Prometheus endpoint.
	Metrics MetricsConfig

	// Server holds reverse-proxy and cross-origin settings.
	Server ServerConfig
}

// ServerConfig holds HTTP edge settings.
type ServerConfig struct {
	// TrustedProxies are the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	// CORSOrigins may call the JSON API cross-origin. Defaults to BaseURL.
	CORSOrigins []string
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string, built from the
// individual Host/User/Password/Name fields or from DATABASE_URL when set.
// Either way parseTime and multiStatements are forced on: the repositories
// scan DATETIME columns into time.Time and migrations hold several
// statements per file. An unparsable DATABASE_URL is returned unchanged;
// validate rejects it at load.
func (d DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	if d.dsnOverride != "" {
		parsed, err := mysql.ParseDSN(d.dsnOverride)
		if err != nil {
			return d.dsnOverride
		}
		cfg = parsed
	} else {
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = ensurePort(d.Host, "3306")
		cfg.DBName = d.Name
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds the backend selection and the knobs of the per-client
// session manager and route guard.
type AuthConfig struct {
	// Backend selects the auth/profile backend: "local" or "hosted".
	Backend string

	// SessionTTL is how long local backend sessions last before expiring.
	SessionTTL time.Duration

	// HostedURL is the base URL of the hosted auth service (e.g. https://xyz.example.co).
	HostedURL string

	// HostedAnonKey is the public API key sent with every hosted auth call.
	HostedAnonKey string

	// HostedServiceKey authorizes server-side profile reads and updates.
	HostedServiceKey string

	// ProfileFetchThreshold is the number of consecutive profile failures
	// after which the manager stops querying and uses the minimal identity.
	ProfileFetchThreshold int

	// GuardSettleDelay is the pause the route guard takes after the manager
	// reports loading=false before trusting the state.
	GuardSettleDelay time.Duration

	// GuardWaitTimeout bounds how long a guarded request waits for the
	// manager to settle before rendering the loading page.
	GuardWaitTimeout time.Duration

	// ClientIdleTTL is how long an unused client manager is kept in memory.
	ClientIdleTTL time.Duration

	// BackendCallTimeout bounds each backend call made from the manager's
	// own event goroutine.
	BackendCallTimeout time.Duration

	// RedirectTTL is how long a remembered post-login destination is kept.
	RedirectTTL time.Duration

	// FlashTTL is how long an undelivered notice is kept.
	FlashTTL time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes GET /metrics when true.
	Enabled bool
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "tailormade"),
			Password:        getEnv("DB_PASSWORD", "tailormade"),
			Name:            getEnv("DB_NAME", "tailormade"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			Backend:               strings.ToLower(getEnv("AUTH_BACKEND", BackendLocal)),
			SessionTTL:            getEnvDuration("SESSION_TTL", 720*time.Hour),
			HostedURL:             strings.TrimRight(getEnv("HOSTED_AUTH_URL", ""), "/"),
			HostedAnonKey:         getEnv("HOSTED_AUTH_ANON_KEY", ""),
			HostedServiceKey:      getEnv("HOSTED_AUTH_SERVICE_KEY", ""),
			ProfileFetchThreshold: getEnvInt("PROFILE_FETCH_THRESHOLD", 3),
			GuardSettleDelay:      getEnvDuration("GUARD_SETTLE_DELAY", 100*time.Millisecond),
			GuardWaitTimeout:      getEnvDuration("GUARD_WAIT_TIMEOUT", 3*time.Second),
			ClientIdleTTL:         getEnvDuration("CLIENT_IDLE_TTL", 30*time.Minute),
			BackendCallTimeout:    getEnvDuration("BACKEND_CALL_TIMEOUT", 10*time.Second),
			RedirectTTL:           getEnvDuration("REDIRECT_TTL", time.Hour),
			FlashTTL:              getEnvDuration("FLASH_TTL", 5*time.Minute),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	cfg.Server = ServerConfig{
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{cfg.BaseURL}),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks cross-field requirements that defaults cannot satisfy.
func (c *Config) validate() error {
	switch c.Auth.Backend {
	case BackendLocal:
		if c.Database.dsnOverride != "" {
			if _, err := mysql.ParseDSN(c.Database.dsnOverride); err != nil {
				return fmt.Errorf("DATABASE_URL is not a valid MySQL DSN: %w", err)
			}
		}
	case BackendHosted:
		if c.Auth.HostedURL == "" {
			return fmt.Errorf("HOSTED_AUTH_URL is required when AUTH_BACKEND=hosted")
		}
		if c.Auth.HostedAnonKey == "" {
			return fmt.Errorf("HOSTED_AUTH_ANON_KEY is required when AUTH_BACKEND=hosted")
		}
	default:
		return fmt.Errorf("AUTH_BACKEND must be %q or %q, got %q", BackendLocal, BackendHosted, c.Auth.Backend)
	}

	if c.Auth.ProfileFetchThreshold < 1 {
		return fmt.Errorf("PROFILE_FETCH_THRESHOLD must be at least 1")
	}
	if c.Auth.GuardWaitTimeout <= c.Auth.GuardSettleDelay {
		return fmt.Errorf("GUARD_WAIT_TIMEOUT must be longer than GUARD_SETTLE_DELAY")
	}
	return nil
}

// SecureCookies reports whether the site is served over https, which
// decides the Secure cookie flag and HSTS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(c.BaseURL), "https://")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default.
// Empty items are dropped.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
