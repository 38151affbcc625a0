package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned by Load when neither JWT_SECRET nor
// AUTH_SECRET is set.  The server refuses to start without a signing secret.
var ErrMissingSecret = errors.New("missing required env var: JWT_SECRET")

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are already converted so callers never
// deal with raw minute or day counts.
type Config struct {
	Env  string // application environment (e.g. "development", "production")
	Port string // HTTP port to listen on

	DBDriver string // "mysql" or "sqlite"
	DBUser   string // database username
	DBPass   string // database password (optional)
	DBHost   string // database host address
	DBPort   string // database port number
	DBName   string // database name
	DBPath   string // sqlite file path (DBDriver == "sqlite")

	JWTSecret  string        // secret used to sign access and refresh tokens
	AccessTTL  time.Duration // access token lifetime
	RefreshTTL time.Duration // refresh token lifetime
	LegacyTTL  time.Duration // lifetime of the single-token legacy scheme
	BcryptCost int           // bcrypt cost for password hashing

	CookieDomain string // optional Domain attribute for auth cookies

	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	RabbitMQURL string // auth events are published only when set
	AuditLogDir string // directory the audit consumer appends auth.log to
}

// Load reads configuration values from environment variables and returns a
// Config.  A missing signing secret or a malformed number is an error; the
// entry point is expected to abort on it.
func Load() (Config, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	}
	if secret == "" {
		return Config{}, ErrMissingSecret
	}

	accessMin, err := intEnv("ACCESS_TOKEN_TTL_MIN", 15)
	if err != nil {
		return Config{}, err
	}
	refreshDays, err := intEnv("REFRESH_TOKEN_TTL_DAYS", 7)
	if err != nil {
		return Config{}, err
	}
	legacyMin, err := intEnv("LEGACY_TOKEN_TTL_MIN", 60)
	if err != nil {
		return Config{}, err
	}
	cost, err := intEnv("BCRYPT_COST", 12)
	if err != nil {
		return Config{}, err
	}
	if accessMin <= 0 || refreshDays <= 0 || legacyMin <= 0 {
		return Config{}, errors.New("token TTLs must be positive")
	}

	driver := strings.ToLower(getenv("DB_DRIVER", "mysql"))
	if driver != "mysql" && driver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	return Config{
		Env:          getenv("APP_ENV", "development"),
		Port:         getenv("APP_PORT", "8080"),
		DBDriver:     driver,
		DBUser:       getenv("DB_USER", "root"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       getenv("DB_HOST", "localhost"),
		DBPort:       getenv("DB_PORT", "3306"),
		DBName:       getenv("DB_NAME", "kupa"),
		DBPath:       getenv("DB_PATH", "kupa.db"),
		JWTSecret:    secret,
		AccessTTL:    time.Duration(accessMin) * time.Minute,
		RefreshTTL:   time.Duration(refreshDays) * 24 * time.Hour,
		LegacyTTL:    time.Duration(legacyMin) * time.Minute,
		BcryptCost:   cost,
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		AuditLogDir:  getenv("AUDIT_LOG_DIR", "logs"),
	}, nil
}

// IsDevelopment reports whether the app runs locally.  Cookies are only
// marked Secure outside of development.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// intEnv is like getenv but converts the value into an integer.  Unlike the
// rate limit helpers, a malformed value is reported instead of defaulted.
func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q", key, s)
	}
	return n, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
