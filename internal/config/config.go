package config

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is built once by Load and never
// mutated afterwards.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// ClientURL is the public base URL of the server, always ending with "/".
	ClientURL string
	// OverriddenClientURLForOIDC replaces ClientURL in OIDC metadata for
	// consumers reaching the server by another host.
	OverriddenClientURLForOIDC string

	AccessTokenSecretKey []byte
	RSAPrivateKey        *rsa.PrivateKey

	AuthorizationCodeExpire time.Duration
	AccessTokenExpire       time.Duration
	RefreshTokenExpire      time.Duration

	AuthClientsFile string
	AuthClients     []AuthClientConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Metrics   MetricsPushConfig
	SMTP      SMTPConfig

	NotificationChannel string
	SeedDevData         bool

	// MyECLPayMaxWalletBalance caps a wallet balance after a top-up, in cents.
	MyECLPayMaxWalletBalance int64
	// MyECLPayTransferWebhookSecret keys the HMAC the payment provider puts
	// on transfer callbacks. Callbacks are refused while it is empty.
	MyECLPayTransferWebhookSecret []byte
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SMTPConfig struct {
	Active   bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type RateLimitConfig struct {
	LoginPerSecond float64
	LoginBurst     int
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

var (
	ErrMissingClientURL   = errors.New("CLIENT_URL must be set")
	ErrMissingSecretKey   = errors.New("ACCESS_TOKEN_SECRET_KEY must be set")
	ErrMissingRSAKey      = errors.New("RSA_PRIVATE_PEM_STRING must be set")
	ErrTrailingSlash      = errors.New("url must contain a trailing slash")
	ErrInvalidExpireValue = errors.New("token lifetimes must be positive")
)

// Load loads configuration from environment variables and .env file.
// Key material and the auth client registry are parsed eagerly; any error
// must prevent the process from starting.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "hyperion"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		ClientURL:                  strings.TrimSpace(getenv("CLIENT_URL", "")),
		OverriddenClientURLForOIDC: strings.TrimSpace(getenv("OVERRIDDEN_CLIENT_URL_FOR_OIDC", "")),
		AccessTokenSecretKey:       []byte(strings.TrimSpace(getenv("ACCESS_TOKEN_SECRET_KEY", ""))),

		AuthorizationCodeExpire: time.Duration(getenvInt64("AUTHORIZATION_CODE_EXPIRE_MINUTES", 7)) * time.Minute,
		AccessTokenExpire:       time.Duration(getenvInt64("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenExpire:      time.Duration(getenvInt64("REFRESH_TOKEN_EXPIRE_MINUTES", 60*24*60)) * time.Minute,

		AuthClientsFile: strings.TrimSpace(getenv("AUTH_CLIENTS_FILE", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "hyperion"),
		DBUser:            getenv("DATABASE_USER", "hyperion"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			LoginPerSecond: getenvFloat64("LOGIN_RATE_PER_SECOND", 0.5),
			LoginBurst:     int(getenvInt64("LOGIN_RATE_BURST", 10)),
		},
		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  time.Duration(getenvInt64("METRICS_PUSH_INTERVAL_SECONDS", 30)) * time.Second,
		},

		SMTP: SMTPConfig{
			Active:   getenvBool("SMTP_ACTIVE", false),
			Host:     strings.TrimSpace(getenv("SMTP_SERVER", "")),
			Port:     int(getenvInt64("SMTP_PORT", 587)),
			Username: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     strings.TrimSpace(getenv("SMTP_EMAIL", "")),
		},

		NotificationChannel: getenv("NOTIFICATION_CHANNEL", "hyperion:notifications"),
		SeedDevData:         getenvBool("SEED_DEV_DATA", false),

		MyECLPayMaxWalletBalance:      getenvInt64("MYECLPAY_MAXIMUM_WALLET_BALANCE", 1000),
		MyECLPayTransferWebhookSecret: []byte(strings.TrimSpace(getenv("MYECLPAY_TRANSFER_WEBHOOK_SECRET", ""))),
	}

	pemString := os.Getenv("RSA_PRIVATE_PEM_STRING")
	if strings.TrimSpace(pemString) == "" {
		return Config{}, ErrMissingRSAKey
	}
	key, err := ParseRSAPrivateKey([]byte(pemString))
	if err != nil {
		return Config{}, err
	}
	cfg.RSAPrivateKey = key

	clients, err := LoadAuthClients(cfg.AuthClientsFile)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthClients = clients

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings Load relies on. It is exported so tests can
// build a Config by hand.
func (c Config) Validate() error {
	if c.ClientURL == "" {
		return ErrMissingClientURL
	}
	if !strings.HasSuffix(c.ClientURL, "/") {
		return fmt.Errorf("CLIENT_URL: %w", ErrTrailingSlash)
	}
	if c.OverriddenClientURLForOIDC != "" && !strings.HasSuffix(c.OverriddenClientURLForOIDC, "/") {
		return fmt.Errorf("OVERRIDDEN_CLIENT_URL_FOR_OIDC: %w", ErrTrailingSlash)
	}
	if len(c.AccessTokenSecretKey) == 0 {
		return ErrMissingSecretKey
	}
	if c.RSAPrivateKey == nil {
		return ErrMissingRSAKey
	}
	if c.AuthorizationCodeExpire <= 0 || c.AccessTokenExpire <= 0 || c.RefreshTokenExpire <= 0 {
		return ErrInvalidExpireValue
	}
	return nil
}

// OIDCClientURL is the base URL advertised to OIDC consumers.
func (c Config) OIDCClientURL() string {
	if c.OverriddenClientURLForOIDC != "" {
		return c.OverriddenClientURLForOIDC
	}
	return c.ClientURL
}

// Issuer is the "iss" claim of identity tokens, the OIDC base URL without
// the trailing slash.
func (c Config) Issuer() string {
	return strings.TrimSuffix(c.OIDCClientURL(), "/")
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat64(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
