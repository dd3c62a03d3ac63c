package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/records/internal/platform/auth"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	Storage          string        `mapstructure:"STORAGE"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL     time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	LoginMaxAttempts int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginWindow      time.Duration `mapstructure:"LOGIN_WINDOW"`
	KafkaBrokers     string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string        `mapstructure:"KAFKA_TOPIC"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	TLSEnabled       bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile      string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile       string        `mapstructure:"TLS_KEY_FILE"`
	SignupRoles      string        `mapstructure:"REGISTRATION_ROLES"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOGIN_MAX_ATTEMPTS",
	"LOGIN_WINDOW", "KAFKA_BROKERS", "KAFKA_TOPIC", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE", "REGISTRATION_ROLES",
}

// Load reads configuration from the environment and an optional .env file.
// Call Validate before using the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ISSUER", "clinic-records")
	v.SetDefault("AUTH_AUDIENCE", "clinic-records-api")
	v.SetDefault("AUTH_TOKEN_TTL", auth.DefaultTokenTTL)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_WINDOW", 15*time.Minute)
	v.SetDefault("KAFKA_TOPIC", "appointment_events")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REGISTRATION_ROLES", string(auth.RolePatient))

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Brokers returns the configured Kafka bootstrap servers.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE=%s", StoragePostgres)
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE=%s is not allowed in production", StorageMemory)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}

	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthSigningKey != "" {
		key, err := hex.DecodeString(c.AuthSigningKey)
		if err != nil {
			return fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
		}
		if len(key) < auth.MinSigningKeyLen {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes, got %d", auth.MinSigningKeyLen, len(key))
		}
	}
	if c.AuthIssuer == "" || c.AuthAudience == "" {
		return fmt.Errorf("AUTH_ISSUER and AUTH_AUDIENCE must be set")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}
	if c.LoginMaxAttempts > 0 && c.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_WINDOW must be positive when LOGIN_MAX_ATTEMPTS is set")
	}

	if _, err := c.RegistrationRoles(); err != nil {
		return err
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

// SigningKey decodes AUTH_SIGNING_KEY. Outside production an unset key is
// replaced by a random one; generated reports when that happened, since
// tokens will not survive a restart.
func (c *Config) SigningKey() (key []byte, generated bool, err error) {
	if c.AuthSigningKey != "" {
		key, err = hex.DecodeString(c.AuthSigningKey)
		if err != nil {
			return nil, false, fmt.Errorf("decode AUTH_SIGNING_KEY: %w", err)
		}
		return key, false, nil
	}
	if c.IsProduction() {
		return nil, false, fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// TokenConfig builds the immutable token configuration around key.
func (c *Config) TokenConfig(key []byte) auth.TokenConfig {
	return auth.TokenConfig{
		Issuer:     c.AuthIssuer,
		Audience:   c.AuthAudience,
		SigningKey: key,
		TTL:        c.AuthTokenTTL,
	}
}

// RegistrationRoles returns the roles allowed on public registration. An
// empty list means Patient only; staff accounts are opened explicitly.
func (c *Config) RegistrationRoles() ([]auth.Role, error) {
	var roles []auth.Role
	for _, name := range splitList(c.SignupRoles) {
		r, ok := auth.ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("REGISTRATION_ROLES: unknown role %q", name)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		roles = []auth.Role{auth.RolePatient}
	}
	return roles, nil
}
