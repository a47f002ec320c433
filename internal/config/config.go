// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"identity-provider/backend/internal/password"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment ("development", "production"). Selects the log encoder.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the minimum zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTSecret is the HS256 signing secret; at least 32 bytes. Required by the server.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTVerifySecrets lists previous signing secrets, comma-separated, still accepted for verification.
	JWTVerifySecrets string `mapstructure:"JWT_VERIFY_SECRETS"`
	// JWTIssuer is the iss claim stamped on and required of every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// StrictRefreshRotation revokes a refresh token when it is exchanged, so it can be used once.
	StrictRefreshRotation bool `mapstructure:"STRICT_REFRESH_ROTATION"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LockoutMaxAttempts is the number of consecutive failed logins that locks an account.
	LockoutMaxAttempts int `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`
	// LockoutDuration is how long an automatic lock lasts (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`

	// ResetTokenTTL is the lifetime of a password-reset token (e.g. "1h").
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// ResetMaxPerWindow is the number of reset requests allowed per account per ResetWindow.
	ResetMaxPerWindow int `mapstructure:"RESET_MAX_PER_WINDOW"`
	// ResetWindow is the trailing window for reset rate limiting (e.g. "1h").
	ResetWindow string `mapstructure:"RESET_WINDOW"`

	PasswordMinLength      int  `mapstructure:"PASSWORD_MIN_LENGTH"`
	PasswordMaxLength      int  `mapstructure:"PASSWORD_MAX_LENGTH"`
	PasswordRequireUpper   bool `mapstructure:"PASSWORD_REQUIRE_UPPER"`
	PasswordRequireLower   bool `mapstructure:"PASSWORD_REQUIRE_LOWER"`
	PasswordRequireDigit   bool `mapstructure:"PASSWORD_REQUIRE_DIGIT"`
	PasswordRequireSpecial bool `mapstructure:"PASSWORD_REQUIRE_SPECIAL"`
	// PasswordMinStrength is the minimum zxcvbn score (0 disables, 1–4).
	PasswordMinStrength int `mapstructure:"PASSWORD_MIN_STRENGTH"`

	// MFAEnabled makes TOTP enrollment and the second login step available.
	MFAEnabled bool `mapstructure:"MFA_ENABLED"`
	// MFASkew is the number of adjacent 30s periods accepted on either side of now.
	MFASkew int `mapstructure:"MFA_SKEW"`
	// MFAChallengeTTL is how long a pending second-factor login challenge stays valid.
	MFAChallengeTTL string `mapstructure:"MFA_CHALLENGE_TTL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list; when set, reset tokens are delivered through Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ResetKafkaTopic is the topic the notification service consumes reset deliveries from.
	ResetKafkaTopic string `mapstructure:"RESET_KAFKA_TOPIC"`

	// DevResetOutbox keeps issued reset tokens in memory for the dev-only DevService. Ignored
	// when APP_ENV is production.
	DevResetOutbox bool `mapstructure:"DEV_RESET_OUTBOX"`

	// AuthzReloadInterval is how often stored authorization policies are recompiled.
	AuthzReloadInterval string `mapstructure:"AUTHZ_RELOAD_INTERVAL"`

	// HousekeepingInterval is how often the worker purges expired rows.
	HousekeepingInterval string `mapstructure:"HOUSEKEEPING_INTERVAL"`
	// HousekeepingRetention is how long expired or revoked rows are kept before purge.
	HousekeepingRetention string `mapstructure:"HOUSEKEEPING_RETENTION"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_VERIFY_SECRETS", "")
	v.SetDefault("JWT_ISSUER", "identity-provider")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("STRICT_REFRESH_ROTATION", true)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("RESET_MAX_PER_WINDOW", 3)
	v.SetDefault("RESET_WINDOW", "1h")
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("PASSWORD_MAX_LENGTH", password.MaxBytes)
	v.SetDefault("PASSWORD_REQUIRE_UPPER", true)
	v.SetDefault("PASSWORD_REQUIRE_LOWER", true)
	v.SetDefault("PASSWORD_REQUIRE_DIGIT", true)
	v.SetDefault("PASSWORD_REQUIRE_SPECIAL", true)
	v.SetDefault("PASSWORD_MIN_STRENGTH", 0)
	v.SetDefault("MFA_ENABLED", true)
	v.SetDefault("MFA_SKEW", 1)
	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("RESET_KAFKA_TOPIC", "idp-password-reset")
	v.SetDefault("DEV_RESET_OUTBOX", false)
	v.SetDefault("AUTHZ_RELOAD_INTERVAL", "1m")
	v.SetDefault("HOUSEKEEPING_INTERVAL", "1h")
	v.SetDefault("HOUSEKEEPING_RETENTION", "720h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return nil, errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return nil, errors.New("config: JWT_ISSUER must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.LockoutMaxAttempts < 1 {
		return nil, errors.New("config: LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.ResetMaxPerWindow < 1 {
		return nil, errors.New("config: RESET_MAX_PER_WINDOW must be at least 1")
	}
	if cfg.PasswordMaxLength > 0 && cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return nil, errors.New("config: PASSWORD_MAX_LENGTH must not be below PASSWORD_MIN_LENGTH")
	}
	if cfg.PasswordMaxLength > password.MaxBytes {
		return nil, fmt.Errorf("config: PASSWORD_MAX_LENGTH must not exceed %d", password.MaxBytes)
	}
	if cfg.PasswordMinStrength < 0 || cfg.PasswordMinStrength > 4 {
		return nil, errors.New("config: PASSWORD_MIN_STRENGTH must be between 0 and 4")
	}
	if cfg.MFASkew < 0 {
		return nil, errors.New("config: MFA_SKEW must not be negative")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// LockoutDurationValue parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutDurationValue() time.Duration {
	return parseDuration(c.LockoutDuration, 15*time.Minute)
}

// ResetTTL parses ResetTokenTTL. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.ResetTokenTTL, time.Hour)
}

// ResetWindowValue parses ResetWindow. Returns 1h if unset or invalid.
func (c *Config) ResetWindowValue() time.Duration {
	return parseDuration(c.ResetWindow, time.Hour)
}

// ChallengeTTL parses MFAChallengeTTL. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.MFAChallengeTTL, 5*time.Minute)
}

// AuthzReloadIntervalValue parses AuthzReloadInterval. Returns 1m if unset or invalid.
func (c *Config) AuthzReloadIntervalValue() time.Duration {
	return parseDuration(c.AuthzReloadInterval, time.Minute)
}

// HousekeepingIntervalValue parses HousekeepingInterval. Returns 1h if unset or invalid.
func (c *Config) HousekeepingIntervalValue() time.Duration {
	return parseDuration(c.HousekeepingInterval, time.Hour)
}

// HousekeepingRetentionValue parses HousekeepingRetention. Returns 720h if unset or invalid.
func (c *Config) HousekeepingRetentionValue() time.Duration {
	return parseDuration(c.HousekeepingRetention, 720*time.Hour)
}

// DevOutboxEnabled reports whether the dev reset outbox may be used in this environment.
func (c *Config) DevOutboxEnabled() bool {
	return c != nil && c.DevResetOutbox && c.Env != "production"
}

// PasswordPolicy returns the password rule set described by the PASSWORD_* keys.
func (c *Config) PasswordPolicy() password.Policy {
	return password.Policy{
		MinLength:      c.PasswordMinLength,
		MaxLength:      c.PasswordMaxLength,
		RequireUpper:   c.PasswordRequireUpper,
		RequireLower:   c.PasswordRequireLower,
		RequireDigit:   c.PasswordRequireDigit,
		RequireSpecial: c.PasswordRequireSpecial,
		MinStrength:    c.PasswordMinStrength,
	}
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// VerificationKeys returns the previous signing secrets from JWTVerifySecrets. Empty entries are skipped.
func (c *Config) VerificationKeys() [][]byte {
	if c == nil {
		return nil
	}
	var out [][]byte
	for _, secret := range splitList(c.JWTVerifySecrets) {
		out = append(out, []byte(secret))
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
