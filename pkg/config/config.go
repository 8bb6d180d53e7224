// Package config assembles the server configuration from defaults, an
// optional YAML file and GREENLEDGER_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/greenledger/greenledger/pkg/audit"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/cache"
	"github.com/greenledger/greenledger/pkg/credits"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/ha"
	"github.com/greenledger/greenledger/pkg/marketrate"
)

// EnvPrefix prefixes every environment variable, e.g.
// GREENLEDGER_DATABASE_DSN for database.dsn.
const EnvPrefix = "GREENLEDGER"

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
}

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	Mode authz.AuthMode  `mapstructure:"mode"`
	JWT  authz.JWTConfig `mapstructure:"jwt"`
}

// MarketRateConfig seeds an empty market rate table at startup.
type MarketRateConfig struct {
	SeedRate     float64 `mapstructure:"seed_rate"`
	SeedCurrency string  `mapstructure:"seed_currency"`
}

// Config is the complete server configuration.
type Config struct {
	LogLevel   string               `mapstructure:"log_level"`
	Server     ServerConfig         `mapstructure:"server"`
	Database   db.DBConfig          `mapstructure:"database"`
	Auth       AuthConfig           `mapstructure:"auth"`
	HA         ha.HAConfig          `mapstructure:"ha"`
	Audit      audit.AuditConfig    `mapstructure:"audit"`
	Cache      cache.CacheConfig    `mapstructure:"cache"`
	Credits    credits.IssuerConfig `mapstructure:"credits"`
	MarketRate MarketRateConfig     `mapstructure:"market_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			MetricsEnabled:  true,
		},
		Database: *db.DefaultDBConfig(),
		Auth: AuthConfig{
			Mode: authz.AuthModeHeader,
			JWT:  authz.JWTConfig{UserClaim: "sub", GroupsClaim: "groups"},
		},
		HA:      *ha.DefaultHAConfig(),
		Audit:   *audit.DefaultAuditConfig(),
		Cache:   *cache.DefaultCacheConfig(),
		Credits: credits.DefaultIssuerConfig(),
		MarketRate: MarketRateConfig{
			SeedRate:     marketrate.DefaultRatePerCredit,
			SeedCurrency: marketrate.DefaultCurrency,
		},
	}
}

// SetDefaults registers every key of Default on v. Viper only consults the
// environment for keys it knows about, so this must run before Load.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"log_level": d.LogLevel,

		"server.listen":           d.Server.Listen,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,
		"server.allowed_origins":  d.Server.AllowedOrigins,
		"server.metrics_enabled":  d.Server.MetricsEnabled,

		"database.type":              d.Database.Type,
		"database.dsn":               d.Database.DSN,
		"database.max_open_conns":    d.Database.MaxOpenConns,
		"database.max_idle_conns":    d.Database.MaxIdleConns,
		"database.conn_max_lifetime": d.Database.ConnMaxLifetime,
		"database.busy_timeout":      d.Database.BusyTimeout,
		"database.log_queries":       d.Database.LogQueries,

		"auth.mode":                d.Auth.Mode,
		"auth.jwt.hmac_secret":     d.Auth.JWT.HMACSecret,
		"auth.jwt.public_key_path": d.Auth.JWT.PublicKeyPath,
		"auth.jwt.user_claim":      d.Auth.JWT.UserClaim,
		"auth.jwt.groups_claim":    d.Auth.JWT.GroupsClaim,
		"auth.jwt.issuer":          d.Auth.JWT.Issuer,
		"auth.jwt.audience":        d.Auth.JWT.Audience,

		"ha.leader_election_enabled": d.HA.LeaderElectionEnabled,
		"ha.lease_name":              d.HA.LeaseName,
		"ha.lease_duration":          d.HA.LeaseDuration,
		"ha.retry_period":            d.HA.RetryPeriod,
		"ha.migration_lock_enabled":  d.HA.MigrationLockEnabled,
		"ha.identity":                d.HA.Identity,

		"audit.retention_days": d.Audit.RetentionDays,
		"audit.retention_scan": d.Audit.RetentionScan,
		"audit.log_denied":     d.Audit.LogDenied,
		"audit.enabled":        d.Audit.Enabled,

		"cache.enabled":     d.Cache.Enabled,
		"cache.factors_ttl": d.Cache.FactorsTTL,
		"cache.max_size":    d.Cache.MaxSize,

		"credits.max_attempts": d.Credits.MaxAttempts,
		"credits.backoff":      d.Credits.Backoff,

		"market_rate.seed_rate":     d.MarketRate.SeedRate,
		"market_rate.seed_currency": d.MarketRate.SeedCurrency,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads configFile when non-empty, applies environment overrides and
// validates the result. Flags bound to v before Load take precedence over
// both.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case db.TypeSQLite, db.TypePostgres, db.TypeMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.type %q: expected sqlite, postgres or mysql", c.Database.Type))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Auth.Mode {
	case authz.AuthModeHeader, authz.AuthModeJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q: expected header or jwt", c.Auth.Mode))
	}
	if c.Auth.Mode == authz.AuthModeJWT && c.Auth.JWT.HMACSecret == "" && c.Auth.JWT.PublicKeyPath == "" {
		errs = append(errs, errors.New("auth.jwt: hmac_secret or public_key_path is required in jwt mode"))
	}
	if c.Credits.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("credits.max_attempts must be at least 1, got %d", c.Credits.MaxAttempts))
	}
	if c.MarketRate.SeedRate <= 0 {
		errs = append(errs, fmt.Errorf("market_rate.seed_rate must be positive, got %v", c.MarketRate.SeedRate))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps debug, info, warn or error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: expected debug, info, warn or error", s)
	}
	return l, nil
}
