package audit

import "time"

// AuditConfig controls audit behavior.
type AuditConfig struct {
	RetentionDays int           `mapstructure:"retention_days"` // Default 90. Zero or less disables pruning.
	RetentionScan time.Duration `mapstructure:"retention_scan"` // Interval between pruning passes. Default 24h.
	LogDenied     bool          `mapstructure:"log_denied"`     // Whether to log denied (401/403) requests
	Enabled       bool          `mapstructure:"enabled"`        // Whether audit middleware is active
}

// DefaultAuditConfig returns the default configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		RetentionDays: 90,
		RetentionScan: 24 * time.Hour,
		LogDenied:     true,
		Enabled:       true,
	}
}
