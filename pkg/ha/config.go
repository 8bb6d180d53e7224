// Package ha provides primitives for running several greenledger replicas
// against one database: a migration lock around AutoMigrate and a
// database-lease leader election for singleton housekeeping loops.
package ha

import (
	"os"
	"time"
)

// HAConfig holds configuration for high-availability features.
type HAConfig struct {
	// LeaderElectionEnabled controls whether the database lease is used.
	// When false, the instance behaves as the sole leader.
	LeaderElectionEnabled bool `mapstructure:"leader_election_enabled"`

	// LeaseName identifies the lease row shared by all replicas.
	LeaseName string `mapstructure:"lease_name"`

	// LeaseDuration is how long a lease stays valid without renewal.
	LeaseDuration time.Duration `mapstructure:"lease_duration"`

	// RetryPeriod is the interval between acquire and renew attempts.
	RetryPeriod time.Duration `mapstructure:"retry_period"`

	// MigrationLockEnabled controls whether schema migration is serialized.
	MigrationLockEnabled bool `mapstructure:"migration_lock_enabled"`

	// Identity is the unique identity of this instance. Defaults to the
	// hostname.
	Identity string `mapstructure:"identity"`
}

// DefaultHAConfig returns an HAConfig with sensible defaults.
func DefaultHAConfig() *HAConfig {
	return &HAConfig{
		LeaderElectionEnabled: false,
		LeaseName:             "greenledger-housekeeping",
		LeaseDuration:         15 * time.Second,
		RetryPeriod:           2 * time.Second,
		MigrationLockEnabled:  true,
		Identity:              defaultIdentity(),
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}
