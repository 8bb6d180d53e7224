// Package db opens the gorm connection for the configured dialect and
// classifies driver errors for the stores built on top of it.
package db

import (
	"time"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// DBConfig controls the database connection.
type DBConfig struct {
	Type            string        `mapstructure:"type"`              // sqlite, postgres or mysql. Default sqlite.
	DSN             string        `mapstructure:"dsn"`               // Driver DSN. Default "greenledger.db".
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // Ignored for sqlite, which always uses one connection.
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // Default 5.
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // Default 30m.
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`      // sqlite busy_timeout pragma. Default 5s.
	LogQueries      bool          `mapstructure:"log_queries"`       // Log every SQL statement at info level.
}

// DefaultDBConfig returns the default database configuration.
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		Type:            TypeSQLite,
		DSN:             "greenledger.db",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}
