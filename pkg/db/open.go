package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database described by cfg. Driver errors are
// translated by gorm so duplicate-key failures surface as
// gorm.ErrDuplicatedKey on every dialect.
func Open(cfg *DBConfig, log *slog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultDBConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: logger.New(slogWriter{log: log}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.Type == TypeSQLite || cfg.Type == "" {
		// SQLite allows a single writer; one connection turns lock contention
		// into pool waits instead of SQLITE_BUSY errors.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return gormDB, nil
}

func dialectorFor(cfg *DBConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeSQLite, "":
		return sqlite.Open(sqliteDSN(cfg.DSN, cfg.BusyTimeout)), nil
	case TypePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres DSN is required")
		}
		return postgres.Open(cfg.DSN), nil
	case TypeMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql DSN is required")
		}
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres or mysql)", cfg.Type)
	}
}

// sqliteDSN appends the busy_timeout and foreign_keys pragmas understood by
// the glebarez driver.
func sqliteDSN(dsn string, busy time.Duration) string {
	if dsn == "" {
		dsn = DefaultDBConfig().DSN
	}
	if busy <= 0 {
		busy = DefaultDBConfig().BusyTimeout
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dsn, sep, busy.Milliseconds())
}

// slogWriter adapts slog to gorm's logger.Writer.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Info(fmt.Sprintf(format, args...), "component", "gorm")
}
