package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migration across replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	WithLock(ctx context.Context, fn func() error) error
}

const migrationLockName = "greenledger-migration"

// NewMigrationLocker returns a MigrationLocker for the dialect of db.
// PostgreSQL uses a session advisory lock; SQLite and MySQL use a lock row.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName))),
		}
	}
	// Created up front so concurrent first callers never see a missing table.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{
		db:            db,
		holder:        defaultIdentity(),
		maxAttempts:   30,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

// MigrationLockerFor returns NewMigrationLocker(db), or a lock that does
// nothing when cfg disables migration locking.
func MigrationLockerFor(cfg *HAConfig, db *gorm.DB) MigrationLocker {
	if cfg != nil && !cfg.MigrationLockEnabled {
		return noopMigrationLock{}
	}
	return NewMigrationLocker(db)
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	// Advisory locks are per session; pin one connection for lock and unlock.
	conn, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	c, err := conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migration lock: %w", err)
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockID); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = c.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.lockID)
	}()

	return fn()
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock inserts a single lock row and relies on the primary
// key to reject a second holder. Rows older than staleAfter are treated as
// left behind by a crashed replica.
type tableMigrationLock struct {
	db            *gorm.DB
	holder        string
	maxAttempts   int
	retryInterval time.Duration
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	var lastErr error
	acquired := false
	for i := 0; i < l.maxAttempts; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: migrationLockName, LockedAt: time.Now(), LockedBy: l.holder}
		if lastErr = l.db.WithContext(ctx).Create(&row).Error; lastErr == nil {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	if !acquired {
		return fmt.Errorf("acquire migration lock after %d attempts: %w", l.maxAttempts, lastErr)
	}

	defer l.db.Where("id = ?", migrationLockName).Delete(&migrationLockRecord{})

	return fn()
}
