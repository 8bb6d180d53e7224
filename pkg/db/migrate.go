package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/ha"
)

// Migrate runs AutoMigrate for models while holding the migration lock, so
// replicas starting together never race on schema changes.
func Migrate(ctx context.Context, gormDB *gorm.DB, locker ha.MigrationLocker, models ...any) error {
	if locker == nil {
		locker = ha.NewMigrationLocker(gormDB)
	}
	return locker.WithLock(ctx, func() error {
		if err := gormDB.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageSize clamps a requested page size to [1, 100], defaulting to 20.
func PageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// ParsePageToken decodes an RFC3339 page token. An empty token yields the
// zero time.
func ParsePageToken(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidPageToken, err)
	}
	return t, nil
}

// PageToken encodes t as a page token.
func PageToken(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
