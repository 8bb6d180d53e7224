//go:build integration

package credits

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/db"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("greenledger"),
		tcpostgres.WithUsername("greenledger"),
		tcpostgres.WithPassword("greenledger"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := db.DefaultDBConfig()
	cfg.Type = db.TypePostgres
	cfg.DSN = dsn
	gormDB, err := db.Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, gormDB, nil, Models()...))
	return gormDB
}

// Concurrent writers on separate connections race on the unique index, not
// on the pre-insert lookup, so the duplicate-key path is exercised for real.
func TestPostgres_ConcurrentIssueCreditsOnce(t *testing.T) {
	store := NewStore(setupPostgres(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, ok, err := store.Issue(ctx, newCredit("u1", "e-race", 1.5, 3750, at))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[rec.ID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1, "every caller sees the winning record")

	aggs, err := store.Monthly(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(1), aggs[0].RecordCount, "losers must not touch the aggregate")
	assert.InDelta(t, 1.5, aggs[0].CreditsEarned, 1e-9)
}

func TestPostgres_DuplicateKeyIsClassified(t *testing.T) {
	gormDB := setupPostgres(t)
	at := time.Now().UTC()

	first := newCredit("u1", "e-dup", 1, 2500, at)
	require.NoError(t, gormDB.Create(first).Error)
	err := gormDB.Create(newCredit("u1", "e-dup", 1, 2500, at)).Error
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKey(err), fmt.Sprintf("%T: %v", err, err))
}
