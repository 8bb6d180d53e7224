package ha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// leaseRecord is the shared lease row. Whoever holds an unexpired lease is
// the leader.
type leaseRecord struct {
	Name      string    `gorm:"primaryKey;column:name"`
	Holder    string    `gorm:"column:holder;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	RenewedAt time.Time `gorm:"column:renewed_at"`
}

func (leaseRecord) TableName() string { return "leader_leases" }

// LeaderElector runs singleton background loops (audit retention) on one
// replica at a time using a lease row in the shared database.
type LeaderElector struct {
	config   *HAConfig
	db       *gorm.DB
	identity string
	isLeader bool
	mu       sync.RWMutex
	logger   *slog.Logger
	onStart  func(ctx context.Context)
	onStop   func()
	now      func() time.Time
}

// NewLeaderElector creates a new LeaderElector. identity must be unique per
// replica.
func NewLeaderElector(cfg *HAConfig, db *gorm.DB, identity string, logger *slog.Logger) *LeaderElector {
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if identity == "" {
		identity = cfg.Identity
	}
	return &LeaderElector{
		config:   cfg,
		db:       db,
		identity: identity,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnStartLeading registers a callback invoked when this instance becomes
// leader. Its context is cancelled when leadership is lost.
func (le *LeaderElector) OnStartLeading(fn func(ctx context.Context)) {
	le.onStart = fn
}

// OnStopLeading registers a callback invoked when this instance loses
// leadership.
func (le *LeaderElector) OnStopLeading(fn func()) {
	le.onStop = fn
}

// IsLeader returns true if this instance currently holds the lease.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

// Migrate creates the lease table.
func (le *LeaderElector) Migrate() error {
	return le.db.AutoMigrate(&leaseRecord{})
}

// Run competes for the lease until ctx is cancelled. With leader election
// disabled the instance leads immediately for the lifetime of ctx.
func (le *LeaderElector) Run(ctx context.Context) {
	if !le.config.LeaderElectionEnabled || le.db == nil {
		le.setLeader(true)
		if le.onStart != nil {
			le.onStart(ctx)
		}
		<-ctx.Done()
		le.setLeader(false)
		return
	}

	le.logger.Info("starting leader election",
		"identity", le.identity,
		"lease", le.config.LeaseName,
		"leaseDuration", le.config.LeaseDuration,
		"retryPeriod", le.config.RetryPeriod,
	)

	ticker := time.NewTicker(le.config.RetryPeriod)
	defer ticker.Stop()

	var cancelLeading context.CancelFunc
	stopLeading := func() {
		if cancelLeading != nil {
			cancelLeading()
			cancelLeading = nil
		}
		if le.IsLeader() {
			le.setLeader(false)
			le.logger.Info("lost leadership", "identity", le.identity)
			if le.onStop != nil {
				le.onStop()
			}
		}
	}

	for {
		held, err := le.tryAcquireOrRenew(ctx)
		if err != nil {
			le.logger.Warn("lease renewal failed", "identity", le.identity, "error", err)
		}
		switch {
		case held && !le.IsLeader():
			le.setLeader(true)
			le.logger.Info("elected as leader", "identity", le.identity)
			var leadCtx context.Context
			leadCtx, cancelLeading = context.WithCancel(ctx)
			if le.onStart != nil {
				go le.onStart(leadCtx)
			}
		case !held && le.IsLeader():
			stopLeading()
		}

		select {
		case <-ctx.Done():
			stopLeading()
			le.release()
			return
		case <-ticker.C:
		}
	}
}

// tryAcquireOrRenew takes the lease when it is free, expired or already
// ours, and reports whether this instance holds it afterwards.
func (le *LeaderElector) tryAcquireOrRenew(ctx context.Context) (bool, error) {
	now := le.now()
	expires := now.Add(le.config.LeaseDuration)

	res := le.db.WithContext(ctx).Model(&leaseRecord{}).
		Where("name = ? AND (holder = ? OR expires_at < ?)", le.config.LeaseName, le.identity, now).
		Updates(map[string]any{"holder": le.identity, "expires_at": expires, "renewed_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	exists, err := le.leaseExists(ctx)
	if err != nil || exists {
		return false, err
	}

	// No lease row yet; the primary key lets only one replica create it.
	row := leaseRecord{Name: le.config.LeaseName, Holder: le.identity, ExpiresAt: expires, RenewedAt: now}
	if err := le.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		// Without error translation a lost race only shows as a row that
		// now exists.
		if exists, lookupErr := le.leaseExists(ctx); lookupErr == nil && exists {
			return false, nil
		}
		return false, fmt.Errorf("create lease %q: %w", le.config.LeaseName, err)
	}
	return true, nil
}

func (le *LeaderElector) leaseExists(ctx context.Context) (bool, error) {
	var existing leaseRecord
	err := le.db.WithContext(ctx).Where("name = ?", le.config.LeaseName).First(&existing).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("read lease %q: %w", le.config.LeaseName, err)
	}
}

func (le *LeaderElector) release() {
	le.db.Model(&leaseRecord{}).
		Where("name = ? AND holder = ?", le.config.LeaseName, le.identity).
		Update("expires_at", le.now().Add(-time.Second))
}

func (le *LeaderElector) setLeader(v bool) {
	le.mu.Lock()
	le.isLeader = v
	le.mu.Unlock()
}
