// Package marketrate reads the externally published price of one carbon
// credit. Rates are append-only; the current rate is the most recent one
// whose effective time has passed.
package marketrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/db"
)

// DefaultRatePerCredit and DefaultCurrency seed an empty rate table.
const (
	DefaultRatePerCredit = 2500.0
	DefaultCurrency      = "INR"
)

var (
	// ErrNoRate is returned when no rate is effective yet. It is a
	// dependency failure: the upstream publisher has not supplied data.
	ErrNoRate = fmt.Errorf("no effective market rate: %w", db.ErrDependency)

	// ErrInvalidRate rejects a non-positive or non-finite seed rate.
	ErrInvalidRate = errors.New("invalid market rate")
)

// MarketRate is the GORM model for one published credit price.
type MarketRate struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	RatePerCredit float64   `gorm:"column:rate_per_credit;not null"`
	Currency      string    `gorm:"column:currency;type:varchar(3);not null"`
	EffectiveAt   time.Time `gorm:"column:effective_at;index:idx_market_rate_effective;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (MarketRate) TableName() string { return "market_rates" }

// Store reads and seeds market rates.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the market_rates table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&MarketRate{})
}

// Current returns the most recent rate effective at the time of the call.
// It always goes to the database; callers read it once at the start of an
// operation and use that value throughout.
func (s *Store) Current(ctx context.Context) (MarketRate, error) {
	var rate MarketRate
	err := s.db.WithContext(ctx).
		Where("effective_at <= ?", s.now()).
		Order("effective_at DESC").
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MarketRate{}, ErrNoRate
		}
		return MarketRate{}, db.Dependency("read market rate", err)
	}
	return rate, nil
}

// Seed inserts rate as the current rate when the table is empty. It returns
// true when a row was written.
func (s *Store) Seed(ctx context.Context, rate float64, currency string) (bool, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return false, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	var seeded bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&MarketRate{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		now := s.now()
		seeded = true
		return tx.Create(&MarketRate{
			ID:            uuid.New().String(),
			RatePerCredit: rate,
			Currency:      currency,
			EffectiveAt:   now,
			CreatedAt:     now,
		}).Error
	})
	if err != nil {
		return false, db.Dependency("seed market rate", err)
	}
	return seeded, nil
}

// Register mounts GET /market-rate on r.
func Register(r chi.Router, store *Store, logger *slog.Logger) {
	r.Get("/market-rate", CurrentRateHandler(store, logger))
}

type rateResponse struct {
	RatePerCredit float64 `json:"rate_per_credit"`
	Currency      string  `json:"currency"`
	EffectiveAt   string  `json:"effective_at"`
}

// CurrentRateHandler handles GET /market-rate.
func CurrentRateHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rate, err := store.Current(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, rateResponse{
			RatePerCredit: rate.RatePerCredit,
			Currency:      rate.Currency,
			EffectiveAt:   rate.EffectiveAt.Format(time.RFC3339),
		})
	}
}
