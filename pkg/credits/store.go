package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenledger/greenledger/pkg/db"
)

// Status is the lifecycle state of a credit. Transitions after pending
// belong to the redemption workflow.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusExpired  Status = "expired"
)

// CreditRecord is the GORM model for credits issued against one emission
// record. The unique index on emission_id is what guarantees a single
// credit per emission across replicas.
type CreditRecord struct {
	ID                string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	EmissionID        string    `gorm:"column:emission_id;type:varchar(36);uniqueIndex:idx_credit_emission;not null"`
	UserID            string    `gorm:"column:user_id;index:idx_credit_user_earned,priority:1;not null"`
	Category          string    `gorm:"column:category;not null"`
	BaselineKg        float64   `gorm:"column:baseline_kg"`
	ReductionKg       float64   `gorm:"column:reduction_kg"`
	QualityMultiplier float64   `gorm:"column:quality_multiplier"`
	CreditsEarned     float64   `gorm:"column:credits_earned"`
	CreditValue       float64   `gorm:"column:credit_value"`
	MarketRate        float64   `gorm:"column:market_rate"`
	Currency          string    `gorm:"column:currency;type:varchar(3)"`
	Status            Status    `gorm:"column:status;not null;default:pending"`
	EarnedAt          time.Time `gorm:"column:earned_at;index:idx_credit_user_earned,priority:2;not null"`
}

// TableName returns the GORM table name.
func (CreditRecord) TableName() string { return "credit_records" }

// MonthlyAggregate holds a user's running credit totals for one calendar
// month (UTC).
type MonthlyAggregate struct {
	UserID        string    `gorm:"primaryKey;column:user_id;type:varchar(255)"`
	Month         string    `gorm:"primaryKey;column:month;type:varchar(7)"`
	CreditsEarned float64   `gorm:"column:credits_earned;not null;default:0"`
	CreditValue   float64   `gorm:"column:credit_value;not null;default:0"`
	RecordCount   int64     `gorm:"column:record_count;not null;default:0"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (MonthlyAggregate) TableName() string { return "credit_monthly_aggregates" }

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&CreditRecord{}, &MonthlyAggregate{}}
}

// MonthKey formats t as the aggregate month key, e.g. "2026-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Store provides database operations for credit records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the credit tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Issue inserts rec and adds it to the monthly aggregate in one
// transaction. When a credit for rec.EmissionID already exists, nothing is
// written and the existing record is returned with created=false. This
// holds under concurrency: a writer that loses the race on the unique index
// rolls back its aggregate update along with the insert.
//
// Errors are returned unwrapped so the caller can classify them.
func (s *Store) Issue(ctx context.Context, rec *CreditRecord) (*CreditRecord, bool, error) {
	var existing *CreditRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior CreditRecord
		err := tx.Where("emission_id = ?", rec.EmissionID).First(&prior).Error
		if err == nil {
			existing = &prior
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing credit: %w", err)
		}

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("insert credit: %w", err)
		}

		agg := MonthlyAggregate{
			UserID:        rec.UserID,
			Month:         MonthKey(rec.EarnedAt),
			CreditsEarned: rec.CreditsEarned,
			CreditValue:   rec.CreditValue,
			RecordCount:   1,
			UpdatedAt:     rec.EarnedAt,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
			DoUpdates: clause.Assignments(map[string]any{
				"credits_earned": gorm.Expr("credit_monthly_aggregates.credits_earned + ?", rec.CreditsEarned),
				"credit_value":   gorm.Expr("credit_monthly_aggregates.credit_value + ?", rec.CreditValue),
				"record_count":   gorm.Expr("credit_monthly_aggregates.record_count + 1"),
				"updated_at":     rec.EarnedAt,
			}),
		}).Create(&agg).Error
		if err != nil {
			return fmt.Errorf("update monthly aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		if !db.IsDuplicateKey(err) {
			return nil, false, err
		}
		// A concurrent issuer committed first. The failed transaction is
		// gone, so look the winner up on a fresh connection.
		winner, lookupErr := s.GetByEmission(ctx, rec.EmissionID)
		if lookupErr != nil {
			return nil, false, errors.Join(err, lookupErr)
		}
		return winner, false, nil
	}
	if existing != nil {
		return existing, false, nil
	}
	return rec, true, nil
}

// GetByEmission returns the credit issued for emissionID.
func (s *Store) GetByEmission(ctx context.Context, emissionID string) (*CreditRecord, error) {
	var rec CreditRecord
	if err := s.db.WithContext(ctx).Where("emission_id = ?", emissionID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("credit for emission %s: %w", emissionID, db.ErrNotFound)
		}
		return nil, db.Dependency("get credit", err)
	}
	return &rec, nil
}

// CountByUser returns how many credit records userID holds.
func (s *Store) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&CreditRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, db.Dependency("count credits", err)
	}
	return n, nil
}

// ListByUser returns a page of userID's credits ordered by earned_at DESC.
// pageToken is an RFC3339 timestamp; records earned before it are returned.
func (s *Store) ListByUser(ctx context.Context, userID string, pageSize int, pageToken string) ([]CreditRecord, string, int, error) {
	pageSize = db.PageSize(pageSize)
	before, err := db.ParsePageToken(pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	var totalSize int64
	if err := s.db.WithContext(ctx).Model(&CreditRecord{}).Where("user_id = ?", userID).Count(&totalSize).Error; err != nil {
		return nil, "", 0, db.Dependency("count credits", err)
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("earned_at DESC").Limit(pageSize + 1)
	if !before.IsZero() {
		query = query.Where("earned_at < ?", before)
	}
	var recs []CreditRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, "", 0, db.Dependency("list credits", err)
	}

	var nextToken string
	if len(recs) > pageSize {
		nextToken = db.PageToken(recs[pageSize-1].EarnedAt)
		recs = recs[:pageSize]
	}
	return recs, nextToken, int(totalSize), nil
}

// Monthly returns userID's monthly aggregates, most recent month first.
func (s *Store) Monthly(ctx context.Context, userID string) ([]MonthlyAggregate, error) {
	var aggs []MonthlyAggregate
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("month DESC").Find(&aggs).Error; err != nil {
		return nil, db.Dependency("list monthly credits", err)
	}
	return aggs, nil
}
