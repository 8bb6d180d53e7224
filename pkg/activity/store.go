package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/db"
)

// ErrEmissionNotFound is returned when an emission record does not exist or
// belongs to another user.
var ErrEmissionNotFound = fmt.Errorf("emission record %w", db.ErrNotFound)

// Store provides database operations for activities and emission records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the activity and emission tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Insert persists an activity and, when non-nil, its emission record in one
// transaction.
func (s *Store) Insert(ctx context.Context, act *ActivityRecord, em *EmissionRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(act).Error; err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		if em == nil {
			return nil
		}
		if err := tx.Create(em).Error; err != nil {
			return fmt.Errorf("insert emission: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Dependency("record activity", err)
	}
	return nil
}

// GetEmission returns the emission record id owned by userID.
func (s *Store) GetEmission(ctx context.Context, userID, id string) (*EmissionRecord, error) {
	var rec EmissionRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEmissionNotFound, id)
		}
		return nil, db.Dependency("get emission", err)
	}
	return &rec, nil
}

// EmissionsInOrder returns every emission record of userID in insertion
// order, oldest first.
func (s *Store) EmissionsInOrder(ctx context.Context, userID string) ([]EmissionRecord, error) {
	var recs []EmissionRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, db.Dependency("list emissions", err)
	}
	return recs, nil
}

// ListEmissions returns a page of emission records, newest first. The page
// token is the seq of the last record of the previous page.
func (s *Store) ListEmissions(ctx context.Context, userID string, pageSize int, pageToken string) ([]EmissionRecord, string, int, error) {
	pageSize = db.PageSize(pageSize)

	var totalSize int64
	if err := s.db.WithContext(ctx).Model(&EmissionRecord{}).Where("user_id = ?", userID).Count(&totalSize).Error; err != nil {
		return nil, "", 0, db.Dependency("count emissions", err)
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq DESC").Limit(pageSize + 1)
	if pageToken != "" {
		after, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", 0, fmt.Errorf("%w: %q", db.ErrInvalidPageToken, pageToken)
		}
		query = query.Where("seq < ?", after)
	}

	var recs []EmissionRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, "", 0, db.Dependency("list emissions", err)
	}

	var nextToken string
	if len(recs) > pageSize {
		nextToken = strconv.FormatUint(recs[pageSize-1].Seq, 10)
		recs = recs[:pageSize]
	}
	return recs, nextToken, int(totalSize), nil
}

// Stats counts all and processed submissions of userID.
func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	var st Stats
	q := s.db.WithContext(ctx).Model(&ActivityRecord{}).Where("user_id = ?", userID)
	if err := q.Count(&st.Total).Error; err != nil {
		return Stats{}, db.Dependency("count activities", err)
	}
	if err := s.db.WithContext(ctx).Model(&ActivityRecord{}).
		Where("user_id = ? AND status = ?", userID, StatusProcessed).
		Count(&st.Processed).Error; err != nil {
		return Stats{}, db.Dependency("count processed activities", err)
	}
	return st, nil
}
