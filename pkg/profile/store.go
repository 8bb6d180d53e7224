package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/factors"
)

// ErrProfileNotFound is returned when a user has not created a profile.
var ErrProfileNotFound = fmt.Errorf("profile %w", db.ErrNotFound)

// Store provides database operations for profiles and certifications.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the profile tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Get returns the profile of userID.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, db.Dependency("get profile", err)
	}
	return &p, nil
}

// editableColumns are the columns a user may change through Upsert. Score
// columns belong to the aggregator.
var editableColumns = []string{
	"business_name", "business_type", "gstin", "identity_verified", "bank_verified",
	"completion_pct", "annual_revenue", "existing_debt", "updated_at",
}

// Upsert creates the profile or overwrites its editable columns. The
// returned profile is re-read so score fields are current.
func (s *Store) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(editableColumns),
	}).Create(p).Error
	if err != nil {
		return nil, db.Dependency("upsert profile", err)
	}
	return s.Get(ctx, p.UserID)
}

// ScoreUpdate is the result of one Green Score recalculation.
type ScoreUpdate struct {
	Score   float64
	Grade   string
	Factors map[string]float64
	At      time.Time
}

// SaveScore stores update on userID's profile and appends it to the
// history, dropping the oldest entries beyond HistoryLimit. A missing
// profile is created. Concurrent writers are last-write-wins.
func (s *Store) SaveScore(ctx context.Context, userID string, update ScoreUpdate) (*Profile, error) {
	at := update.At.UTC()
	snap := ScoreSnapshot{Score: update.Score, Grade: update.Grade, Factors: update.Factors, CalculatedAt: at}

	var saved Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Profile
		err := tx.Where("user_id = ?", userID).First(&p).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if !found {
			p = Profile{UserID: userID, BusinessType: string(factors.BusinessGeneral), CreatedAt: at}
		}

		p.GreenScore = update.Score
		p.GreenGrade = update.Grade
		p.ScoreFactors = factorMap(update.Factors)
		p.ScoreHistory = appendCapped(p.ScoreHistory, snap, HistoryLimit)
		p.ScoreUpdatedAt = &at
		p.UpdatedAt = at

		if found {
			err = tx.Model(&Profile{}).Where("user_id = ?", userID).Updates(map[string]any{
				"green_score":      p.GreenScore,
				"green_grade":      p.GreenGrade,
				"score_factors":    p.ScoreFactors,
				"score_history":    p.ScoreHistory,
				"score_updated_at": p.ScoreUpdatedAt,
				"updated_at":       p.UpdatedAt,
			}).Error
		} else {
			err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error
		}
		saved = p
		return err
	})
	if err != nil {
		return nil, db.Dependency("save green score", err)
	}
	return &saved, nil
}

// BusinessType returns the declared business type of userID, or
// factors.BusinessGeneral when there is no profile or the stored value is
// not a known type.
func (s *Store) BusinessType(ctx context.Context, userID string) (factors.BusinessType, error) {
	p, err := s.Get(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return factors.BusinessGeneral, nil
	}
	if err != nil {
		return "", err
	}
	bt, err := factors.ParseBusinessType(p.BusinessType)
	if err != nil {
		return factors.BusinessGeneral, nil
	}
	return bt, nil
}

// Certifications returns every certification of userID ordered by name.
func (s *Store) Certifications(ctx context.Context, userID string) ([]Certification, error) {
	var certs []Certification
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&certs).Error; err != nil {
		return nil, db.Dependency("list certifications", err)
	}
	return certs, nil
}

// UpsertCertification creates or updates the certification name of userID.
func (s *Store) UpsertCertification(ctx context.Context, userID, name string, status CertificationStatus) (*Certification, error) {
	cert := &Certification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Status:    status,
		UpdatedAt: s.now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(cert).Error
	if err != nil {
		return nil, db.Dependency("upsert certification", err)
	}

	var stored Certification
	if err := s.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&stored).Error; err != nil {
		return nil, db.Dependency("reload certification", err)
	}
	return &stored, nil
}

func appendCapped(history []ScoreSnapshot, snap ScoreSnapshot, limit int) []ScoreSnapshot {
	history = append(history, snap)
	if len(history) > limit {
		history = append([]ScoreSnapshot(nil), history[len(history)-limit:]...)
	}
	return history
}

func factorMap(f map[string]float64) db.JSONMap {
	m := make(db.JSONMap, len(f))
	for k, v := range f {
		m[k] = v
	}
	return m
}
