// Package audit keeps an append-only trail of state-changing requests and
// score recalculations, exposes it to the acting user, and prunes it after
// the retention period.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/db"
)

// Event types written by this service.
const (
	EventTypeRequest                = "request"
	EventTypeGreenScoreRecalculated = "green_score.recalculated"
)

// ErrEventNotFound is returned when an audit event does not exist or belongs
// to another actor.
var ErrEventNotFound = fmt.Errorf("audit event %w", db.ErrNotFound)

// EventRecord is the GORM model for one immutable audit event.
type EventRecord struct {
	ID            string              `gorm:"primaryKey;column:id;type:varchar(36)"`
	CorrelationID string              `gorm:"column:correlation_id;index"`
	EventType     string              `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor         string              `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	RequestID     string              `gorm:"column:request_id;index"`
	ResourceType  string              `gorm:"column:resource_type"`
	ResourceIDs   db.JSONList[string] `gorm:"column:resource_ids;type:text"`
	Action        string              `gorm:"column:action"`
	Outcome       string              `gorm:"column:outcome;not null"` // success, failure, denied
	StatusCode    int                 `gorm:"column:status_code"`
	OldValue      db.JSONMap          `gorm:"column:old_value;type:text"`
	NewValue      db.JSONMap          `gorm:"column:new_value;type:text"`
	Metadata      db.JSONMap          `gorm:"column:metadata;type:text"`
	CreatedAt     time.Time           `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&EventRecord{})
}

// Append creates a new immutable audit event record.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return db.Dependency("append audit event", err)
	}
	return nil
}

// ListFilter narrows ListByActor. Empty fields match everything.
type ListFilter struct {
	EventType string
	Action    string
}

// ListByActor returns a page of actor's audit events ordered by created_at
// DESC. pageToken is an RFC3339 timestamp; events created before it are
// returned.
func (s *Store) ListByActor(ctx context.Context, actor string, filter ListFilter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	pageSize = db.PageSize(pageSize)
	before, err := db.ParsePageToken(pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("actor = ?", actor)
		if filter.EventType != "" {
			q = q.Where("event_type = ?", filter.EventType)
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		return q
	}

	var totalSize int64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).Scopes(scope).Count(&totalSize).Error; err != nil {
		return nil, "", 0, db.Dependency("count audit events", err)
	}

	query := s.db.WithContext(ctx).Scopes(scope).Order("created_at DESC").Limit(pageSize + 1)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}
	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, db.Dependency("list audit events", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = db.PageToken(records[pageSize-1].CreatedAt)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// GetByID returns the audit event id recorded for actor.
func (s *Store) GetByID(ctx context.Context, actor, id string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("id = ? AND actor = ?", id, actor).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, db.Dependency("get audit event", err)
	}
	return &rec, nil
}

// DeleteOlderThan deletes audit events created before cutoff and returns the
// number of deleted records.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, db.Dependency("delete old audit events", result.Error)
	}
	return result.RowsAffected, nil
}
