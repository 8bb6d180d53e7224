package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/db"
)

// NotificationRecord is the GORM model for an outbox row. The delivery
// workflow reads undelivered rows and flips Delivered.
type NotificationRecord struct {
	ID        string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	UserID    string     `gorm:"column:user_id;index:idx_notification_user;not null"`
	EventType string     `gorm:"column:event_type;not null"`
	Payload   db.JSONMap `gorm:"column:payload;type:text"`
	Delivered bool       `gorm:"column:delivered;index:idx_notification_delivered;not null;default:false"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (NotificationRecord) TableName() string { return "notifications" }

// Outbox is a Sink that persists events for later delivery.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox creates a new Outbox.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// AutoMigrate creates or updates the notifications table.
func (o *Outbox) AutoMigrate() error {
	return o.db.AutoMigrate(&NotificationRecord{})
}

// Notify appends ev to the outbox.
func (o *Outbox) Notify(ctx context.Context, ev Event) error {
	rec := &NotificationRecord{
		ID:        uuid.New().String(),
		UserID:    ev.UserID,
		EventType: ev.Type,
		Payload:   db.JSONMap(ev.Payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// List returns a page of userID's notifications, newest first. pageToken is
// an RFC3339 timestamp; rows created before it are returned.
func (o *Outbox) List(ctx context.Context, userID string, pageSize int, pageToken string) ([]NotificationRecord, string, error) {
	pageSize = db.PageSize(pageSize)
	before, err := db.ParsePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	query := o.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(pageSize + 1)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}
	var recs []NotificationRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, "", db.Dependency("list notifications", err)
	}

	var next string
	if len(recs) > pageSize {
		next = db.PageToken(recs[pageSize-1].CreatedAt)
		recs = recs[:pageSize]
	}
	return recs, next, nil
}

// Register mounts GET /notifications on r.
func Register(r chi.Router, outbox *Outbox, logger *slog.Logger) {
	r.Get("/notifications", ListNotificationsHandler(outbox, logger))
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Delivered bool           `json:"delivered"`
	CreatedAt string         `json:"created_at"`
}

// ListNotificationsHandler handles GET /notifications.
// Query params: pageSize, pageToken
func ListNotificationsHandler(outbox *Outbox, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		recs, next, err := outbox.List(r.Context(), userID, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		items := make([]notificationResponse, len(recs))
		for i, rec := range recs {
			items[i] = notificationResponse{
				ID:        rec.ID,
				Type:      rec.EventType,
				Payload:   map[string]any(rec.Payload),
				Delivered: rec.Delivered,
				CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			}
		}
		api.WriteResult(w, http.StatusOK, map[string]any{
			"notifications": items,
			"nextPageToken": next,
		})
	}
}
