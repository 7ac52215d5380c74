// Package domain contains persistence models and contracts for notifications.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Notification is a per-user pointer to a message the user has not seen.
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index:ix_notifications_user_read,priority:1" json:"user_id"`
	OrgID     snowflake.ID `gorm:"not null" json:"org_id"`
	RoomID    snowflake.ID `gorm:"not null" json:"room_id"`
	MessageID snowflake.ID `gorm:"not null" json:"message_id"`
	Body      string       `gorm:"type:text;not null;default:''" json:"body"`
	Read      bool         `gorm:"not null;default:false;index:ix_notifications_user_read,priority:2" json:"read"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, notifications []Notification) error
	ListByUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notificationID snowflake.ID) error
	MarkAllRead(ctx context.Context, userID snowflake.ID) error
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
}

type Service interface {
	List(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]NotificationResponse, error)
	MarkRead(ctx context.Context, userID, notificationID snowflake.ID) error
	MarkAllRead(ctx context.Context, userID snowflake.ID) error
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
}

type NotificationResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("notification_not_found")
