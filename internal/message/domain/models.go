// Package domain contains persistence models and contracts for messages.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Message ids are snowflakes, so ordering by id is ordering by time.
type Message struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RoomID    snowflake.ID `gorm:"not null;index:ix_messages_room_id" json:"room_id"`
	SenderID  snowflake.ID `gorm:"column:sender_id;not null" json:"sender_id"`
	Body      string       `gorm:"type:text;not null;default:''" json:"body"`
	FileURL   string       `gorm:"column:file_url;type:text;not null;default:''" json:"file_url"`
	Deleted   bool         `gorm:"not null;default:false" json:"deleted"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Message) TableName() string { return "messages" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, message Message) error
	Get(ctx context.Context, id snowflake.ID) (*Message, error)
	List(ctx context.Context, roomID, before snowflake.ID, limit int) ([]Message, error)
	SoftDelete(ctx context.Context, id snowflake.ID) error
}

type Service interface {
	Create(ctx context.Context, userID, roomID snowflake.ID, req CreateMessageRequest) (*MessageResponse, error)
	List(ctx context.Context, userID, roomID, before snowflake.ID, limit int) ([]MessageResponse, error)
	Delete(ctx context.Context, userID, messageID snowflake.ID) error
}

type CreateMessageRequest struct {
	Body    string
	FileURL string
}

type MessageResponse struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email"`
	Body        string    `json:"body"`
	FileURL     string    `json:"file_url"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrEmptyMessage    = errors.New("empty_message")
	ErrMessageNotFound = errors.New("message_not_found")
	ErrNotRoomMember   = errors.New("not_a_room_member")
	ErrForbidden       = errors.New("forbidden")
)
