package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/message/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, message domain.Message) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO messages (id, room_id, sender_id, body, file_url, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.RoomID,
		message.SenderID,
		message.Body,
		message.FileURL,
		message.Deleted,
		message.CreatedAt,
	).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Message, error) {
	var message domain.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// List returns messages newest first. A zero before means "from the top".
func (r *repository) List(ctx context.Context, roomID, before snowflake.ID, limit int) ([]domain.Message, error) {
	query := `SELECT id, room_id, sender_id, body, file_url, deleted, created_at
		 FROM messages WHERE room_id = ? AND deleted = ?`
	args := []any{roomID, false}
	if before > 0 {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var messages []domain.Message
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) SoftDelete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE messages SET deleted = ? WHERE id = ?`,
		true, id,
	).Error
}
