package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/notification/domain"
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

func (r *repository) CreateBatch(ctx context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		err := r.db.WithContext(ctx).Exec(
			`INSERT INTO notifications (id, user_id, org_id, room_id, message_id, body, read, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID,
			n.UserID,
			n.OrgID,
			n.RoomID,
			n.MessageID,
			n.Body,
			n.Read,
			n.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, org_id, room_id, message_id, body, read, created_at
		 FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var items []domain.Notification
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) MarkRead(ctx context.Context, userID, notificationID snowflake.ID) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = ? WHERE id = ? AND user_id = ?`,
		true, notificationID, userID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = ? WHERE user_id = ? AND read = ?`,
		true, userID, false,
	).Error
}

func (r *repository) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = ?`,
		userID, false,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
