package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/room/domain"
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

func (r *repository) CreateRoom(ctx context.Context, room domain.Room) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO rooms (id, org_id, name, slug, access_level, is_dm, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		room.OrgID,
		room.Name,
		room.Slug,
		room.AccessLevel,
		room.IsDM,
		room.CreatedBy,
		room.CreatedAt,
		room.UpdatedAt,
	).Error
}

func (r *repository) GetRoom(ctx context.Context, id snowflake.ID) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *repository) ListRoomsByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, slug, access_level, is_dm, created_by, created_at, updated_at
		 FROM rooms WHERE org_id = ?
		 ORDER BY created_at ASC`,
		orgID,
	).Scan(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.RoomMember) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO room_members (id, room_id, user_id, last_read_message_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.RoomID,
		member.UserID,
		member.LastReadMessageID,
		member.CreatedAt,
	).Error
}

func (r *repository) GetMember(ctx context.Context, roomID, userID snowflake.ID) (*domain.RoomMember, error) {
	var member domain.RoomMember
	err := r.db.WithContext(ctx).
		First(&member, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) RemoveMember(ctx context.Context, roomID, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	).Error
}

func (r *repository) ListMembers(ctx context.Context, roomID snowflake.ID) ([]domain.MemberListItem, error) {
	var items []domain.MemberListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.user_id, u.email, u.display_name, m.created_at
		 FROM room_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.room_id = ?
		 ORDER BY m.created_at ASC`,
		roomID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListMemberUserIDs(ctx context.Context, roomID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT user_id FROM room_members WHERE room_id = ?`,
		roomID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AdvanceLastRead moves the read pointer forward only. A stale mark-read with
// an older message id leaves the pointer untouched.
func (r *repository) AdvanceLastRead(ctx context.Context, roomID, userID, messageID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE room_members SET last_read_message_id = ?
		 WHERE room_id = ? AND user_id = ? AND last_read_message_id < ?`,
		messageID, roomID, userID, messageID,
	).Error
}

func (r *repository) MaxMessageID(ctx context.Context, roomID snowflake.ID) (snowflake.ID, error) {
	var max snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(id), 0) FROM messages WHERE room_id = ?`,
		roomID,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

// UnreadCounts excludes the user's own messages so sending never produces
// unread state for the sender.
func (r *repository) UnreadCounts(ctx context.Context, orgID, userID snowflake.ID) ([]domain.UnreadCount, error) {
	var counts []domain.UnreadCount
	err := r.db.WithContext(ctx).Raw(
		`SELECT rm.room_id, COUNT(msg.id) AS count
		 FROM room_members rm
		 JOIN rooms r ON r.id = rm.room_id
		 LEFT JOIN messages msg
		   ON msg.room_id = rm.room_id
		  AND msg.id > rm.last_read_message_id
		  AND msg.sender_id <> ?
		  AND msg.deleted = ?
		 WHERE rm.user_id = ? AND r.org_id = ?
		 GROUP BY rm.room_id`,
		userID, false, userID, orgID,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
