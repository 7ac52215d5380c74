package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type MemberListItem struct {
	UserID      snowflake.ID
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

type UnreadCount struct {
	RoomID snowflake.ID
	Count  int64
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id snowflake.ID) (*Room, error)
	ListRoomsByOrg(ctx context.Context, orgID snowflake.ID) ([]Room, error)
	AddMember(ctx context.Context, member RoomMember) error
	GetMember(ctx context.Context, roomID, userID snowflake.ID) (*RoomMember, error)
	RemoveMember(ctx context.Context, roomID, userID snowflake.ID) error
	ListMembers(ctx context.Context, roomID snowflake.ID) ([]MemberListItem, error)
	ListMemberUserIDs(ctx context.Context, roomID snowflake.ID) ([]snowflake.ID, error)
	AdvanceLastRead(ctx context.Context, roomID, userID, messageID snowflake.ID) error
	MaxMessageID(ctx context.Context, roomID snowflake.ID) (snowflake.ID, error)
	UnreadCounts(ctx context.Context, orgID, userID snowflake.ID) ([]UnreadCount, error)
}
