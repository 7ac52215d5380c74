package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, userID, orgID snowflake.ID, req CreateRoomRequest) (*RoomResponse, error)
	GetByID(ctx context.Context, userID, roomID snowflake.ID) (*RoomResponse, error)
	ListByOrg(ctx context.Context, userID, orgID snowflake.ID) ([]RoomResponse, error)
	Join(ctx context.Context, userID, roomID snowflake.ID) error
	InviteMember(ctx context.Context, actorID, roomID, userID snowflake.ID) error
	Leave(ctx context.Context, userID, roomID snowflake.ID) error
	ListMembers(ctx context.Context, userID, roomID snowflake.ID) ([]RoomMemberResponse, error)
	MarkRead(ctx context.Context, userID, roomID, messageID snowflake.ID) error
	UnreadCounts(ctx context.Context, userID, orgID snowflake.ID) (map[string]int64, error)
}

type CreateRoomRequest struct {
	Name        string
	AccessLevel string
}

type RoomResponse struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	AccessLevel string    `json:"access_level"`
	IsDM        bool      `json:"is_dm"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type RoomMemberResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidAccessLevel = errors.New("invalid_access_level")
	ErrRoomNotFound       = errors.New("room_not_found")
	ErrNotRoomMember      = errors.New("not_a_room_member")
	ErrForbidden          = errors.New("forbidden")
)
