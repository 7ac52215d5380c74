// Package domain contains persistence models and contracts for chat rooms.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	AccessPublic      = "PUBLIC"
	AccessManagerOnly = "MANAGER_ONLY"
	AccessPrivate     = "PRIVATE"
)

// ValidAccessLevel reports whether an access level string is recognized.
func ValidAccessLevel(level string) bool {
	switch level {
	case AccessPublic, AccessManagerOnly, AccessPrivate:
		return true
	}
	return false
}

// Room is a channel scoped to one organization.
type Room struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_rooms_org_slug,priority:1" json:"org_id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Slug        string       `gorm:"type:text;not null;uniqueIndex:ux_rooms_org_slug,priority:2" json:"slug"`
	AccessLevel string       `gorm:"type:text;not null;default:'PUBLIC'" json:"access_level"`
	IsDM        bool         `gorm:"column:is_dm;not null;default:false" json:"is_dm"`
	CreatedBy   snowflake.ID `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Room) TableName() string { return "rooms" }

// RoomMember tracks a user's membership and read position in a room.
type RoomMember struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	RoomID            snowflake.ID `gorm:"not null;index;uniqueIndex:ux_room_user,priority:1" json:"room_id"`
	UserID            snowflake.ID `gorm:"not null;index;uniqueIndex:ux_room_user,priority:2" json:"user_id"`
	LastReadMessageID snowflake.ID `gorm:"column:last_read_message_id;not null;default:0" json:"last_read_message_id"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RoomMember) TableName() string { return "room_members" }
