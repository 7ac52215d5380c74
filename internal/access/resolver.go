// Package access resolves org roles into room visibility and keeps room
// membership in sync when members or rooms appear.
package access

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	pkgdb "github.com/chatboard/chatboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotMember is returned when a user has no membership in the organization.
var ErrNotMember = errors.New("not_a_member")

type Resolver struct {
	orgs  orgdomain.Repository
	rooms roomdomain.Repository
	genID *snowflake.Node
	clk   clock.Clock
	log   *zap.Logger
}

func NewResolver(orgs orgdomain.Repository, rooms roomdomain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) *Resolver {
	return &Resolver{
		orgs:  orgs,
		rooms: rooms,
		genID: genID,
		clk:   clk,
		log:   log.Named("access"),
	}
}

// RoleOf returns the user's role in the organization or ErrNotMember.
func (r *Resolver) RoleOf(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	member, err := r.orgs.GetMember(ctx, orgID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// CanJoin reports whether a role may self-join the room. PRIVATE rooms are
// invite only and never joinable directly.
func CanJoin(accessLevel, role string) bool {
	switch accessLevel {
	case roomdomain.AccessPublic:
		return true
	case roomdomain.AccessManagerOnly:
		return role == orgdomain.RoleManager || role == orgdomain.RoleAdmin
	default:
		return false
	}
}

// CanCreateRoom reports whether a role may create rooms.
func CanCreateRoom(role string) bool {
	return role == orgdomain.RoleManager || role == orgdomain.RoleAdmin
}

// autoJoined reports whether a room is swept into membership automatically
// for the given role.
func autoJoined(accessLevel, role string) bool {
	switch accessLevel {
	case roomdomain.AccessPublic:
		return true
	case roomdomain.AccessManagerOnly:
		return role == orgdomain.RoleManager || role == orgdomain.RoleAdmin
	default:
		return false
	}
}

// PropagateMember adds a new org member to every room their role grants
// automatic access to. Existing memberships are left untouched.
func (r *Resolver) PropagateMember(ctx context.Context, orgID, userID snowflake.ID, role string) error {
	rooms, err := r.rooms.ListRoomsByOrg(ctx, orgID)
	if err != nil {
		return err
	}

	now := r.clk.Now()
	for _, room := range rooms {
		if !autoJoined(room.AccessLevel, role) {
			continue
		}

		err := r.rooms.AddMember(ctx, roomdomain.RoomMember{
			ID:        r.genID.Generate(),
			RoomID:    room.ID,
			UserID:    userID,
			CreatedAt: now,
		})
		if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}
	}

	r.log.Debug("member propagated",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", role),
	)
	return nil
}

// PropagateRoom adds every eligible org member to a newly created room.
func (r *Resolver) PropagateRoom(ctx context.Context, room roomdomain.Room) error {
	members, err := r.orgs.ListMembers(ctx, room.OrgID)
	if err != nil {
		return err
	}

	now := r.clk.Now()
	for _, member := range members {
		if !autoJoined(room.AccessLevel, member.Role) {
			continue
		}

		err := r.rooms.AddMember(ctx, roomdomain.RoomMember{
			ID:        r.genID.Generate(),
			RoomID:    room.ID,
			UserID:    member.UserID,
			CreatedAt: now,
		})
		if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}
	}

	r.log.Debug("room propagated",
		zap.String("room_id", room.ID.String()),
		zap.String("access_level", room.AccessLevel),
	)
	return nil
}

var Module = fx.Module("access",
	fx.Provide(NewResolver),
)
