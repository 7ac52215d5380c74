package access

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/clock"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	orgrepository "github.com/chatboard/chatboard/internal/organization/repository"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	roomrepository "github.com/chatboard/chatboard/internal/room/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.User{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
		&roomdomain.Room{},
		&roomdomain.RoomMember{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	resolver *Resolver
	node     *snowflake.Node
	clk      *clock.FakeClock
	orgID    snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		db:       db,
		resolver: NewResolver(orgrepository.NewRepository(db), roomrepository.NewRepository(db), node, clk, zap.NewNop()),
		node:     node,
		clk:      clk,
		orgID:    node.Generate(),
	}

	require.NoError(t, db.Create(&orgdomain.Organization{
		ID:        f.orgID,
		Name:      "Acme",
		Slug:      "acme",
		CreatedAt: clk.Now(),
		UpdatedAt: clk.Now(),
	}).Error)
	return f
}

func (f *fixture) addMember(t *testing.T, role string) snowflake.ID {
	t.Helper()

	userID := f.node.Generate()
	require.NoError(t, f.db.Create(&accountdomain.User{
		ID:           userID,
		Email:        fmt.Sprintf("user-%s@acme.test", userID),
		DisplayName:  strings.ToLower(role),
		PasswordHash: "x",
		CreatedAt:    f.clk.Now(),
		UpdatedAt:    f.clk.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&orgdomain.OrganizationMember{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: f.clk.Now(),
	}).Error)
	return userID
}

func (f *fixture) addRoom(t *testing.T, accessLevel string, createdBy snowflake.ID) roomdomain.Room {
	t.Helper()

	room := roomdomain.Room{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Name:        accessLevel,
		Slug:        strings.ToLower(accessLevel),
		AccessLevel: accessLevel,
		CreatedBy:   createdBy,
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&room).Error)
	return room
}

func (f *fixture) roomsOf(t *testing.T, userID snowflake.ID) map[snowflake.ID]bool {
	t.Helper()

	var members []roomdomain.RoomMember
	require.NoError(t, f.db.Where("user_id = ?", userID).Find(&members).Error)
	joined := make(map[snowflake.ID]bool, len(members))
	for _, m := range members {
		joined[m.RoomID] = true
	}
	return joined
}

func TestRoleOf(t *testing.T) {
	f := newFixture(t)
	admin := f.addMember(t, orgdomain.RoleAdmin)

	role, err := f.resolver.RoleOf(context.Background(), f.orgID, admin)
	require.NoError(t, err)
	assert.Equal(t, orgdomain.RoleAdmin, role)

	_, err = f.resolver.RoleOf(context.Background(), f.orgID, f.node.Generate())
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestCanJoin(t *testing.T) {
	assert.True(t, CanJoin(roomdomain.AccessPublic, orgdomain.RoleMember))
	assert.True(t, CanJoin(roomdomain.AccessManagerOnly, orgdomain.RoleManager))
	assert.True(t, CanJoin(roomdomain.AccessManagerOnly, orgdomain.RoleAdmin))
	assert.False(t, CanJoin(roomdomain.AccessManagerOnly, orgdomain.RoleMember))
	assert.False(t, CanJoin(roomdomain.AccessPrivate, orgdomain.RoleAdmin))
	assert.False(t, CanJoin(roomdomain.AccessPrivate, orgdomain.RoleMember))
}

func TestCanCreateRoom(t *testing.T) {
	assert.True(t, CanCreateRoom(orgdomain.RoleAdmin))
	assert.True(t, CanCreateRoom(orgdomain.RoleManager))
	assert.False(t, CanCreateRoom(orgdomain.RoleMember))
}

func TestPropagateMemberSweepsEligibleRooms(t *testing.T) {
	f := newFixture(t)
	admin := f.addMember(t, orgdomain.RoleAdmin)

	public := f.addRoom(t, roomdomain.AccessPublic, admin)
	managerOnly := f.addRoom(t, roomdomain.AccessManagerOnly, admin)
	private := f.addRoom(t, roomdomain.AccessPrivate, admin)

	member := f.addMember(t, orgdomain.RoleMember)
	require.NoError(t, f.resolver.PropagateMember(context.Background(), f.orgID, member, orgdomain.RoleMember))

	joined := f.roomsOf(t, member)
	assert.True(t, joined[public.ID])
	assert.False(t, joined[managerOnly.ID])
	assert.False(t, joined[private.ID])

	manager := f.addMember(t, orgdomain.RoleManager)
	require.NoError(t, f.resolver.PropagateMember(context.Background(), f.orgID, manager, orgdomain.RoleManager))

	joined = f.roomsOf(t, manager)
	assert.True(t, joined[public.ID])
	assert.True(t, joined[managerOnly.ID])
	assert.False(t, joined[private.ID])
}

func TestPropagateMemberIdempotent(t *testing.T) {
	f := newFixture(t)
	admin := f.addMember(t, orgdomain.RoleAdmin)
	public := f.addRoom(t, roomdomain.AccessPublic, admin)

	member := f.addMember(t, orgdomain.RoleMember)
	require.NoError(t, f.resolver.PropagateMember(context.Background(), f.orgID, member, orgdomain.RoleMember))
	require.NoError(t, f.resolver.PropagateMember(context.Background(), f.orgID, member, orgdomain.RoleMember))

	var count int64
	require.NoError(t, f.db.Model(&roomdomain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", public.ID, member).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPropagateRoomSweepsEligibleMembers(t *testing.T) {
	f := newFixture(t)
	admin := f.addMember(t, orgdomain.RoleAdmin)
	manager := f.addMember(t, orgdomain.RoleManager)
	member := f.addMember(t, orgdomain.RoleMember)

	managerOnly := f.addRoom(t, roomdomain.AccessManagerOnly, admin)
	require.NoError(t, f.resolver.PropagateRoom(context.Background(), managerOnly))

	assert.True(t, f.roomsOf(t, admin)[managerOnly.ID])
	assert.True(t, f.roomsOf(t, manager)[managerOnly.ID])
	assert.False(t, f.roomsOf(t, member)[managerOnly.ID])

	private := f.addRoom(t, roomdomain.AccessPrivate, admin)
	require.NoError(t, f.resolver.PropagateRoom(context.Background(), private))

	assert.False(t, f.roomsOf(t, admin)[private.ID])
	assert.False(t, f.roomsOf(t, member)[private.ID])
}
