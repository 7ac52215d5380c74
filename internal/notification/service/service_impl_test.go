package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/notification/domain"
	"github.com/chatboard/chatboard/internal/notification/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	repo   domain.Repository
	node   *snowflake.Node
	clk    *clock.FakeClock
	userID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.NewRepository(db)
	return &fixture{
		svc:    NewService(repo),
		repo:   repo,
		node:   node,
		clk:    clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		userID: node.Generate(),
	}
}

func (f *fixture) add(t *testing.T, userID snowflake.ID, body string) domain.Notification {
	t.Helper()

	n := domain.Notification{
		ID:        f.node.Generate(),
		UserID:    userID,
		OrgID:     f.node.Generate(),
		RoomID:    f.node.Generate(),
		MessageID: f.node.Generate(),
		Body:      body,
		CreatedAt: f.clk.Now(),
	}
	require.NoError(t, f.repo.CreateBatch(context.Background(), []domain.Notification{n}))
	return n
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.userID, "first")
	f.add(t, f.userID, "second")
	f.add(t, f.node.Generate(), "someone else's")

	items, err := f.svc.List(context.Background(), f.userID, false, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Body)
	assert.Equal(t, "first", items[1].Body)
}

func TestListUnreadOnly(t *testing.T) {
	f := newFixture(t)
	read := f.add(t, f.userID, "seen")
	require.NoError(t, f.svc.MarkRead(context.Background(), f.userID, read.ID))
	f.add(t, f.userID, "fresh")

	items, err := f.svc.List(context.Background(), f.userID, true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].Body)
	assert.False(t, items[0].Read)
}

func TestMarkReadOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	n := f.add(t, f.userID, "hello")

	err := f.svc.MarkRead(context.Background(), f.node.Generate(), n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := f.svc.UnreadCount(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkReadUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.MarkRead(context.Background(), f.userID, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.userID, "one")
	f.add(t, f.userID, "two")
	other := f.node.Generate()
	f.add(t, other, "untouched")

	require.NoError(t, f.svc.MarkAllRead(context.Background(), f.userID))

	count, err := f.svc.UnreadCount(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	otherCount, err := f.svc.UnreadCount(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherCount)
}
