package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	accountrepository "github.com/chatboard/chatboard/internal/account/repository"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	"github.com/chatboard/chatboard/internal/message/domain"
	"github.com/chatboard/chatboard/internal/message/repository"
	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	notificationrepository "github.com/chatboard/chatboard/internal/notification/repository"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	orgrepository "github.com/chatboard/chatboard/internal/organization/repository"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	roomrepository "github.com/chatboard/chatboard/internal/room/repository"
	webhookdomain "github.com/chatboard/chatboard/internal/webhook/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubPublisher struct {
	topics []string
}

func (p *stubPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	_ = ctx
	_ = orgID
	_ = payload
	p.topics = append(p.topics, topic)
	return nil
}

func (p *stubPublisher) WithTx(tx *gorm.DB) event.Publisher {
	_ = tx
	return p
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	hub       *hub.Hub
	node      *snowflake.Node
	clk       *clock.FakeClock
	publisher *stubPublisher
	orgID     snowflake.ID
	roomID    snowflake.ID
}

func newFixture(t *testing.T) *fixture {
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
		&domain.Message{},
		&notificationdomain.Notification{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	broadcaster := hub.NewHub()
	publisher := &stubPublisher{}

	f := &fixture{
		db:        db,
		hub:       broadcaster,
		node:      node,
		clk:       clk,
		publisher: publisher,
		orgID:     node.Generate(),
		roomID:    node.Generate(),
	}
	f.svc = NewService(Params{
		DB:            db,
		Repo:          repository.NewRepository(db),
		Rooms:         roomrepository.NewRepository(db),
		Orgs:          orgrepository.NewRepository(db),
		Accounts:      accountrepository.NewRepository(db),
		Notifications: notificationrepository.NewRepository(db),
		Broadcaster:   broadcaster,
		Publisher:     publisher,
		GenID:         node,
		Clock:         clk,
		Logger:        zap.NewNop(),
	})

	require.NoError(t, db.Create(&orgdomain.Organization{
		ID:        f.orgID,
		Name:      "Acme",
		Slug:      "acme",
		CreatedAt: clk.Now(),
		UpdatedAt: clk.Now(),
	}).Error)
	require.NoError(t, db.Create(&roomdomain.Room{
		ID:          f.roomID,
		OrgID:       f.orgID,
		Name:        "general",
		Slug:        "general",
		AccessLevel: roomdomain.AccessPublic,
		CreatedBy:   f.node.Generate(),
		CreatedAt:   clk.Now(),
		UpdatedAt:   clk.Now(),
	}).Error)
	return f
}

func (f *fixture) addUser(t *testing.T, email, role string, inRoom bool) snowflake.ID {
	t.Helper()

	userID := f.node.Generate()
	require.NoError(t, f.db.Create(&accountdomain.User{
		ID:           userID,
		Email:        email,
		DisplayName:  email,
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
	if inRoom {
		require.NoError(t, f.db.Create(&roomdomain.RoomMember{
			ID:        f.node.Generate(),
			RoomID:    f.roomID,
			UserID:    userID,
			CreatedAt: f.clk.Now(),
		}).Error)
	}
	return userID
}

func (f *fixture) notificationsOf(t *testing.T, userID snowflake.ID) []notificationdomain.Notification {
	t.Helper()

	var rows []notificationdomain.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error)
	return rows
}

func TestCreateRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)

	_, err := f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestCreateRequiresRoomMembership(t *testing.T) {
	f := newFixture(t)
	outsider := f.addUser(t, "outsider@acme.test", orgdomain.RoleMember, false)

	_, err := f.svc.Create(context.Background(), outsider, f.roomID, domain.CreateMessageRequest{Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotRoomMember)
}

func TestCreatePersistsNotifiesAndFansOut(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)
	reader := f.addUser(t, "reader@acme.test", orgdomain.RoleMember, true)

	sub, err := f.hub.Subscribe(context.Background(), hub.RoomKey(f.roomID))
	require.NoError(t, err)
	defer sub.Close()

	resp, err := f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "sender@acme.test", resp.SenderEmail)

	var stored domain.Message
	require.NoError(t, f.db.First(&stored, "room_id = ?", f.roomID).Error)
	assert.Equal(t, "hello there", stored.Body)
	assert.False(t, stored.Deleted)

	// The sender never gets a notification for their own message.
	assert.Empty(t, f.notificationsOf(t, sender))
	rows := f.notificationsOf(t, reader)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello there", rows[0].Body)
	assert.False(t, rows[0].Read)

	select {
	case ev := <-sub.Events():
		var frame map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &frame))
		assert.Equal(t, "message", frame["type"])
		assert.Equal(t, "hello there", frame["body"])
		assert.Equal(t, "sender@acme.test", frame["sender_email"])
	default:
		t.Fatal("expected a fanout frame")
	}

	assert.Contains(t, f.publisher.topics, "message.created")
}

func TestCreateAndWebhookEnqueueCommitTogether(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)

	require.NoError(t, f.db.AutoMigrate(&webhookdomain.Webhook{}, &webhookdomain.Outbox{}))
	require.NoError(t, f.db.Create(&webhookdomain.Webhook{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		URL:       "https://hooks.acme.test/chat",
		Secret:    "whsec_test",
		Events:    datatypes.JSON(`["message.created"]`),
		Active:    true,
		CreatedBy: sender,
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}).Error)

	svc := NewService(Params{
		DB:            f.db,
		Repo:          repository.NewRepository(f.db),
		Rooms:         roomrepository.NewRepository(f.db),
		Orgs:          orgrepository.NewRepository(f.db),
		Accounts:      accountrepository.NewRepository(f.db),
		Notifications: notificationrepository.NewRepository(f.db),
		Broadcaster:   f.hub,
		Publisher:     event.NewOutboxPublisher(f.db, f.node, f.clk, zap.NewNop()),
		GenID:         f.node,
		Clock:         f.clk,
		Logger:        zap.NewNop(),
	})

	_, err := svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "first"})
	require.NoError(t, err)

	var enqueued int64
	require.NoError(t, f.db.Model(&webhookdomain.Outbox{}).Count(&enqueued).Error)
	assert.Equal(t, int64(1), enqueued)

	// When the event cannot be recorded, the message must not be either.
	require.NoError(t, f.db.Migrator().DropTable(&webhookdomain.Outbox{}))

	_, err = svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "lost"})
	require.Error(t, err)

	var stored int64
	require.NoError(t, f.db.Model(&domain.Message{}).Where("body = ?", "lost").Count(&stored).Error)
	assert.Equal(t, int64(0), stored)
}

func TestNotificationPreview(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)
	reader := f.addUser(t, "reader@acme.test", orgdomain.RoleMember, true)

	long := strings.Repeat("a", 100)
	_, err := f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: long})
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{
		FileURL: "https://files.acme.test/report.pdf",
	})
	require.NoError(t, err)

	rows := f.notificationsOf(t, reader)
	require.Len(t, rows, 2)
	assert.Equal(t, strings.Repeat("a", 80)+"…", rows[0].Body)
	assert.Equal(t, "shared a file", rows[1].Body)
}

func TestListRequiresMembershipAndSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)
	outsider := f.addUser(t, "outsider@acme.test", orgdomain.RoleMember, false)

	_, err := f.svc.List(context.Background(), outsider, f.roomID, 0, 10)
	assert.ErrorIs(t, err, domain.ErrNotRoomMember)

	first, err := f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "one"})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "two"})
	require.NoError(t, err)

	firstID, err := snowflake.ParseString(first.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(context.Background(), sender, firstID))

	messages, err := f.svc.List(context.Background(), sender, f.roomID, 0, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "two", messages[0].Body)
}

func TestDeleteAuthorization(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender@acme.test", orgdomain.RoleMember, true)
	other := f.addUser(t, "other@acme.test", orgdomain.RoleMember, true)
	admin := f.addUser(t, "admin@acme.test", orgdomain.RoleAdmin, true)

	resp, err := f.svc.Create(context.Background(), sender, f.roomID, domain.CreateMessageRequest{Body: "hi"})
	require.NoError(t, err)
	messageID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), other, messageID), domain.ErrForbidden)
	require.NoError(t, f.svc.Delete(context.Background(), admin, messageID))
	assert.Contains(t, f.publisher.topics, "message.deleted")

	// Deleting twice reports not found.
	assert.ErrorIs(t, f.svc.Delete(context.Background(), sender, messageID), domain.ErrMessageNotFound)
}
