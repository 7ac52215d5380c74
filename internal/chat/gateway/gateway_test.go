package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/chat/hub"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	roomrepository "github.com/chatboard/chatboard/internal/room/repository"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAccounts struct {
	identity accountdomain.Identity
}

func (f *fakeAccounts) Signup(ctx context.Context, req accountdomain.SignupRequest) (*accountdomain.AuthResponse, error) {
	return nil, accountdomain.ErrInvalidCredentials
}

func (f *fakeAccounts) Login(ctx context.Context, req accountdomain.LoginRequest) (*accountdomain.AuthResponse, error) {
	return nil, accountdomain.ErrInvalidCredentials
}

func (f *fakeAccounts) VerifyToken(ctx context.Context, token string) (*accountdomain.Identity, error) {
	_ = ctx
	if token != "good-token" {
		return nil, accountdomain.ErrInvalidToken
	}
	identity := f.identity
	return &identity, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id snowflake.ID) (*accountdomain.UserResponse, error) {
	return nil, accountdomain.ErrUserNotFound
}

type fixture struct {
	server      *httptest.Server
	broadcaster *hub.Hub
	node        *snowflake.Node
	userID      snowflake.ID
	roomID      snowflake.ID
}

func newFixture(t *testing.T, joinRoom bool) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&roomdomain.Room{}, &roomdomain.RoomMember{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		broadcaster: hub.NewHub(),
		node:        node,
		userID:      node.Generate(),
		roomID:      node.Generate(),
	}

	now := time.Now().UTC()
	require.NoError(t, db.Create(&roomdomain.Room{
		ID:          f.roomID,
		OrgID:       node.Generate(),
		Name:        "general",
		Slug:        "general",
		AccessLevel: roomdomain.AccessPublic,
		CreatedBy:   f.userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error)
	if joinRoom {
		require.NoError(t, db.Create(&roomdomain.RoomMember{
			ID:        node.Generate(),
			RoomID:    f.roomID,
			UserID:    f.userID,
			CreatedAt: now,
		}).Error)
	}

	accounts := &fakeAccounts{identity: accountdomain.Identity{
		UserID: f.userID,
		Email:  "ada@acme.test",
	}}
	gateway := New(accounts, roomrepository.NewRepository(db), f.broadcaster, zap.NewNop())

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/ws/rooms/:id", gateway.Handle)

	f.server = httptest.NewServer(engine)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) dial(t *testing.T, roomID snowflake.ID, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/rooms/" + roomID.String()
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	return closeErr.Code
}

func TestRejectsMissingToken(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "")
	assert.Equal(t, CloseUnauthorized, closeCode(t, conn))
	assert.Zero(t, f.broadcaster.Subscribers(hub.RoomKey(f.roomID)))
}

func TestRejectsInvalidToken(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "bad-token")
	assert.Equal(t, CloseUnauthorized, closeCode(t, conn))
	assert.Zero(t, f.broadcaster.Subscribers(hub.RoomKey(f.roomID)))
}

func TestRejectsNonMember(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, f.roomID, "good-token")
	assert.Equal(t, CloseForbidden, closeCode(t, conn))
	assert.Zero(t, f.broadcaster.Subscribers(hub.RoomKey(f.roomID)))
}

func TestRejectsUnknownRoom(t *testing.T) {
	f := newFixture(t, true)
	roomID := f.node.Generate()
	conn := f.dial(t, roomID, "good-token")
	assert.Equal(t, CloseForbidden, closeCode(t, conn))
	assert.Zero(t, f.broadcaster.Subscribers(hub.RoomKey(roomID)))
}

func TestConnectionAck(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "good-token")

	frame := readFrame(t, conn)
	assert.Equal(t, "connection", frame["type"])
	assert.Equal(t, f.userID.String(), frame["user_id"])
	assert.Equal(t, "ada@acme.test", frame["user_email"])
}

func TestRoomEventsAreDelivered(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "good-token")
	readFrame(t, conn)

	require.NoError(t, f.broadcaster.Publish(context.Background(), hub.RoomKey(f.roomID), hub.Event{
		Type: "message",
		Data: []byte(`{"type":"message","body":"hi"}`),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "message", frame["type"])
	assert.Equal(t, "hi", frame["body"])
}

func TestPingPong(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "good-token")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame["type"])
}

func TestTypingIsBroadcastToRoom(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "good-token")
	readFrame(t, conn)

	sub, err := f.broadcaster.Subscribe(context.Background(), hub.RoomKey(f.roomID))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","is_typing":true}`)))

	select {
	case ev := <-sub.Events():
		var frame map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &frame))
		assert.Equal(t, "typing", frame["type"])
		assert.Equal(t, true, frame["is_typing"])
		assert.Equal(t, f.userID.String(), frame["user_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("typing event was not broadcast")
	}
}

func TestUnknownFrameIsEchoed(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, f.roomID, "good-token")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "echo", frame["type"])
	assert.Equal(t, "unsupported message type", frame["message"])
}
