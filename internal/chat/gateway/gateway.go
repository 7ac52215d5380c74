// Package gateway upgrades authenticated HTTP requests into room WebSocket
// sessions and bridges them onto the broadcast hub.
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/observability/metrics"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Application close codes. The upgrade is completed even when auth fails so
// the close code reaches the client.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

const closeWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Gateway struct {
	accounts    accountdomain.Service
	rooms       roomdomain.Repository
	broadcaster hub.Broadcaster
	log         *zap.Logger
}

func New(accounts accountdomain.Service, rooms roomdomain.Repository, broadcaster hub.Broadcaster, log *zap.Logger) *Gateway {
	return &Gateway{
		accounts:    accounts,
		rooms:       rooms,
		broadcaster: broadcaster,
		log:         log.Named("chat.gateway"),
	}
}

// Handle serves GET /ws/rooms/:id. The token comes from the "token" query
// parameter or a bearer Authorization header.
func (g *Gateway) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	roomID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		g.rejectWith(c, CloseForbidden, "unknown room")
		return
	}

	identity, err := g.accounts.VerifyToken(ctx, tokenFrom(c))
	if err != nil {
		g.rejectWith(c, CloseUnauthorized, "unauthorized")
		return
	}

	if _, err := g.rooms.GetRoom(ctx, roomID); err != nil {
		g.rejectWith(c, CloseForbidden, "unknown room")
		return
	}
	if _, err := g.rooms.GetMember(ctx, roomID, identity.UserID); err != nil {
		g.rejectWith(c, CloseForbidden, "forbidden")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sub, err := g.broadcaster.Subscribe(ctx, hub.RoomKey(roomID))
	if err != nil {
		g.log.Warn("subscribe failed", zap.String("room_id", roomID.String()), zap.Error(err))
		_ = conn.Close()
		return
	}

	session := newSession(conn, sub, roomID, identity, g.broadcaster, g.log)
	metrics.Chat().ConnectionOpened()
	session.run(ctx)
}

// rejectWith upgrades and immediately closes so the application close code
// is delivered instead of a bare HTTP error.
func (g *Gateway) rejectWith(c *gin.Context, code int, reason string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	deadline := time.Now().Add(closeWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

func tokenFrom(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

var Module = fx.Module("chat.gateway",
	fx.Provide(New),
)
