package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/observability/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 10 * time.Second
	outboundDepth = 16
)

type inboundFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

type session struct {
	conn        *websocket.Conn
	sub         hub.Subscription
	roomID      snowflake.ID
	identity    *accountdomain.Identity
	broadcaster hub.Broadcaster
	log         *zap.Logger

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, sub hub.Subscription, roomID snowflake.ID, identity *accountdomain.Identity, broadcaster hub.Broadcaster, log *zap.Logger) *session {
	return &session{
		conn:        conn,
		sub:         sub,
		roomID:      roomID,
		identity:    identity,
		broadcaster: broadcaster,
		log: log.With(
			zap.String("room_id", roomID.String()),
			zap.String("user_id", identity.UserID.String()),
		),
		outbound: make(chan []byte, outboundDepth),
		done:     make(chan struct{}),
	}
}

// run sends the connection ack, then pumps until either side disconnects.
func (s *session) run(ctx context.Context) {
	defer s.close()

	s.reply(map[string]any{
		"type":       "connection",
		"message":    "connected to room " + s.roomID.String(),
		"user_id":    s.identity.UserID.String(),
		"user_email": s.identity.Email,
	})

	go s.writePump()
	s.readPump(ctx)
}

// close deregisters the session. Safe to call from any path, any number of
// times.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sub.Close()
		_ = s.conn.Close()
		metrics.Chat().ConnectionClosed()
		s.log.Debug("session closed")
	})
}

func (s *session) writePump() {
	defer s.close()

	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-s.outbound:
			if !ok || s.write(frame) != nil {
				return
			}
		case event, ok := <-s.sub.Events():
			if !ok || s.write(event.Data) != nil {
				return
			}
		}
	}
}

func (s *session) write(frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) readPump(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.echo(raw)
			continue
		}

		switch frame.Type {
		case "typing":
			s.broadcastTyping(ctx, frame.IsTyping)
		case "ping":
			s.reply(map[string]any{"type": "pong"})
		default:
			s.echo(raw)
		}
	}
}

// broadcastTyping republishes a typing indicator to the whole room.
func (s *session) broadcastTyping(ctx context.Context, isTyping bool) {
	frame, err := json.Marshal(map[string]any{
		"type":       "typing",
		"user_id":    s.identity.UserID.String(),
		"user_email": s.identity.Email,
		"is_typing":  isTyping,
	})
	if err != nil {
		return
	}

	err = s.broadcaster.Publish(ctx, hub.RoomKey(s.roomID), hub.Event{Type: "typing", Data: frame})
	if err != nil {
		s.log.Warn("typing broadcast failed", zap.Error(err))
	}
}

// reply sends a frame to this session only.
func (s *session) reply(payload map[string]any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case s.outbound <- frame:
	case <-s.done:
	default:
	}
}

func (s *session) echo(original []byte) {
	var orig any = json.RawMessage(original)
	if !json.Valid(original) {
		orig = string(original)
	}
	s.reply(map[string]any{
		"type":     "echo",
		"message":  "unsupported message type",
		"original": orig,
	})
}
