package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	"github.com/chatboard/chatboard/internal/message/domain"
	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	previewLimit     = 80
)

type service struct {
	db            *gorm.DB
	repo          domain.Repository
	rooms         roomdomain.Repository
	orgs          orgdomain.Repository
	accounts      accountdomain.Repository
	notifications notificationdomain.Repository
	broadcaster   hub.Broadcaster
	publisher     event.Publisher
	genID         *snowflake.Node
	clk           clock.Clock
	log           *zap.Logger
}

type Params struct {
	DB            *gorm.DB
	Repo          domain.Repository
	Rooms         roomdomain.Repository
	Orgs          orgdomain.Repository
	Accounts      accountdomain.Repository
	Notifications notificationdomain.Repository
	Broadcaster   hub.Broadcaster
	Publisher     event.Publisher
	GenID         *snowflake.Node
	Clock         clock.Clock
	Logger        *zap.Logger
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		repo:          p.Repo,
		rooms:         p.Rooms,
		orgs:          p.Orgs,
		accounts:      p.Accounts,
		notifications: p.Notifications,
		broadcaster:   p.Broadcaster,
		publisher:     p.Publisher,
		genID:         p.GenID,
		clk:           p.Clock,
		log:           p.Logger.Named("message.service"),
	}
}

// wireMessage is the frame fanned out to WebSocket sessions.
type wireMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Room        string `json:"room"`
	Sender      string `json:"sender"`
	SenderEmail string `json:"sender_email"`
	Body        string `json:"body"`
	FileURL     string `json:"file_url"`
	CreatedAt   string `json:"created_at"`
}

// Create persists a message, its notifications and the webhook events in one
// transaction, then fans out. Fanout is best-effort; a hub failure never
// fails the request.
func (s *service) Create(ctx context.Context, userID, roomID snowflake.ID, req domain.CreateMessageRequest) (*domain.MessageResponse, error) {
	body := strings.TrimSpace(req.Body)
	fileURL := strings.TrimSpace(req.FileURL)
	if body == "" && fileURL == "" {
		return nil, domain.ErrEmptyMessage
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotRoomMember
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.rooms.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotRoomMember
		}
		return nil, err
	}

	sender, err := s.accounts.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	message := domain.Message{
		ID:        s.genID.Generate(),
		RoomID:    roomID,
		SenderID:  userID,
		Body:      body,
		FileURL:   fileURL,
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, message); err != nil {
			return err
		}
		if err := s.notifyRoomMembers(ctx, s.notifications.WithTx(tx), *room, message); err != nil {
			return err
		}
		return s.publisher.WithTx(tx).Publish(ctx, room.OrgID, event.TopicMessageCreated, map[string]any{
			"message_id": message.ID.String(),
			"room_id":    roomID.String(),
			"sender_id":  userID.String(),
			"body":       body,
			"file_url":   fileURL,
			"created_at": now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanout(ctx, *room, message, sender.Email)

	return &domain.MessageResponse{
		ID:          message.ID.String(),
		RoomID:      roomID.String(),
		SenderID:    userID.String(),
		SenderEmail: sender.Email,
		Body:        body,
		FileURL:     fileURL,
		CreatedAt:   now,
	}, nil
}

func (s *service) List(ctx context.Context, userID, roomID, before snowflake.ID, limit int) ([]domain.MessageResponse, error) {
	if _, err := s.rooms.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotRoomMember
		}
		return nil, err
	}

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	messages, err := s.repo.List(ctx, roomID, before, limit)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, domain.MessageResponse{
			ID:        m.ID.String(),
			RoomID:    m.RoomID.String(),
			SenderID:  m.SenderID.String(),
			Body:      m.Body,
			FileURL:   m.FileURL,
			CreatedAt: m.CreatedAt,
		})
	}
	return resp, nil
}

// Delete soft-deletes a message. Allowed for the sender or an org ADMIN.
func (s *service) Delete(ctx context.Context, userID, messageID snowflake.ID) error {
	message, err := s.repo.Get(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if message.Deleted {
		return domain.ErrMessageNotFound
	}

	room, err := s.rooms.GetRoom(ctx, message.RoomID)
	if err != nil {
		return err
	}

	if message.SenderID != userID {
		member, err := s.orgs.GetMember(ctx, room.OrgID, userID)
		if err != nil || member.Role != orgdomain.RoleAdmin {
			return domain.ErrForbidden
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SoftDelete(ctx, messageID); err != nil {
			return err
		}
		return s.publisher.WithTx(tx).Publish(ctx, room.OrgID, event.TopicMessageDeleted, map[string]any{
			"message_id": messageID.String(),
			"room_id":    message.RoomID.String(),
			"deleted_by": userID.String(),
		})
	})
}

func (s *service) notifyRoomMembers(ctx context.Context, notifications notificationdomain.Repository, room roomdomain.Room, message domain.Message) error {
	memberIDs, err := s.rooms.ListMemberUserIDs(ctx, room.ID)
	if err != nil {
		return err
	}

	preview := previewOf(message)
	rows := make([]notificationdomain.Notification, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == message.SenderID {
			continue
		}
		rows = append(rows, notificationdomain.Notification{
			ID:        s.genID.Generate(),
			UserID:    memberID,
			OrgID:     room.OrgID,
			RoomID:    room.ID,
			MessageID: message.ID,
			Body:      preview,
			CreatedAt: message.CreatedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return notifications.CreateBatch(ctx, rows)
}

func (s *service) fanout(ctx context.Context, room roomdomain.Room, message domain.Message, senderEmail string) {
	frame, err := json.Marshal(wireMessage{
		Type:        "message",
		ID:          message.ID.String(),
		Room:        room.ID.String(),
		Sender:      message.SenderID.String(),
		SenderEmail: senderEmail,
		Body:        message.Body,
		FileURL:     message.FileURL,
		CreatedAt:   message.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		s.log.Warn("fanout frame encode failed", zap.Error(err))
		return
	}

	err = s.broadcaster.Publish(ctx, hub.RoomKey(room.ID), hub.Event{Type: "message", Data: frame})
	if err != nil {
		s.log.Warn("fanout publish failed",
			zap.String("room_id", room.ID.String()),
			zap.Error(err),
		)
	}
}

func previewOf(message domain.Message) string {
	body := strings.TrimSpace(message.Body)
	if body == "" {
		if message.FileURL != "" {
			return "shared a file"
		}
		return "sent a message"
	}
	if utf8.RuneCountInString(body) <= previewLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLimit]) + "…"
}
