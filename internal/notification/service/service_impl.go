package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/notification/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type service struct {
	repo domain.Repository
}

func NewService(repo domain.Repository) domain.Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]domain.NotificationResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}

	items, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, domain.NotificationResponse{
			ID:        n.ID.String(),
			RoomID:    n.RoomID.String(),
			MessageID: n.MessageID.String(),
			Body:      n.Body,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID snowflake.ID) error {
	err := s.repo.MarkRead(ctx, userID, notificationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *service) MarkAllRead(ctx context.Context, userID snowflake.ID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *service) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	return s.repo.UnreadCount(ctx, userID)
}
