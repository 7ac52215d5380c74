package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/access"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	"github.com/chatboard/chatboard/internal/webhook/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const deliveryHistoryLimit = 50

type service struct {
	repo      domain.Repository
	resolver  *access.Resolver
	genID     *snowflake.Node
	clk       clock.Clock
	publisher event.Publisher
}

func NewService(repo domain.Repository, resolver *access.Resolver, genID *snowflake.Node, clk clock.Clock, publisher event.Publisher) domain.Service {
	return &service{
		repo:      repo,
		resolver:  resolver,
		genID:     genID,
		clk:       clk,
		publisher: publisher,
	}
}

func (s *service) Create(ctx context.Context, userID, orgID snowflake.ID, req domain.CreateWebhookRequest) (*domain.WebhookResponse, error) {
	if err := s.requireAdmin(ctx, orgID, userID); err != nil {
		return nil, err
	}

	endpoint, err := validateURL(req.URL)
	if err != nil {
		return nil, err
	}
	events, err := validateEvents(req.Events)
	if err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	webhook := domain.Webhook{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		URL:       endpoint,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateWebhook(ctx, webhook); err != nil {
		return nil, err
	}

	// The secret is only surfaced once, at creation time.
	resp := webhookResponse(webhook)
	resp.Secret = secret
	return &resp, nil
}

func (s *service) List(ctx context.Context, userID, orgID snowflake.ID) ([]domain.WebhookResponse, error) {
	if err := s.requireAdmin(ctx, orgID, userID); err != nil {
		return nil, err
	}

	webhooks, err := s.repo.ListWebhooksByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.WebhookResponse, 0, len(webhooks))
	for _, webhook := range webhooks {
		resp = append(resp, webhookResponse(webhook))
	}
	return resp, nil
}

func (s *service) Update(ctx context.Context, userID, webhookID snowflake.ID, req domain.UpdateWebhookRequest) (*domain.WebhookResponse, error) {
	webhook, err := s.getAuthorized(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		endpoint, err := validateURL(*req.URL)
		if err != nil {
			return nil, err
		}
		webhook.URL = endpoint
	}
	if req.Events != nil {
		events, err := validateEvents(req.Events)
		if err != nil {
			return nil, err
		}
		webhook.Events = events
	}
	if req.Active != nil {
		webhook.Active = *req.Active
	}
	webhook.UpdatedAt = s.clk.Now()

	if err := s.repo.UpdateWebhook(ctx, *webhook); err != nil {
		return nil, err
	}

	resp := webhookResponse(*webhook)
	return &resp, nil
}

func (s *service) Delete(ctx context.Context, userID, webhookID snowflake.ID) error {
	if _, err := s.getAuthorized(ctx, userID, webhookID); err != nil {
		return err
	}
	return s.repo.DeleteWebhook(ctx, webhookID)
}

// Test enqueues a webhook.test delivery so an endpoint can be verified
// end to end through the real dispatcher.
func (s *service) Test(ctx context.Context, userID, webhookID snowflake.ID) error {
	webhook, err := s.getAuthorized(ctx, userID, webhookID)
	if err != nil {
		return err
	}

	return s.publisher.Publish(ctx, webhook.OrgID, event.TopicWebhookTest, map[string]any{
		"webhook_id": webhook.ID.String(),
		"org_id":     webhook.OrgID.String(),
		"message":    "test delivery",
	})
}

func (s *service) ListDeliveries(ctx context.Context, userID, webhookID snowflake.ID) ([]domain.DeliveryResponse, error) {
	if _, err := s.getAuthorized(ctx, userID, webhookID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListDeliveries(ctx, webhookID, deliveryHistoryLimit)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.DeliveryResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, domain.DeliveryResponse{
			ID:            row.ID.String(),
			EventType:     row.EventType,
			Status:        row.Status,
			Retries:       row.Retries,
			LastError:     row.LastError,
			NextAttemptAt: row.NextAttemptAt,
			LastAttemptAt: row.LastAttemptAt,
			DeliveredAt:   row.DeliveredAt,
			CreatedAt:     row.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) getAuthorized(ctx context.Context, userID, webhookID snowflake.ID) (*domain.Webhook, error) {
	webhook, err := s.repo.GetWebhook(ctx, webhookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.requireAdmin(ctx, webhook.OrgID, userID); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *service) requireAdmin(ctx context.Context, orgID, userID snowflake.ID) error {
	role, err := s.resolver.RoleOf(ctx, orgID, userID)
	if errors.Is(err, access.ErrNotMember) {
		return domain.ErrForbidden
	}
	if err != nil {
		return err
	}
	if role != orgdomain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", domain.ErrInvalidURL
	}
	return raw, nil
}

func validateEvents(events []string) (datatypes.JSON, error) {
	if len(events) == 0 {
		return nil, domain.ErrInvalidEvent
	}
	for _, topic := range events {
		if !event.IsValidTopic(topic) {
			return nil, domain.ErrInvalidEvent
		}
	}
	body, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(body), nil
}

func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(raw), nil
}

func webhookResponse(webhook domain.Webhook) domain.WebhookResponse {
	var events []string
	_ = json.Unmarshal(webhook.Events, &events)
	return domain.WebhookResponse{
		ID:            webhook.ID.String(),
		OrgID:         webhook.OrgID.String(),
		URL:           webhook.URL,
		Events:        events,
		Active:        webhook.Active,
		LastTriggered: webhook.LastTriggered,
		CreatedAt:     webhook.CreatedAt,
	}
}
