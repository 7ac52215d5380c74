// Package domain contains persistence models and contracts for webhooks and
// their delivery outbox.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending  = "pending"
	StatusRetrying = "retrying"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Webhook is an org-scoped subscription to outbound events.
type Webhook struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID   `gorm:"not null;index" json:"org_id"`
	URL       string         `gorm:"type:text;not null" json:"url"`
	Secret    string         `gorm:"type:text;not null" json:"-"`
	Events    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"events"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	CreatedBy snowflake.ID   `gorm:"column:created_by;not null" json:"created_by"`
	// LastTriggered is the time of the most recent successful delivery.
	LastTriggered *time.Time `gorm:"column:last_triggered" json:"last_triggered,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Webhook) TableName() string { return "webhooks" }

// Outbox is one pending delivery. Rows are terminal once sent or failed.
type Outbox struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	WebhookID     snowflake.ID   `gorm:"not null;index" json:"webhook_id"`
	OrgID         snowflake.ID   `gorm:"not null" json:"org_id"`
	EventType     string         `gorm:"type:text;not null" json:"event_type"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	Status        string         `gorm:"type:text;not null;default:'pending';index:ix_webhook_outbox_due,priority:1" json:"status"`
	Retries       int            `gorm:"not null;default:0" json:"retries"`
	MaxRetries    int            `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	NextAttemptAt time.Time      `gorm:"column:next_attempt_at;not null;index:ix_webhook_outbox_due,priority:2" json:"next_attempt_at"`
	LastError     string         `gorm:"column:last_error;type:text;not null;default:''" json:"last_error"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time     `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Outbox) TableName() string { return "webhook_outbox" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWebhook(ctx context.Context, webhook Webhook) error
	GetWebhook(ctx context.Context, id snowflake.ID) (*Webhook, error)
	ListWebhooksByOrg(ctx context.Context, orgID snowflake.ID) ([]Webhook, error)
	UpdateWebhook(ctx context.Context, webhook Webhook) error
	DeleteWebhook(ctx context.Context, id snowflake.ID) error
	MarkTriggered(ctx context.Context, id snowflake.ID, at time.Time) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Outbox, error)
	UpdateOutbox(ctx context.Context, row Outbox) error
	ListDeliveries(ctx context.Context, webhookID snowflake.ID, limit int) ([]Outbox, error)
}

type Service interface {
	Create(ctx context.Context, userID, orgID snowflake.ID, req CreateWebhookRequest) (*WebhookResponse, error)
	List(ctx context.Context, userID, orgID snowflake.ID) ([]WebhookResponse, error)
	Update(ctx context.Context, userID, webhookID snowflake.ID, req UpdateWebhookRequest) (*WebhookResponse, error)
	Delete(ctx context.Context, userID, webhookID snowflake.ID) error
	Test(ctx context.Context, userID, webhookID snowflake.ID) error
	ListDeliveries(ctx context.Context, userID, webhookID snowflake.ID) ([]DeliveryResponse, error)
}

type CreateWebhookRequest struct {
	URL    string
	Events []string
}

type UpdateWebhookRequest struct {
	URL    *string
	Events []string
	Active *bool
}

type WebhookResponse struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events        []string   `json:"events"`
	Active        bool       `json:"active"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type DeliveryResponse struct {
	ID            string     `json:"id"`
	EventType     string     `json:"event_type"`
	Status        string     `json:"status"`
	Retries       int        `json:"retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

var (
	ErrInvalidURL      = errors.New("invalid_url")
	ErrInvalidEvent    = errors.New("invalid_event")
	ErrWebhookNotFound = errors.New("webhook_not_found")
	ErrForbidden       = errors.New("forbidden")
)
