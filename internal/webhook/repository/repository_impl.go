package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/webhook/domain"
	"gorm.io/gorm"
)

// claimLease keeps claimed rows out of the due set while a dispatcher is
// still delivering them after the claim transaction commits. It must exceed
// the attempt timeout; retry scheduling always pushes next_attempt_at
// further out than this.
const claimLease = time.Minute

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateWebhook(ctx context.Context, webhook domain.Webhook) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO webhooks (id, org_id, url, secret, events, active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		webhook.ID,
		webhook.OrgID,
		webhook.URL,
		webhook.Secret,
		webhook.Events,
		webhook.Active,
		webhook.CreatedBy,
		webhook.CreatedAt,
		webhook.UpdatedAt,
	).Error
}

func (r *repository) GetWebhook(ctx context.Context, id snowflake.ID) (*domain.Webhook, error) {
	var webhook domain.Webhook
	if err := r.db.WithContext(ctx).First(&webhook, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r *repository) ListWebhooksByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, url, secret, events, active, created_by, last_triggered, created_at, updated_at
		 FROM webhooks WHERE org_id = ?
		 ORDER BY created_at ASC`,
		orgID,
	).Scan(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *repository) UpdateWebhook(ctx context.Context, webhook domain.Webhook) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE webhooks SET url = ?, events = ?, active = ?, updated_at = ? WHERE id = ?`,
		webhook.URL,
		webhook.Events,
		webhook.Active,
		webhook.UpdatedAt,
		webhook.ID,
	).Error
}

func (r *repository) MarkTriggered(ctx context.Context, id snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE webhooks SET last_triggered = ? WHERE id = ?`,
		at, id,
	).Error
}

func (r *repository) DeleteWebhook(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM webhook_outbox WHERE webhook_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM webhooks WHERE id = ?`, id).Error
	})
}

// ClaimDue fetches deliveries that are due and leases them by advancing
// next_attempt_at, so a concurrent dispatcher cannot re-claim the same rows
// once the claiming transaction commits. On postgres and mysql the select
// additionally locks rows with SKIP LOCKED.
func (r *repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Outbox, error) {
	query := `SELECT id, webhook_id, org_id, event_type, payload, status, retries, max_retries,
	                 next_attempt_at, last_error, last_attempt_at, delivered_at, created_at, updated_at
		 FROM webhook_outbox
		 WHERE status IN ('pending', 'retrying') AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`

	switch r.db.Dialector.Name() {
	case "postgres", "mysql":
		query += `
		 FOR UPDATE SKIP LOCKED`
	}

	var rows []domain.Outbox
	if err := r.db.WithContext(ctx).Raw(query, now, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	err := r.db.WithContext(ctx).Exec(
		`UPDATE webhook_outbox SET next_attempt_at = ?, updated_at = ? WHERE id IN ?`,
		now.Add(claimLease), now, ids,
	).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateOutbox(ctx context.Context, row domain.Outbox) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE webhook_outbox
		 SET status = ?, retries = ?, next_attempt_at = ?, last_error = ?, last_attempt_at = ?, delivered_at = ?, updated_at = ?
		 WHERE id = ?`,
		row.Status,
		row.Retries,
		row.NextAttemptAt,
		row.LastError,
		row.LastAttemptAt,
		row.DeliveredAt,
		row.UpdatedAt,
		row.ID,
	).Error
}

func (r *repository) ListDeliveries(ctx context.Context, webhookID snowflake.ID, limit int) ([]domain.Outbox, error) {
	var rows []domain.Outbox
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, webhook_id, org_id, event_type, payload, status, retries, max_retries,
		        next_attempt_at, last_error, last_attempt_at, delivered_at, created_at, updated_at
		 FROM webhook_outbox
		 WHERE webhook_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		webhookID, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
