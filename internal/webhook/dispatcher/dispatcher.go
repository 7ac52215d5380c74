// Package dispatcher drains the webhook outbox: due rows are claimed in
// batches, delivered over HTTP with an HMAC signature, and retried with
// exponential backoff until sent, or failed after max retries.
package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/observability/metrics"
	"github.com/chatboard/chatboard/internal/webhook/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	signatureHeader = "X-ChatBoard-Signature"
	backoffCapExp   = 6
)

type Config struct {
	RunInterval    time.Duration
	BatchSize      int
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

type Dispatcher struct {
	db     *gorm.DB
	repo   domain.Repository
	client *http.Client
	clk    clock.Clock
	cfg    Config
	log    *zap.Logger
}

func New(db *gorm.DB, repo domain.Repository, clk clock.Clock, cfg Config, log *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		db:     db,
		repo:   repo,
		client: &http.Client{Timeout: cfg.AttemptTimeout},
		clk:    clk,
		cfg:    cfg,
		log:    log.Named("webhook.dispatcher").With(zap.String("component", "webhook_dispatcher")),
	}
}

// RunForever ticks until the context is canceled.
func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx); err != nil {
			d.log.Warn("dispatcher run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due deliveries and attempts each of them.
// A failed attempt is recorded on its row for retry, not surfaced here;
// the returned error covers claiming and bookkeeping only.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	metrics.Chat().DispatcherRun()

	var rows []domain.Outbox
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = d.repo.WithTx(tx).ClaimDue(ctx, d.clk.Now(), d.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	var errs error
	for _, row := range rows {
		if err := d.deliver(ctx, row); err != nil {
			errs = errors.Join(errs, fmt.Errorf("delivery %s: %w", row.ID, err))
		}
	}
	return errs
}

func (d *Dispatcher) deliver(ctx context.Context, row domain.Outbox) error {
	webhook, err := d.repo.GetWebhook(ctx, row.WebhookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.markFailed(ctx, row, "webhook deleted")
	}
	if err != nil {
		return err
	}
	if !webhook.Active {
		return d.markFailed(ctx, row, "webhook inactive")
	}

	start := time.Now()
	attemptErr := d.attempt(ctx, *webhook, row)
	elapsed := time.Since(start)

	if attemptErr == nil {
		metrics.Chat().WebhookDelivery("sent", elapsed)
		now := d.clk.Now()
		row.Status = domain.StatusSent
		row.DeliveredAt = &now
		row.LastAttemptAt = &now
		row.LastError = ""
		row.UpdatedAt = now
		if err := d.repo.MarkTriggered(ctx, webhook.ID, now); err != nil {
			return err
		}
		return d.repo.UpdateOutbox(ctx, row)
	}

	row.Retries++
	row.LastError = attemptErr.Error()
	now := d.clk.Now()
	row.LastAttemptAt = &now
	row.UpdatedAt = now

	if row.Retries >= row.MaxRetries {
		metrics.Chat().WebhookDelivery("failed", elapsed)
		row.Status = domain.StatusFailed
		d.log.Warn("delivery exhausted",
			zap.String("delivery_id", row.ID.String()),
			zap.String("event_type", row.EventType),
			zap.Int("retries", row.Retries),
			zap.Error(attemptErr),
		)
		return d.repo.UpdateOutbox(ctx, row)
	}

	metrics.Chat().WebhookDelivery("retrying", elapsed)
	row.Status = domain.StatusRetrying
	row.NextAttemptAt = now.Add(Backoff(row.Retries))
	return d.repo.UpdateOutbox(ctx, row)
}

func (d *Dispatcher) attempt(ctx context.Context, webhook domain.Webhook, row domain.Outbox) error {
	body, err := json.Marshal(map[string]any{
		"delivery_id": row.ID.String(),
		"event":       row.EventType,
		"payload":     json.RawMessage(row.Payload),
		"created_at":  row.CreatedAt,
	})
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, Sign(webhook.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) markFailed(ctx context.Context, row domain.Outbox, reason string) error {
	row.Status = domain.StatusFailed
	row.LastError = reason
	row.UpdatedAt = d.clk.Now()
	return d.repo.UpdateOutbox(ctx, row)
}

// Backoff returns the wait before the next attempt: 2^retries minutes,
// capped at 64 minutes.
func Backoff(retries int) time.Duration {
	if retries > backoffCapExp {
		retries = backoffCapExp
	}
	return time.Duration(1<<retries) * time.Minute
}

// Sign computes the delivery signature: sha256=<hex hmac of the body>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
