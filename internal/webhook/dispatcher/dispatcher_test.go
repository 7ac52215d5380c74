package dispatcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/webhook/domain"
	"github.com/chatboard/chatboard/internal/webhook/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	repo domain.Repository
	node *snowflake.Node
	clk  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Webhook{}, &domain.Outbox{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &fixture{
		db:   db,
		repo: repository.NewRepository(db),
		node: node,
		clk:  clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) dispatcher() *Dispatcher {
	return New(f.db, f.repo, f.clk, Config{}, zap.NewNop())
}

func (f *fixture) addWebhook(t *testing.T, url string, active bool) domain.Webhook {
	t.Helper()

	webhook := domain.Webhook{
		ID:        f.node.Generate(),
		OrgID:     f.node.Generate(),
		URL:       url,
		Secret:    "whsec_test",
		Events:    datatypes.JSON(`["message.created"]`),
		Active:    active,
		CreatedBy: f.node.Generate(),
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&webhook).Error)
	if !active {
		// Create skips zero values for columns with defaults, so the
		// inactive flag has to be written explicitly.
		require.NoError(t, f.db.Model(&webhook).Update("active", false).Error)
	}
	return webhook
}

func (f *fixture) addDelivery(t *testing.T, webhookID snowflake.ID) domain.Outbox {
	t.Helper()

	row := domain.Outbox{
		ID:            f.node.Generate(),
		WebhookID:     webhookID,
		OrgID:         f.node.Generate(),
		EventType:     "message.created",
		Payload:       datatypes.JSON(`{"message_id":"1"}`),
		Status:        domain.StatusPending,
		MaxRetries:    3,
		NextAttemptAt: f.clk.Now(),
		CreatedAt:     f.clk.Now(),
		UpdatedAt:     f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&row).Error)
	return row
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) domain.Outbox {
	t.Helper()

	var row domain.Outbox
	require.NoError(t, f.db.First(&row, "id = ?", id).Error)
	return row
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Backoff(1))
	assert.Equal(t, 4*time.Minute, Backoff(2))
	assert.Equal(t, 64*time.Minute, Backoff(6))
	assert.Equal(t, 64*time.Minute, Backoff(12))
}

func TestDeliverySignedAndSent(t *testing.T) {
	f := newFixture(t)

	var gotSignature atomic.Value
	var gotBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		gotSignature.Store(r.Header.Get("X-ChatBoard-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := f.addWebhook(t, server.URL, true)
	row := f.addDelivery(t, webhook.ID)

	require.NoError(t, f.dispatcher().RunOnce(context.Background()))

	updated := f.reload(t, row.ID)
	assert.Equal(t, domain.StatusSent, updated.Status)
	require.NotNil(t, updated.DeliveredAt)
	require.NotNil(t, updated.LastAttemptAt)
	assert.Empty(t, updated.LastError)

	var stored domain.Webhook
	require.NoError(t, f.db.First(&stored, "id = ?", webhook.ID).Error)
	require.NotNil(t, stored.LastTriggered)
	assert.WithinDuration(t, f.clk.Now(), *stored.LastTriggered, time.Second)

	signature, _ := gotSignature.Load().(string)
	body, _ := gotBody.Load().([]byte)
	assert.Equal(t, Sign(webhook.Secret, body), signature)
	assert.Contains(t, string(body), `"event":"message.created"`)
	assert.Contains(t, string(body), row.ID.String())
}

func TestFailureSchedulesRetryWithBackoff(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	webhook := f.addWebhook(t, server.URL, true)
	row := f.addDelivery(t, webhook.ID)

	// A failed attempt is bookkeeping, not a dispatcher error.
	require.NoError(t, f.dispatcher().RunOnce(context.Background()))

	updated := f.reload(t, row.ID)
	assert.Equal(t, domain.StatusRetrying, updated.Status)
	assert.Equal(t, 1, updated.Retries)
	assert.Contains(t, updated.LastError, "500")
	require.NotNil(t, updated.LastAttemptAt)
	assert.WithinDuration(t, f.clk.Now().Add(2*time.Minute), updated.NextAttemptAt, time.Second)
}

func TestExhaustedDeliveryFails(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	webhook := f.addWebhook(t, server.URL, true)
	row := f.addDelivery(t, webhook.ID)
	d := f.dispatcher()

	for i := 0; i < 3; i++ {
		_ = d.RunOnce(context.Background())
		f.clk.Advance(2 * time.Hour)
	}

	updated := f.reload(t, row.ID)
	assert.Equal(t, domain.StatusFailed, updated.Status)
	assert.Equal(t, 3, updated.Retries)
}

func TestTerminalRowsAreNeverReclaimed(t *testing.T) {
	f := newFixture(t)

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := f.addWebhook(t, server.URL, true)
	row := f.addDelivery(t, webhook.ID)
	d := f.dispatcher()

	require.NoError(t, d.RunOnce(context.Background()))
	f.clk.Advance(time.Hour)
	require.NoError(t, d.RunOnce(context.Background()))

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, domain.StatusSent, f.reload(t, row.ID).Status)
}

func TestFutureDeliveriesAreNotClaimed(t *testing.T) {
	f := newFixture(t)

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := f.addWebhook(t, server.URL, true)
	row := f.addDelivery(t, webhook.ID)
	require.NoError(t, f.db.Model(&domain.Outbox{}).
		Where("id = ?", row.ID).
		Update("next_attempt_at", f.clk.Now().Add(time.Hour)).Error)

	d := f.dispatcher()
	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, int32(0), hits.Load())

	f.clk.Advance(2 * time.Hour)
	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestClaimedRowsAreNotReclaimedWhileInFlight(t *testing.T) {
	f := newFixture(t)

	webhook := f.addWebhook(t, "http://127.0.0.1:0", true)
	row := f.addDelivery(t, webhook.ID)

	claimed, err := f.repo.ClaimDue(context.Background(), f.clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, row.ID, claimed[0].ID)

	// A second dispatcher polling while the first is still delivering must
	// not pick up the same row.
	again, err := f.repo.ClaimDue(context.Background(), f.clk.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// An abandoned claim becomes due again once the lease passes.
	f.clk.Advance(2 * time.Minute)
	again, err = f.repo.ClaimDue(context.Background(), f.clk.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestInactiveWebhookFailsDelivery(t *testing.T) {
	f := newFixture(t)

	webhook := f.addWebhook(t, "http://127.0.0.1:0", false)
	row := f.addDelivery(t, webhook.ID)

	require.NoError(t, f.dispatcher().RunOnce(context.Background()))

	updated := f.reload(t, row.ID)
	assert.Equal(t, domain.StatusFailed, updated.Status)
	assert.Equal(t, "webhook inactive", updated.LastError)
}

func TestDeletedWebhookFailsDelivery(t *testing.T) {
	f := newFixture(t)

	row := f.addDelivery(t, f.node.Generate())

	require.NoError(t, f.dispatcher().RunOnce(context.Background()))

	updated := f.reload(t, row.ID)
	assert.Equal(t, domain.StatusFailed, updated.Status)
	assert.Equal(t, "webhook deleted", updated.LastError)
}
