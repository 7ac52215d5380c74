// Package event enqueues webhook outbox rows for every active subscriber of
// a topic. Delivery happens asynchronously in the webhook dispatcher.
package event

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicMessageCreated = "message.created"
	TopicMessageDeleted = "message.deleted"
	TopicMemberInvited  = "member.invited"
	TopicMemberJoined   = "member.joined"
	TopicRoomCreated    = "room.created"
	TopicWebhookTest    = "webhook.test"
)

// Topics lists every event type a webhook may subscribe to.
var Topics = []string{
	TopicMessageCreated,
	TopicMessageDeleted,
	TopicMemberInvited,
	TopicMemberJoined,
	TopicRoomCreated,
	TopicWebhookTest,
}

// IsValidTopic reports whether a subscription event type is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

type Publisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error
	// WithTx returns a publisher that enqueues inside the given transaction,
	// so an event is only recorded if the surrounding write commits.
	WithTx(tx *gorm.DB) Publisher
}

type subscriber struct {
	ID     snowflake.ID
	Events datatypes.JSON
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clk   clock.Clock
	log   *zap.Logger
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) Publisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
		clk:   clk,
		log:   log.Named("event.outbox"),
	}
}

func (p *outboxPublisher) WithTx(tx *gorm.DB) Publisher {
	return &outboxPublisher{db: tx, genID: p.genID, clk: p.clk, log: p.log}
}

// Publish writes one outbox row per active webhook subscribed to the topic.
// Rows become due immediately and are picked up by the dispatcher.
func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var subs []subscriber
	err = p.db.WithContext(ctx).Raw(
		`SELECT id, events FROM webhooks WHERE org_id = ? AND active = ?`,
		orgID, true,
	).Scan(&subs).Error
	if err != nil {
		return err
	}

	now := p.clk.Now()
	for _, sub := range subs {
		if !subscribedTo(sub.Events, topic) {
			continue
		}

		err := p.db.WithContext(ctx).Exec(
			`INSERT INTO webhook_outbox (id, webhook_id, org_id, event_type, payload, status, retries, max_retries, next_attempt_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 'pending', 0, 3, ?, ?, ?)`,
			p.genID.Generate(),
			sub.ID,
			orgID,
			topic,
			datatypes.JSON(body),
			now,
			now,
			now,
		).Error
		if err != nil {
			return err
		}

		p.log.Debug("event enqueued",
			zap.String("topic", topic),
			zap.String("webhook_id", sub.ID.String()),
		)
	}

	return nil
}

func subscribedTo(events datatypes.JSON, topic string) bool {
	var subscribed []string
	if err := json.Unmarshal(events, &subscribed); err != nil {
		return false
	}
	for _, e := range subscribed {
		if e == topic {
			return true
		}
	}
	return false
}

var Module = fx.Module("event",
	fx.Provide(NewOutboxPublisher),
)
