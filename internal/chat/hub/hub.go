package hub

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chatboard/chatboard/internal/observability/metrics"
)

const DefaultSubscriberBuffer = 16

// Hub is the in-process broadcaster. Slow subscribers are skipped rather
// than blocking the publisher.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

type subscription struct {
	hub  *Hub
	key  string
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(ctx context.Context, key string, event Event) error {
	_ = ctx
	if h == nil {
		return errors.New("hub_unavailable")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("invalid_stream_key")
	}

	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return nil
	}

	stream.mu.Lock()
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			metrics.Chat().FanoutDropped()
		}
	}

	metrics.Chat().MessagePublished(event.Type)
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, key string) (Subscription, error) {
	_ = ctx
	if h == nil {
		return nil, errors.New("hub_unavailable")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("invalid_stream_key")
	}

	stream := h.ensureStream(key)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	stream.mu.Unlock()

	return &subscription{
		hub: h,
		key: key,
		id:  id,
		ch:  ch,
	}, nil
}

// Subscribers reports how many subscriptions a stream currently has.
func (h *Hub) Subscribers(key string) int {
	if h == nil {
		return 0
	}

	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) ensureStream(key string) *stream {
	h.mu.RLock()
	current := h.streams[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[key] = current
	}
	return current
}

func (h *Hub) unsubscribe(key string, id uint64) {
	if h == nil {
		return
	}

	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[key]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, key)
	}
	h.mu.Unlock()
}

func (s *subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close is idempotent.
func (s *subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.key, s.id)
	})
}
