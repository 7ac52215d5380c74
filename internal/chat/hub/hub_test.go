package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	first, err := h.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer first.Close()
	second, err := h.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer second.Close()
	other, err := h.Subscribe(ctx, "room:2")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, h.Publish(ctx, "room:1", Event{Type: "message", Data: []byte("hi")}))

	for _, sub := range []Subscription{first, second} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "message", ev.Type)
			assert.Equal(t, []byte("hi"), ev.Data)
		default:
			t.Fatal("expected event")
		}
	}

	select {
	case <-other.Events():
		t.Fatal("event leaked into another room")
	default:
	}
}

func TestPublishToEmptyStreamIsNoop(t *testing.T) {
	h := NewHub()
	assert.NoError(t, h.Publish(context.Background(), "room:1", Event{Type: "message"}))
}

func TestPublishRejectsEmptyKey(t *testing.T) {
	h := NewHub()
	assert.Error(t, h.Publish(context.Background(), "  ", Event{Type: "message"}))
	_, err := h.Subscribe(context.Background(), "")
	assert.Error(t, err)
}

func TestCloseStopsDelivery(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	sub, err := h.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	require.NoError(t, h.Publish(ctx, "room:1", Event{Type: "message"}))
	select {
	case <-sub.Events():
		t.Fatal("closed subscription still received an event")
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	slow, err := h.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer slow.Close()

	// Overflow the buffer; the publisher must keep going instead of
	// blocking on the stalled channel.
	for i := 0; i < DefaultSubscriberBuffer*2; i++ {
		require.NoError(t, h.Publish(ctx, "room:1", Event{Type: "message", Data: []byte(fmt.Sprintf("%d", i))}))
	}

	received := 0
	for {
		select {
		case <-slow.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, DefaultSubscriberBuffer, received)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("room:%d", n%2)
			sub, err := h.Subscribe(ctx, key)
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 50; j++ {
				if err := h.Publish(ctx, key, Event{Type: "message"}); err != nil {
					t.Error(err)
					return
				}
			}
			sub.Close()
		}(i)
	}
	wg.Wait()

	// Streams are garbage collected once the last subscriber leaves.
	h.mu.RLock()
	remaining := len(h.streams)
	h.mu.RUnlock()
	assert.Equal(t, 0, remaining)
}
