package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Run("delivers to subscribers", func(t *testing.T) {
		b := NewBroker[string]()
		defer b.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := b.Subscribe(ctx)

		b.Publish(SessionCleared, "hello", WithSessionID("session-1"))

		select {
		case ev := <-ch:
			assert.Equal(t, SessionCleared, ev.Type)
			assert.Equal(t, "hello", ev.Payload)
			assert.Equal(t, "session-1", ev.SessionID)
			assert.NotEmpty(t, ev.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		b := NewBroker[int]()
		defer b.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := b.Subscribe(ctx, ByType(SessionWarning))

		b.Publish(SessionMessageAdded, 1)
		b.Publish(SessionWarning, 2)

		ev := <-ch
		assert.Equal(t, 2, ev.Payload)
		assert.Empty(t, ch)
	})

	t.Run("full buffer drops instead of blocking", func(t *testing.T) {
		b := NewBrokerWithOptions[int](1, nil)
		defer b.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := b.Subscribe(ctx)

		b.Publish(ChatStateChanged, 1)
		b.Publish(ChatStateChanged, 2)

		assert.Len(t, ch, 1)
	})

	t.Run("context cancel unsubscribes", func(t *testing.T) {
		b := NewBroker[int]()
		defer b.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		ch := b.Subscribe(ctx)
		require.Equal(t, 1, b.SubscriberCount())

		cancel()
		assert.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
		_, open := <-ch
		assert.False(t, open)
	})

	t.Run("shutdown closes channels", func(t *testing.T) {
		b := NewBroker[int]()
		ch := b.Subscribe(context.Background())

		b.Shutdown()
		b.Shutdown()

		_, open := <-ch
		assert.False(t, open)

		late := b.Subscribe(context.Background())
		_, open = <-late
		assert.False(t, open)
	})
}
