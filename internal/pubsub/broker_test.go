package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker[string]()
	defer b.Shutdown()

	ch := b.Subscribe(t.Context())
	b.Publish(CreatedEvent, "hello")

	select {
	case ev := <-ch:
		require.Equal(t, CreatedEvent, ev.Type)
		require.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("超时未收到事件")
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := NewBrokerWithBuffer[int](2)
	defer b.Shutdown()

	_ = b.Subscribe(t.Context())
	for i := range 5 {
		b.Publish(UpdatedEvent, i)
	}
	require.Equal(t, int64(3), b.Dropped())
}

func TestBroker_UnsubscribeOnCancel(t *testing.T) {
	t.Parallel()

	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(t.Context())
	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok)
}

func TestBroker_SubscribeAfterShutdown(t *testing.T) {
	t.Parallel()

	b := NewBroker[int]()
	b.Shutdown()
	b.Shutdown()

	_, ok := <-b.Subscribe(t.Context())
	require.False(t, ok)
}
