package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToAllSubscribersOnTopic(t *testing.T) {
	b := New()
	var gotA, gotB atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	b.Subscribe("connA", "raid:1", func(ctx context.Context, ev Event) error {
		gotA.Add(1)
		wg.Done()
		return nil
	})
	b.Subscribe("connB", "raid:1", func(ctx context.Context, ev Event) error {
		gotB.Add(1)
		wg.Done()
		return nil
	})

	b.Publish("raid:1", Event{Name: "raid.progress"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	assert.Equal(t, int32(1), gotA.Load())
	assert.Equal(t, int32(1), gotB.Load())
}

func TestPublish_SlowSubscriberDoesNotBlockFastOne(t *testing.T) {
	b := New()
	block := make(chan struct{})
	fastDelivered := make(chan struct{}, 1)

	b.Subscribe("slow", "topic", func(ctx context.Context, ev Event) error {
		<-block
		return nil
	})
	b.Subscribe("fast", "topic", func(ctx context.Context, ev Event) error {
		select {
		case fastDelivered <- struct{}{}:
		default:
		}
		return nil
	})

	b.Publish("topic", Event{Name: "x"})

	select {
	case <-fastDelivered:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by the slow one")
	}
	close(block)
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	b := New()
	b.queueDepth = 1
	blockDeliver := make(chan struct{})

	id := b.Subscribe("conn", "topic", func(ctx context.Context, ev Event) error {
		<-blockDeliver
		return nil
	})
	_ = id

	// First publish is picked up by the drain goroutine immediately,
	// blocking on blockDeliver; the next two fill (and then overflow) the
	// depth-1 queue.
	b.Publish("topic", Event{Name: "1"})
	time.Sleep(20 * time.Millisecond)
	b.Publish("topic", Event{Name: "2"})
	b.Publish("topic", Event{Name: "3"}) // should be dropped, not block

	close(blockDeliver)
}

func TestUnsubscribe_StopsDrainAndRemovesFromTopic(t *testing.T) {
	b := New()
	id := b.Subscribe("conn", "topic", func(ctx context.Context, ev Event) error { return nil })
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(id)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestClose_DropsAllSubscriptionsForConnection(t *testing.T) {
	b := New()
	b.Subscribe("conn", "session:1", func(ctx context.Context, ev Event) error { return nil })
	b.Subscribe("conn", "raid:1", func(ctx context.Context, ev Event) error { return nil })
	require.Equal(t, 2, b.SubscriberCount())

	b.Close("conn")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "session:abc", SessionTopic("abc"))
	assert.Equal(t, "raid:abc", RaidTopic("abc"))
	assert.Equal(t, "agent:abc", AgentTopic("abc"))
}
