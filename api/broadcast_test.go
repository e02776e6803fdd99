package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "projects/p1", SnapshotTopic("p1"))
	assert.Equal(t, "projects/p1/cursors", CursorTopic("p1"))
	assert.Equal(t, "projects/p1/presence", PresenceTopic("p1"))
	assert.Equal(t, "session/s1/errors", SessionErrorTopic("s1"))
	assert.Equal(t, "session/s1/sync", SessionSyncTopic("s1"))
}

func TestBroadcastRouter_PublishToSubscribers(t *testing.T) {
	r := NewBroadcastRouter()

	ch1 := make(chan []byte, 4)
	ch2 := make(chan []byte, 4)
	r.Subscribe("projects/p1", ch1)
	r.Subscribe("projects/p1", ch2)

	r.Publish("projects/p1", map[string]string{"hello": "world"})

	for _, ch := range []chan []byte{ch1, ch2} {
		select {
		case data := <-ch:
			var msg map[string]string
			require.NoError(t, json.Unmarshal(data, &msg))
			assert.Equal(t, "world", msg["hello"])
		default:
			t.Fatal("expected a delivered message")
		}
	}
}

func TestBroadcastRouter_TopicsIsolated(t *testing.T) {
	r := NewBroadcastRouter()

	ch := make(chan []byte, 4)
	r.Subscribe("projects/p1", ch)

	r.Publish("projects/p2", map[string]string{"for": "p2"})
	assert.Empty(t, ch)
}

func TestBroadcastRouter_Unsubscribe(t *testing.T) {
	r := NewBroadcastRouter()

	ch := make(chan []byte, 4)
	sub := r.Subscribe("projects/p1", ch)
	assert.Equal(t, 1, r.SubscriberCount("projects/p1"))

	r.Unsubscribe(sub)
	assert.Equal(t, 0, r.SubscriberCount("projects/p1"))

	r.PublishRaw("projects/p1", []byte(`{}`))
	assert.Empty(t, ch)

	// Double unsubscribe and nil are safe
	r.Unsubscribe(sub)
	r.Unsubscribe(nil)
}

func TestBroadcastRouter_SlowSubscriberDropped(t *testing.T) {
	r := NewBroadcastRouter()

	full := make(chan []byte, 1)
	full <- []byte("occupying")
	healthy := make(chan []byte, 4)
	r.Subscribe("projects/p1", full)
	r.Subscribe("projects/p1", healthy)

	// Must not block on the full channel, and the healthy subscriber
	// still receives the message.
	r.PublishRaw("projects/p1", []byte(`{"v":1}`))

	require.Len(t, healthy, 1)
	assert.Equal(t, []byte(`{"v":1}`), <-healthy)
	assert.Equal(t, []byte("occupying"), <-full)
}

func TestBroadcastRouter_PublishToEmptyTopic(t *testing.T) {
	r := NewBroadcastRouter()
	// No subscribers is a normal condition, not an error
	r.PublishRaw("projects/nobody", []byte(`{}`))
	assert.Equal(t, 0, r.SubscriberCount("projects/nobody"))
}

func TestBroadcastRouter_ConcurrentPublishSubscribe(t *testing.T) {
	r := NewBroadcastRouter()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic := SnapshotTopic(fmt.Sprintf("p%d", n%5))
			ch := make(chan []byte, 16)
			sub := r.Subscribe(topic, ch)
			r.PublishRaw(topic, []byte(`{}`))
			r.Unsubscribe(sub)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, r.SubscriberCount(SnapshotTopic(fmt.Sprintf("p%d", i))))
	}
}
