package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/umlforge/umlforge/internal/slogging"
)

// Topic names are part of the compatibility surface. Project topics are
// namespaced per purpose; session topics deliver point-to-point.
func SnapshotTopic(projectID string) string {
	return "projects/" + projectID
}

func CursorTopic(projectID string) string {
	return "projects/" + projectID + "/cursors"
}

func PresenceTopic(projectID string) string {
	return "projects/" + projectID + "/presence"
}

func SessionErrorTopic(sessionID string) string {
	return "session/" + sessionID + "/errors"
}

func SessionSyncTopic(sessionID string) string {
	return "session/" + sessionID + "/sync"
}

const broadcastShardCount = 16

// Subscription ties a subscriber channel to one topic.
type Subscription struct {
	topic string
	ch    chan<- []byte
}

type broadcastShard struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

// BroadcastRouter fans messages out to all current subscribers of a logical
// topic. Delivery is at-most-once and best-effort: no acknowledgement, no
// retry, no buffering beyond the subscriber's own channel. A slow or
// mid-disconnect subscriber simply misses the message.
type BroadcastRouter struct {
	shards [broadcastShardCount]*broadcastShard
}

// NewBroadcastRouter creates a new router
func NewBroadcastRouter() *BroadcastRouter {
	r := &BroadcastRouter{}
	for i := range r.shards {
		r.shards[i] = &broadcastShard{topics: make(map[string]map[*Subscription]struct{})}
	}
	return r
}

func (r *BroadcastRouter) shard(topic string) *broadcastShard {
	return r.shards[shardIndex(topic)%broadcastShardCount]
}

// Subscribe registers a channel to receive messages published to a topic
func (r *BroadcastRouter) Subscribe(topic string, ch chan<- []byte) *Subscription {
	sub := &Subscription{topic: topic, ch: ch}

	shard := r.shard(topic)
	shard.mu.Lock()
	subs, ok := shard.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		shard.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	shard.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription; safe to call more than once
func (r *BroadcastRouter) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	shard := r.shard(sub.topic)
	shard.mu.Lock()
	if subs, ok := shard.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(shard.topics, sub.topic)
		}
	}
	shard.mu.Unlock()
}

// Publish marshals the payload once and sends it to every subscriber whose
// channel has room. Full channels are skipped, not waited on.
func (r *BroadcastRouter) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slogging.Get().Error("Failed to marshal broadcast payload for topic %s: %v", topic, err)
		return
	}
	r.PublishRaw(topic, data)
}

// PublishRaw sends pre-marshaled bytes to every subscriber of the topic
func (r *BroadcastRouter) PublishRaw(topic string, data []byte) {
	shard := r.shard(topic)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	for sub := range shard.topics[topic] {
		select {
		case sub.ch <- data:
		default:
			// Subscriber is slow or mid-disconnect; drop.
		}
	}
}

// SubscriberCount returns the number of current subscribers for a topic
func (r *BroadcastRouter) SubscriberCount(topic string) int {
	shard := r.shard(topic)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.topics[topic])
}

// String implements fmt.Stringer for logging
func (s *Subscription) String() string {
	return fmt.Sprintf("subscription(%s)", s.topic)
}
