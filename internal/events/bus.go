// Package events fans out durable-store mutations to live consumers. It is
// the replacement for the Supabase realtime channels: in-process subscribers
// get buffered Go channels, external viewers get the same payloads mirrored
// onto redis pub/sub.
//
// Delivery is fire-and-forget, best-effort at-most-once per subscriber. A
// slow subscriber loses events rather than blocking a writer.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

// Type classifies an event.
type Type string

const (
	NodeCreated            Type = "node_created"
	NodeStatusChanged      Type = "node_status_changed"
	NodePerformanceUpdated Type = "node_performance_updated"
	NodeDeleted            Type = "node_deleted"
	RewardCreated          Type = "reward_created"
	RewardDistributed      Type = "reward_distributed"
	StatsSnapshot          Type = "stats_snapshot"
	UserNotification       Type = "user_notification"
)

// Channel names for per-entity subscriptions.
const (
	ChannelNodes   = "nodes"
	ChannelRewards = "rewards"
	ChannelStats   = "stats"
	ChannelUpdates = "updates"
)

// Event is one change notification.
type Event struct {
	Type      Type        `json:"type"`
	Channel   string      `json:"channel"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

const subscriberBuffer = 64

type subscriber struct {
	ch chan Event
}

// Bus is the process-wide dispatcher. One instance per process, constructed
// at startup and closed on shutdown.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*subscriber
	nextID int
	closed bool

	rdb *redis.Client
	log *logrus.Entry
}

// New builds a bus. rdb may be nil, in which case events stay in-process.
func New(rdb *redis.Client) *Bus {
	return &Bus{
		subs: make(map[string]map[int]*subscriber),
		rdb:  rdb,
		log:  logrus.WithField("component", "events"),
	}
}

// Subscribe returns a channel of events published to the named channel and a
// cancel function that must be called to release the subscription.
func (b *Bus) Subscribe(channel string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*subscriber)
	}
	b.subs[channel][id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[channel][id]; ok {
			delete(b.subs[channel], id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// publish delivers ev to the named channel and to the all-updates channel,
// then mirrors it to redis. Never blocks.
func (b *Bus) publish(channel string, ev Event) {
	ev.Channel = channel
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	if !b.closed {
		b.deliverLocked(channel, ev)
		if channel != ChannelUpdates && ev.Type != UserNotification {
			b.deliverLocked(ChannelUpdates, ev)
		}
	}
	b.mu.RUnlock()

	b.mirror(channel, ev)
}

func (b *Bus) deliverLocked(channel string, ev Event) {
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is not keeping up; drop.
		}
	}
}

func (b *Bus) mirror(channel string, ev Event) {
	if b.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Warnf("failed to encode event for redis: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, "network:"+channel, payload).Err(); err != nil {
		b.log.Warnf("failed to mirror %s event to redis: %v", ev.Type, err)
	}
}

// NodeChanged classifies a node mutation. Status and performance changes in
// the same write produce two separate events so status-only consumers never
// see performance noise.
func (b *Bus) NodeChanged(old, new *models.Node) {
	switch {
	case old == nil && new != nil:
		b.publish(ChannelNodes, Event{Type: NodeCreated, Payload: new})
	case old != nil && new == nil:
		b.publish(ChannelNodes, Event{Type: NodeDeleted, Payload: old})
	case old != nil && new != nil:
		if old.Status != new.Status {
			b.publish(ChannelNodes, Event{Type: NodeStatusChanged, Payload: map[string]interface{}{
				"node":       new,
				"old_status": old.Status,
				"new_status": new.Status,
			}})
		}
		if !old.Metrics.Equal(new.Metrics) {
			b.publish(ChannelNodes, Event{Type: NodePerformanceUpdated, Payload: map[string]interface{}{
				"node":    new,
				"metrics": new.Metrics,
			}})
		}
	}
}

// RewardChanged emits reward_created on insert and reward_distributed only
// when the status transitions into distributed. Failures and no-op rewrites
// stay silent.
func (b *Bus) RewardChanged(old, new *models.Reward) {
	switch {
	case old == nil && new != nil:
		b.publish(ChannelRewards, Event{Type: RewardCreated, Payload: new})
	case old != nil && new != nil:
		if old.Status != new.Status && new.Status == models.RewardDistributed {
			b.publish(ChannelRewards, Event{Type: RewardDistributed, Payload: new})
		}
	}
}

// SnapshotInserted announces a new stats snapshot.
func (b *Bus) SnapshotInserted(snap *models.NetworkStatsSnapshot) {
	b.publish(ChannelStats, Event{Type: StatsSnapshot, Payload: snap})
}

// NotifyUser publishes directly to one user's channel. Used by the
// notification layer for reward and status notices.
func (b *Bus) NotifyUser(userID string, payload interface{}) {
	b.publish("user:"+userID, Event{Type: UserNotification, Payload: payload})
}

// Close tears down every subscription. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for channel, subs := range b.subs {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(b.subs, channel)
	}
}
