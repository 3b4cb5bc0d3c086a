package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/studydesk/account-core/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	subscriberBuffer = 16
)

type EventType string

const (
	// EventAccountChanged tells sessions holding a copy of the account to reconcile.
	EventAccountChanged EventType = "account_changed"
)

type Event struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"accountId"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher announces account changes. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Subscription struct {
	AccountID string
	Events    chan Event
	Done      chan struct{}
}

// Broker fans account events out to local subscriptions. With a Redis client the
// events travel through pub/sub so every process sharing the store sees them;
// without one they stay in process.
type Broker struct {
	redis  *redisclient.Client
	subs   map[string]map[*Subscription]bool // accountID -> set of subscriptions
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		subs:   make(map[string]map[*Subscription]bool),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(accountID string) *Subscription {
	sub := &Subscription{
		AccountID: accountID,
		Events:    make(chan Event, subscriberBuffer),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[accountID] == nil {
		b.subs[accountID] = make(map[*Subscription]bool)
		if b.redis != nil {
			go b.subscribeToRedis(accountID)
		}
	}
	b.subs[accountID][sub] = true
	count := len(b.subs[accountID])
	b.mu.Unlock()

	log.Debug().
		Str("accountId", accountID).
		Int("subscriberCount", count).
		Msg("account subscription added")

	return sub
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[sub.AccountID]; ok {
		if _, present := subs[sub]; !present {
			return
		}
		delete(subs, sub)
		close(sub.Done)

		if len(subs) == 0 {
			delete(b.subs, sub.AccountID)
		}

		log.Debug().
			Str("accountId", sub.AccountID).
			Int("subscriberCount", len(subs)).
			Msg("account subscription removed")
	}
}

func (b *Broker) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	if b.redis == nil {
		b.broadcast(event.AccountID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.AccountChannel(event.AccountID), data).Err()
}

func (b *Broker) subscribeToRedis(accountID string) {
	channel := redisclient.AccountChannel(accountID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("accountId", accountID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal account event")
				continue
			}

			b.mu.RLock()
			_, live := b.subs[accountID]
			b.mu.RUnlock()
			if !live {
				return
			}

			b.broadcast(accountID, event)
		}
	}
}

func (b *Broker) broadcast(accountID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[accountID] {
		select {
		case sub.Events <- event:
		default:
			// A pending event already tells the subscriber to reconcile.
			log.Debug().
				Str("accountId", accountID).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.Done)
		}
	}
	b.subs = make(map[string]map[*Subscription]bool)
}

func (b *Broker) SubscriberCount(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[accountID])
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
