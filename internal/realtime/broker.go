package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"liveclass/internal/metrics"
)

// Broker fans change events out to subscribers by table.
type Broker interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(ctx context.Context, table string) (*Subscription, error)
}

// Subscription delivers changes for one table until Close is called or the
// subscribing context ends. Every subscriber must Close its subscription.
type Subscription struct {
	C     <-chan Change
	once  sync.Once
	close func()
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}

const subscriberBuffer = 64

// InMemory is a process-local broker for dev/testing.
type InMemory struct {
	mu   sync.RWMutex
	subs map[string]map[chan Change]struct{}
}

// NewInMemory creates an empty in-process broker.
func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[string]map[chan Change]struct{})}
}

// Publish delivers c to every current subscriber of its table. Slow
// subscribers lose the event rather than blocking the publisher.
func (b *InMemory) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[c.Table] {
		select {
		case ch <- c:
		default:
			metrics.ChangesDropped.WithLabelValues(c.Table).Inc()
		}
	}
	metrics.ChangesPublished.WithLabelValues(c.Table, string(c.Type)).Inc()
	return nil
}

// Subscribe registers a buffered channel for table.
func (b *InMemory) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	ch := make(chan Change, subscriberBuffer)
	b.mu.Lock()
	if b.subs[table] == nil {
		b.subs[table] = make(map[chan Change]struct{})
	}
	b.subs[table][ch] = struct{}{}
	b.mu.Unlock()

	sub := &Subscription{C: ch}
	sub.close = func() {
		b.mu.Lock()
		delete(b.subs[table], ch)
		if len(b.subs[table]) == 0 {
			delete(b.subs, table)
		}
		b.mu.Unlock()
		close(ch)
	}
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Subscribers reports how many subscriptions are open for table.
func (b *InMemory) Subscribers(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}

// RedisBroker implements Broker over Redis Pub/Sub so every API replica
// sees changes bridged by the worker.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker builds a broker publishing on "<prefix><table>" channels.
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "liveclass:changes:"
	}
	return &RedisBroker{client: client, prefix: prefix}
}

// Publish sends the change as JSON.
func (b *RedisBroker) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.prefix+c.Table, payload).Err(); err != nil {
		return err
	}
	metrics.ChangesPublished.WithLabelValues(c.Table, string(c.Type)).Inc()
	return nil
}

// Subscribe opens a Pub/Sub subscription for table.
func (b *RedisBroker) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.prefix+table)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Change, subscriberBuffer)
	done := make(chan struct{})
	sub := &Subscription{C: out}
	sub.close = func() {
		close(done)
		_ = ps.Close()
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c, err := ParseChange([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- c:
				default:
					metrics.ChangesDropped.WithLabelValues(table).Inc()
				}
			}
		}
	}()
	return sub, nil
}
