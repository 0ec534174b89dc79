package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/peymanslh/wanotifier/app/dto"
)

// StatusFeed publishes live session events on per-merchant channels so the
// dashboard can stream QR codes and connection state changes.
type StatusFeed interface {
	Publish(ctx context.Context, event dto.SessionEvent) error
	Subscribe(ctx context.Context, merchantID uint) (<-chan dto.SessionEvent, func(), error)
}

func feedChannel(merchantID uint) string {
	return fmt.Sprintf("wa:feed:%d", merchantID)
}

// RedisStatusFeed implements StatusFeed over redis pub/sub
type RedisStatusFeed struct {
	client *redis.Client
}

func NewRedisStatusFeed(client *redis.Client) StatusFeed {
	return &RedisStatusFeed{client: client}
}

func (f *RedisStatusFeed) Publish(ctx context.Context, event dto.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	return f.client.Publish(ctx, feedChannel(event.MerchantID), payload).Err()
}

func (f *RedisStatusFeed) Subscribe(ctx context.Context, merchantID uint) (<-chan dto.SessionEvent, func(), error) {
	sub := f.client.Subscribe(ctx, feedChannel(merchantID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to status feed: %w", err)
	}

	out := make(chan dto.SessionEvent, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event dto.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// InMemoryStatusFeed is a process-local StatusFeed for tests and single-node setups
type InMemoryStatusFeed struct {
	mu          sync.Mutex
	subscribers map[uint][]chan dto.SessionEvent
	Published   []dto.SessionEvent
}

func NewInMemoryStatusFeed() *InMemoryStatusFeed {
	return &InMemoryStatusFeed{subscribers: make(map[uint][]chan dto.SessionEvent)}
}

func (f *InMemoryStatusFeed) Publish(ctx context.Context, event dto.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, event)
	for _, ch := range f.subscribers[event.MerchantID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Events returns a snapshot of everything published so far
func (f *InMemoryStatusFeed) Events() []dto.SessionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.SessionEvent, len(f.Published))
	copy(out, f.Published)
	return out
}

func (f *InMemoryStatusFeed) Subscribe(ctx context.Context, merchantID uint) (<-chan dto.SessionEvent, func(), error) {
	ch := make(chan dto.SessionEvent, 16)
	f.mu.Lock()
	f.subscribers[merchantID] = append(f.subscribers[merchantID], ch)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[merchantID]
		for i, c := range subs {
			if c == ch {
				f.subscribers[merchantID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel, nil
}
