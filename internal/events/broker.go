package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const defaultBufferSize = 64

// Broker implements a generic publish-subscribe broker with type safety
type Broker[T any] struct {
	subs       map[chan Event[T]]SubscriberInfo
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
	logger     *log.Logger
}

// SubscriberInfo contains metadata about a subscriber
type SubscriberInfo struct {
	ID      string
	Filters []EventFilter
	Created time.Time
}

// NewBroker creates a new broker with default settings
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithOptions[T](defaultBufferSize, nil)
}

// NewBrokerWithOptions creates a new broker with a custom channel buffer and logger
func NewBrokerWithOptions[T any](channelBufferSize int, logger *log.Logger) *Broker[T] {
	if channelBufferSize <= 0 {
		channelBufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]SubscriberInfo),
		done:       make(chan struct{}),
		bufferSize: channelBufferSize,
		logger:     logger,
	}
}

// Publish publishes an event to all subscribers. It never blocks: a
// subscriber whose buffer is full misses the event.
func (b *Broker[T]) Publish(eventType EventType, payload T, opts ...PublishOption) {
	select {
	case <-b.done:
		return
	default:
	}

	options := &PublishOptions{}
	for _, opt := range opts {
		opt(options)
	}

	event := Event[T]{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		SessionID: options.SessionID,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, info := range b.subs {
		if !accepts(eventType, info.Filters) {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn("event channel full, dropping event", "subscriber", info.ID, "type", eventType)
		}
	}
}

// Subscribe creates a new subscription with optional filters. The channel is
// closed when ctx is done or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context, filters ...EventFilter) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.bufferSize)
	if b.isShutdown() {
		close(ch)
		return ch
	}

	b.subs[ch] = SubscriberInfo{
		ID:      uuid.New().String(),
		Filters: filters,
		Created: time.Now(),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(ch)
	}()

	return ch
}

// unsubscribe removes a subscriber
func (b *Broker[T]) unsubscribe(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[ch]; exists {
		delete(b.subs, ch)
		close(ch)
	}
}

func accepts(eventType EventType, filters []EventFilter) bool {
	for _, filter := range filters {
		if !filter(eventType) {
			return false
		}
	}
	return true
}

// SubscriberCount returns the number of live subscriptions
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// isShutdown checks if the broker is shut down
func (b *Broker[T]) isShutdown() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Shutdown closes every subscriber channel and drops further publishes
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown() {
		return
	}
	close(b.done)

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// String returns a string representation of the broker
func (b *Broker[T]) String() string {
	return fmt.Sprintf("Broker[subscribers=%d, shutdown=%v]", b.SubscriberCount(), b.isShutdown())
}
