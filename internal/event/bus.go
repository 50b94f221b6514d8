// Package event is the fan-in/fan-out bus between shotwatch components.
// Publish never blocks: a subscriber whose buffer is full misses the event and
// the drop is counted.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
)

const defaultSubscriberBufferSize = 128

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	// MaxSubscribers caps concurrent subscriptions; zero means unlimited.
	MaxSubscribers int
	Registry       *metrics.Registry
	Logger         *logging.Logger
}

type Bus[T any] struct {
	options BusOptions
	logger  *logging.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus returns a bus that closes itself once ctx is done.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	bus := &Bus[T]{
		options: opts,
		logger:  opts.Logger.With(map[string]string{"bus": opts.Name}),
		subs:    make(map[uint64]chan T),
	}
	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, bus.Close)
	}
	return bus
}

// Subscribe returns a channel of future events and a cancel func. On a closed
// or full bus the channel is already closed.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || (b.options.MaxSubscribers > 0 && len(b.subs) >= b.options.MaxSubscribers) {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	ch := make(chan T, b.options.SubscriberBufferSize)
	b.subs[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

// Publish delivers event to every subscriber with room in its buffer.
// Publishing on a closed bus is a no-op.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	b.options.Registry.IncEventPublished(b.options.Name)
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.drop()
		}
	}
}

// Close closes every subscriber channel. It is safe to call more than once.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns published and dropped totals.
func (b *Bus[T]) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bus[T]) drop() {
	b.options.Registry.IncEventDropped(b.options.Name)
	if b.dropped.Add(1) == 1 {
		b.logger.Warn("subscriber too slow, dropping events", nil)
	}
}
