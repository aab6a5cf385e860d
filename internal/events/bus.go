// Package events fans conversation changes out to observers. Subscribers get
// read-only values over channels; nothing they receive can mutate the run.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/comigor/roundtable/internal/logger"
)

const defaultBufferSize = 128

// SinkBufferSize is the buffer given to subscribers that archive or export
// events. A sink that falls further behind than this misses events, and each
// miss is counted in Dropped and logged.
const SinkBufferSize = 8192

// Bus delivers every published value to all current subscribers. A
// subscriber whose buffer is full misses the value rather than stalling the
// publisher.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]chan T
	nextID      uint64
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

func NewBus[T any](bufferSize int) *Bus[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus[T]{subscribers: make(map[uint64]chan T), bufferSize: bufferSize}
}

// Subscribe returns a channel of future values and a cancel func that
// unsubscribes and closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeBuffered(b.bufferSize)
}

// SubscribeBuffered is Subscribe with a channel buffer of size instead of the
// bus default.
func (b *Bus[T]) SubscribeBuffered(size int) (<-chan T, func()) {
	if size <= 0 {
		size = b.bufferSize
	}
	ch := make(chan T, size)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			n := b.dropped.Add(1)
			logger.L.Warn("event bus subscriber is full; dropping event", "subscriber", id, "dropped_total", n)
		}
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Bus[T]) Dropped() int64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later Publish calls are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
