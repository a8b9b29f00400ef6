// Package feed provides an observable value: a single current snapshot that
// is replaced wholesale and fanned out to subscribers.
//
// Delivery never blocks the publisher. When a subscriber falls behind, its
// oldest pending value is discarded so the most recent snapshot is always the
// last one it receives. Observers may therefore miss intermediate values but
// never see anything other than a complete value that was actually set.
package feed

import (
	"context"
	"sync"
)

// Subscription receives values from a Feed.
type Subscription[T any] struct {
	C  <-chan T
	ch chan T
}

// Feed holds the latest value of T and notifies subscribers on every Set.
// The zero value is ready to use.
type Feed[T any] struct {
	mu     sync.Mutex
	once   sync.Once
	value  T
	set    bool
	closed bool
	signal chan struct{}
	subs   map[*Subscription[T]]struct{}
}

// New creates a Feed holding initial. The initial value counts as set.
func New[T any](initial T) *Feed[T] {
	f := &Feed[T]{}
	f.init()
	f.value = initial
	f.set = true
	return f
}

func (f *Feed[T]) init() {
	f.once.Do(func() {
		f.signal = make(chan struct{})
		f.subs = make(map[*Subscription[T]]struct{})
	})
}

// Value returns the current snapshot and whether a value was ever set.
func (f *Feed[T]) Value() (T, bool) {
	f.init()
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.value, f.set
}

// Set replaces the current value and delivers it to every subscriber.
func (f *Feed[T]) Set(v T) {
	f.init()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.value = v
	f.set = true

	close(f.signal)
	f.signal = make(chan struct{})

	for sub := range f.subs {
		deliver(sub.ch, v)
	}
}

// deliver enqueues v without blocking, evicting the oldest pending value if
// the buffer is full. Only Set writes to ch and it holds the feed lock, so the
// second send cannot fail for lack of room.
func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- v:
	default:
	}
}

// Subscribe registers a subscriber with the given buffer size (minimum 1).
// Only values set after the call are delivered; use Value for the current one.
// On a closed feed the returned subscription's channel is already closed.
func (f *Feed[T]) Subscribe(bufSize int) *Subscription[T] {
	f.init()
	if bufSize < 1 {
		bufSize = 1
	}

	ch := make(chan T, bufSize)
	sub := &Subscription[T]{C: ch, ch: ch}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return sub
	}
	f.subs[sub] = struct{}{}

	return sub
}

// Unsubscribe removes the subscription and closes its channel. It is safe to
// call more than once.
func (f *Feed[T]) Unsubscribe(sub *Subscription[T]) {
	f.init()
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.ch)
	}
}

// Close unsubscribes everyone. The value can still be read and replaced but no
// longer reaches any subscriber.
func (f *Feed[T]) Close() {
	f.init()
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.ch)
	}
}

// Watch blocks until the current value satisfies match or ctx is done.
func (f *Feed[T]) Watch(ctx context.Context, match func(T) bool) (T, error) {
	f.init()

	for {
		f.mu.Lock()
		v, ok := f.value, f.set
		sig := f.signal
		f.mu.Unlock()

		if ok && match(v) {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-sig:
		}
	}
}
