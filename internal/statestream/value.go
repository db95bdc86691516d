// Package statestream provides the publish-subscribe primitive the
// view-models expose their state through: a single current value,
// replayed to every new subscriber, then updated in publish order.
package statestream

import (
	"context"
	"sync"
)

// Value holds one current value of type T. Subscribers receive the latest
// value immediately upon subscribing, then every subsequent Set. A slow
// subscriber only ever observes the most recent value: intermediate
// values may be dropped, never reordered.
type Value[T any] struct {
	mu       sync.Mutex
	current  T
	hasValue bool
	subs     map[int]chan T
	nextID   int
	closed   bool
	done     chan struct{}
}

func NewValue[T any]() *Value[T] {
	return &Value[T]{
		subs: make(map[int]chan T),
		done: make(chan struct{}),
	}
}

// NewValueWith creates a Value that already holds initial.
func NewValueWith[T any](initial T) *Value[T] {
	v := NewValue[T]()
	v.current = initial
	v.hasValue = true
	return v
}

func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.hasValue
}

func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.publish(val)
}

// Update applies fn to the current value under the lock and publishes the
// result. Used by view-models for read-modify-write state patches.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.publish(fn(v.current))
}

// publish must be called with mu held. Sends never block: each subscriber
// channel is buffered with one slot, and a stale undrained value is
// dropped before the new one goes in.
func (v *Value[T]) publish(val T) {
	if v.closed {
		return
	}
	v.current = val
	v.hasValue = true
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- val
	}
}

// Subscribe returns a channel replaying the latest value (if any) and then
// receiving updates. The subscription detaches when ctx is done or the
// Value is closed; the channel is closed on detach.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	v.mu.Lock()

	ch := make(chan T, 1)
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	if v.hasValue {
		ch <- v.current
	}
	v.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-v.done:
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
	}()

	return ch
}

// Close detaches all subscribers and closes their channels. Set and
// Update become no-ops afterwards.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.done)
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}
