// Package events provides a typed observer bus with isolated subscriber dispatch.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chat-app-client/internal/logging"
)

// Handler receives one event. A returned error is logged and does not stop delivery.
type Handler[T any] func(event T) error

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus delivers events to subscribers in registration order.
// Each invocation is isolated: an error or panic in one subscriber is logged
// and the remaining subscribers still receive the event.
type Bus[T any] struct {
	name string
	log  *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

// NewBus creates a bus. name identifies the event kind in logs.
func NewBus[T any](name string, log *zap.Logger) *Bus[T] {
	return &Bus[T]{
		name: name,
		log:  logging.OrComponent(log, "events"),
	}
}

// Subscribe registers h and returns a function that removes it. The returned
// function is idempotent.
func (b *Bus[T]) Subscribe(h Handler[T]) func() {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers event to every subscriber and returns the subscriber errors.
func (b *Bus[T]) Publish(event T) []error {
	b.mu.RLock()
	subs := make([]subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	for i, s := range subs {
		if err := b.invoke(s.handler, event); err != nil {
			b.log.Error("subscriber failed",
				zap.String("event", b.name),
				zap.Int("subscriber", i),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Bus[T]) invoke(h Handler[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s subscriber panicked: %v", b.name, r)
		}
	}()
	return h(event)
}
