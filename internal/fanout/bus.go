// Package fanout carries document change notifications from the writers of
// the document service to every open watch.
package fanout

import (
	"context"
	"sync"
)

// Change names a document that was written or deleted.
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Revision   int64  `json:"revision"`
	Deleted    bool   `json:"deleted,omitempty"`
}

type Handler func(Change)

// Bus delivers changes to every subscriber, including those of other server
// replicas when the bus is shared.
type Bus interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(handler Handler) (func(), error)
	Close() error
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]Handler)}
}

func (b *LocalBus) Publish(_ context.Context, change Change) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(change)
	}
	return nil
}

func (b *LocalBus) Subscribe(handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[int]Handler)
	return nil
}
