package fanout

import (
	"sync"

	"github.com/rs/zerolog"
)

// Watch is one registered interest in a collection or a single document.
// Signal coalesces: a watcher that is busy sees one pending signal no matter
// how many changes arrived meanwhile.
type Watch struct {
	Collection string
	ID         string

	signal chan struct{}
}

func (w *Watch) Signal() <-chan struct{} {
	return w.signal
}

func (w *Watch) matches(c Change) bool {
	if w.Collection != c.Collection {
		return false
	}
	return w.ID == "" || w.ID == c.ID
}

// Hub routes bus changes to the watches interested in them.
type Hub struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	watches map[*Watch]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "hub").Logger(),
		watches: make(map[*Watch]struct{}),
	}
}

func (h *Hub) Register(collection, id string) *Watch {
	w := &Watch{Collection: collection, ID: id, signal: make(chan struct{}, 1)}
	h.mu.Lock()
	h.watches[w] = struct{}{}
	total := len(h.watches)
	h.mu.Unlock()

	h.logger.Debug().
		Str("collection", collection).
		Str("id", id).
		Int("total_watches", total).
		Msg("watch registered")
	return w
}

func (h *Hub) Unregister(w *Watch) {
	h.mu.Lock()
	delete(h.watches, w)
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watches)
}

// Dispatch signals every watch matching c without blocking.
func (h *Hub) Dispatch(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for w := range h.watches {
		if !w.matches(c) {
			continue
		}
		select {
		case w.signal <- struct{}{}:
		default:
		}
		delivered++
	}

	h.logger.Debug().
		Str("collection", c.Collection).
		Str("id", c.ID).
		Int64("revision", c.Revision).
		Int("watches", delivered).
		Msg("change dispatched")
}

// Attach subscribes the hub to bus. The returned function detaches it.
func (h *Hub) Attach(bus Bus) (func(), error) {
	return bus.Subscribe(h.Dispatch)
}
