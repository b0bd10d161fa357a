package docstore

import (
	"context"
	"sync"
)

// Subscription delivers snapshots of one watched path. Only the newest
// undelivered snapshot is kept; the channel closes once the subscription
// ends and it cannot be restarted.
type Subscription struct {
	ch      chan Snapshot
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	onClose func()
}

func NewSubscription(ctx context.Context, onClose func()) *Subscription {
	s := &Subscription{
		ch:      make(chan Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Publish replaces any pending snapshot with snap. It reports false once the
// subscription is closed.
func (s *Subscription) Publish(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- snap:
		return true
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	return true
}

func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	close(s.done)
}
