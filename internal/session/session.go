// Package session holds one client's view of the shared workspace: the team
// roster, projects, tasks and the timer, kept current by store watches.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

const defaultResubscribeDelay = 2 * time.Second

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrEmptyTitle  = errors.New("title must not be empty")
	ErrEmptyName   = errors.New("project name must not be empty")
)

// AppData is a point-in-time copy of the session state.
type AppData struct {
	Users      map[string]model.User
	Projects   []model.Project
	Tasks      []model.Task
	Timer      model.TimerSnapshot
	AuthUserID string
}

type Listener func(AppData)

type Session struct {
	store            docstore.Store
	clock            clockwork.Clock
	logger           zerolog.Logger
	machine          timer.Machine
	controller       *timer.Controller
	resubscribeDelay time.Duration

	mu           sync.Mutex
	state        AppData
	listeners    map[int]Listener
	nextListener int
	stopWatches  context.CancelFunc
	watchers     sync.WaitGroup
}

type Option func(*Session)

func WithMachine(m timer.Machine) Option {
	return func(s *Session) { s.machine = m }
}

func WithResubscribeDelay(d time.Duration) Option {
	return func(s *Session) { s.resubscribeDelay = d }
}

func New(store docstore.Store, clock clockwork.Clock, logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		store:            store,
		clock:            clock,
		logger:           logger.With().Str("component", "session").Logger(),
		machine:          timer.DefaultMachine,
		resubscribeDelay: defaultResubscribeDelay,
		listeners:        make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.controller = timer.NewController(store,
		timer.WithClock(clock),
		timer.WithLogger(logger),
		timer.WithMachine(s.machine),
	)
	s.state = AppData{
		Users: map[string]model.User{},
		Timer: model.TimerSnapshot{Timer: s.machine.Idle()},
	}
	return s
}

// Timer returns the controller bound to this session's store.
func (s *Session) Timer() *timer.Controller {
	return s.controller
}

func (s *Session) Store() docstore.Store {
	return s.store
}

// Subscribe calls fn with the current state and again after every change.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	data := s.copyLocked()
	s.mu.Unlock()

	fn(data)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Data returns a copy of the current state.
func (s *Session) Data() AppData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// TimerUpdates streams timer snapshots until ctx ends. Only the newest
// undelivered snapshot is kept.
func (s *Session) TimerUpdates(ctx context.Context) <-chan model.TimerSnapshot {
	out := make(chan model.TimerSnapshot, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := s.Subscribe(func(data AppData) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-out:
		default:
		}
		out <- data.Timer
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}

// SignIn upserts the identity's presence document and starts the shared
// watches if they are not already running.
func (s *Session) SignIn(ctx context.Context, id model.Identity) error {
	if err := s.Attach(ctx, id); err != nil {
		return err
	}
	s.startWatches()
	s.logger.Info().Str("user_id", id.UserID).Msg("signed in")
	return nil
}

// Attach records the identity and upserts its presence document without
// starting watches. Short-lived clients use it to run single operations.
func (s *Session) Attach(ctx context.Context, id model.Identity) error {
	if id.UserID == "" {
		return ErrNotSignedIn
	}

	s.mu.Lock()
	s.state.AuthUserID = id.UserID
	s.mu.Unlock()

	profile := map[string]any{
		"userId":      id.UserID,
		"displayName": displayName(id),
		"avatarUrl":   avatarURL(id),
		"lastActive":  model.Millis(s.clock.Now()),
	}
	if id.Email != "" {
		profile["email"] = id.Email
	}
	if _, err := s.store.Set(ctx, model.UsersCollection, id.UserID, profile, docstore.Merge()); err != nil {
		s.logger.Error().Err(err).Str("user_id", id.UserID).Msg("failed to upsert user profile")
		return err
	}
	return nil
}

// SignOut forgets the identity, stops the watches and clears the workspace
// contents. The last known roster and timer stay in place.
func (s *Session) SignOut() {
	s.stopAndWait()

	s.mu.Lock()
	s.state.AuthUserID = ""
	s.state.Projects = nil
	s.state.Tasks = nil
	s.mu.Unlock()
	s.notify()
}

// Close stops the watches and drops every listener.
func (s *Session) Close() {
	s.stopAndWait()

	s.mu.Lock()
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()
}

func (s *Session) stopAndWait() {
	s.mu.Lock()
	stop := s.stopWatches
	s.stopWatches = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.watchers.Wait()
}

func (s *Session) userID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.AuthUserID == "" {
		return "", ErrNotSignedIn
	}
	return s.state.AuthUserID, nil
}

func (s *Session) copyLocked() AppData {
	return AppData{
		Users:      maps.Clone(s.state.Users),
		Projects:   slices.Clone(s.state.Projects),
		Tasks:      slices.Clone(s.state.Tasks),
		Timer:      s.state.Timer,
		AuthUserID: s.state.AuthUserID,
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	data := s.copyLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(data)
	}
}

func displayName(id model.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if local, _, ok := cutEmail(id.Email); ok {
		return local
	}
	return "Anonymous"
}
