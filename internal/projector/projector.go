// Package projector derives each client's countdown from the shared timer
// document and the local wall clock.
package projector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

const (
	TickInterval      = time.Second
	defaultRetryAfter = 5 * time.Second

	labelReady  = "READY"
	labelPaused = "PAUSED"
	labelFocus  = "GROUP FOCUS"
	labelBreak  = "GROUP BREAK"
)

// Display is what a client renders for the shared timer.
type Display struct {
	Status    model.TimerStatus
	Remaining int
	Duration  int
	Progress  float64
	Label     string
	Revision  int64
}

// Clock formats the remaining time as MM:SS.
func (d Display) Clock() string {
	return fmt.Sprintf("%02d:%02d", d.Remaining/60, d.Remaining%60)
}

// Project computes the display for t at now. work is the remaining time
// shown while IDLE.
func Project(t model.GlobalTimer, now time.Time, work int) Display {
	d := Display{Status: t.Status, Duration: t.Duration}
	switch t.Status {
	case model.StatusIdle, "":
		d.Status = model.StatusIdle
		d.Remaining = work
		d.Duration = work
		d.Progress = 1
		d.Label = labelReady
		return d
	case model.StatusPaused:
		d.Remaining = t.RemainingTimeStored
		d.Label = labelPaused
	case model.StatusBreak:
		d.Remaining = timer.RemainingSeconds(t.EndTime, now)
		d.Label = labelBreak
	default:
		d.Remaining = timer.RemainingSeconds(t.EndTime, now)
		d.Label = labelFocus
	}
	d.Progress = progress(d.Remaining, t.Duration)
	return d
}

func progress(remaining, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(remaining) / float64(duration)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// Notifier plays the completion notification.
type Notifier interface {
	Notify(status model.TimerStatus)
}

type NotifierFunc func(status model.TimerStatus)

func (f NotifierFunc) Notify(status model.TimerStatus) { f(status) }

// CompleteFunc is invoked with the snapshot whose interval reached zero.
type CompleteFunc func(ctx context.Context, observed model.TimerSnapshot)

// Projector recomputes one client's display on every tick and every store
// update, and triggers completion once per finished interval.
type Projector struct {
	clock      clockwork.Clock
	work       int
	notifier   Notifier
	onComplete CompleteFunc
	onDisplay  func(Display)
	retryAfter time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	current     model.TimerSnapshot
	last        Display
	lastKey     [2]int64
	firedKey    [2]int64
	fired       bool
	lastAttempt time.Time
}

type Option func(*Projector)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Projector) { p.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(p *Projector) { p.notifier = n }
}

func WithCompletion(fn CompleteFunc) Option {
	return func(p *Projector) { p.onComplete = fn }
}

func WithDisplay(fn func(Display)) Option {
	return func(p *Projector) { p.onDisplay = fn }
}

func WithRetryAfter(d time.Duration) Option {
	return func(p *Projector) { p.retryAfter = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Projector) { p.logger = logger }
}

func New(work int, opts ...Option) *Projector {
	p := &Projector{
		clock:      clockwork.NewRealClock(),
		work:       work,
		retryAfter: defaultRetryAfter,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current = model.TimerSnapshot{Timer: model.DefaultTimer(work)}
	p.logger = p.logger.With().Str("component", "projector").Logger()
	return p
}

// Update replaces the observed snapshot and recomputes immediately.
func (p *Projector) Update(ctx context.Context, snap model.TimerSnapshot) Display {
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	return p.Tick(ctx)
}

// Tick recomputes the display against the local clock.
func (p *Projector) Tick(ctx context.Context) Display {
	p.mu.Lock()
	snap := p.current
	now := p.clock.Now()
	d := Project(snap.Timer, now, p.work)
	d.Revision = snap.Revision

	key := snap.IntervalKey()
	if snap.Timer.Running() {
		if key == p.lastKey && p.last.Status == d.Status && d.Remaining > p.last.Remaining {
			d.Remaining = p.last.Remaining
			d.Progress = progress(d.Remaining, snap.Timer.Duration)
		}
	}
	p.last = d
	p.lastKey = key

	notify, complete := p.completionLocked(snap, d, key, now)
	p.mu.Unlock()

	if notify && p.notifier != nil {
		p.notifier.Notify(snap.Timer.Status)
	}
	if complete && p.onComplete != nil {
		p.onComplete(ctx, snap)
	}
	if p.onDisplay != nil {
		p.onDisplay(d)
	}
	return d
}

func (p *Projector) completionLocked(snap model.TimerSnapshot, d Display, key [2]int64, now time.Time) (bool, bool) {
	if !snap.Timer.Running() || d.Remaining != 0 {
		return false, false
	}

	if !p.fired || p.firedKey != key {
		p.fired = true
		p.firedKey = key
		p.lastAttempt = now
		p.logger.Debug().
			Str("status", string(snap.Timer.Status)).
			Int64("revision", snap.Revision).
			Msg("interval finished")
		return true, true
	}

	// Same interval still at zero: the completing write was lost.
	if p.retryAfter > 0 && now.Sub(p.lastAttempt) >= p.retryAfter {
		p.lastAttempt = now
		p.logger.Warn().Int64("revision", snap.Revision).Msg("retrying timer completion")
		return false, true
	}
	return false, false
}

func (p *Projector) Current() Display {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run drives the projector from updates and a one-second ticker until ctx
// ends or updates closes.
func (p *Projector) Run(ctx context.Context, updates <-chan model.TimerSnapshot) error {
	ticker := p.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				p.logger.Info().Msg("timer updates closed")
				return nil
			}
			p.Update(ctx, snap)
		case <-ticker.Chan():
			p.Tick(ctx)
		}
	}
}
