package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
)

const defaultMaxAttempts = 3

// Controller applies Machine transitions to the shared timer document. It
// keeps no timer state of its own; every transition starts from a snapshot.
type Controller struct {
	store       docstore.Store
	clock       clockwork.Clock
	machine     Machine
	logger      zerolog.Logger
	maxAttempts int
}

type Option func(*Controller)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMachine(machine Machine) Option {
	return func(c *Controller) { c.machine = machine }
}

func NewController(store docstore.Store, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		clock:       clockwork.NewRealClock(),
		machine:     DefaultMachine,
		logger:      zerolog.Nop(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "timer").Logger()
	return c
}

func (c *Controller) Machine() Machine {
	return c.machine
}

// Current reads the timer document. A missing document is reported as the
// IDLE default with Exists=false.
func (c *Controller) Current(ctx context.Context) (model.TimerSnapshot, error) {
	doc, err := c.store.Get(ctx, model.ConfigCollection, model.TimerDocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.TimerSnapshot{Timer: c.machine.Idle()}, nil
	}
	if err != nil {
		return model.TimerSnapshot{}, fmt.Errorf("read timer: %w", err)
	}
	return FromDocument(doc)
}

// Ensure creates the IDLE document when none exists. Concurrent callers
// converge on a single creation.
func (c *Controller) Ensure(ctx context.Context) (model.TimerSnapshot, error) {
	doc, err := c.store.Set(ctx, model.ConfigCollection, model.TimerDocID, c.machine.Idle(), docstore.IfRevision(0))
	if errors.Is(err, docstore.ErrConflict) {
		return c.Current(ctx)
	}
	if err != nil {
		return model.TimerSnapshot{}, fmt.Errorf("create timer: %w", err)
	}
	c.logger.Info().Msg("created default timer document")
	return FromDocument(doc)
}

// Start overwrites the timer with a fresh interval regardless of its state.
func (c *Controller) Start(ctx context.Context, duration int, phase model.TimerStatus) (model.TimerSnapshot, error) {
	next, err := c.machine.Start(c.clock.Now(), duration, phase)
	if err != nil {
		return model.TimerSnapshot{}, err
	}
	return c.write(ctx, "start", next)
}

// Stop resets the timer to IDLE regardless of its state.
func (c *Controller) Stop(ctx context.Context) (model.TimerSnapshot, error) {
	return c.write(ctx, "stop", c.machine.Stop())
}

func (c *Controller) Pause(ctx context.Context) (model.TimerSnapshot, error) {
	return c.transition(ctx, "pause", c.machine.Pause)
}

func (c *Controller) Resume(ctx context.Context) (model.TimerSnapshot, error) {
	return c.transition(ctx, "resume", c.machine.Resume)
}

func (c *Controller) Skip(ctx context.Context) (model.TimerSnapshot, error) {
	return c.transition(ctx, "skip", c.machine.Skip)
}

// Complete advances the interval the caller observed finishing. The write is
// conditional on the observed revision, so when several clients complete
// the same interval only the first one lands and the rest are no-ops. It
// reports whether this call advanced the timer.
func (c *Controller) Complete(ctx context.Context, observed model.TimerSnapshot) (model.TimerSnapshot, bool, error) {
	now := c.clock.Now()
	if !observed.Exists || !observed.Timer.Running() {
		return observed, false, nil
	}
	if RemainingSeconds(observed.Timer.EndTime, now) > 0 {
		return observed, false, nil
	}

	next := c.machine.Complete(observed.Timer, now)
	doc, err := c.store.Set(ctx, model.ConfigCollection, model.TimerDocID, next, docstore.IfRevision(observed.Revision))
	if errors.Is(err, docstore.ErrConflict) {
		c.logger.Debug().
			Int64("observed_revision", observed.Revision).
			Msg("completion already applied by another client")
		return observed, false, nil
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to complete timer")
		return observed, false, fmt.Errorf("complete timer: %w", err)
	}

	snap, err := FromDocument(doc)
	if err != nil {
		return observed, true, err
	}
	c.logger.Info().
		Str("from", string(observed.Timer.Status)).
		Str("to", string(snap.Timer.Status)).
		Msg("timer completed")
	return snap, true, nil
}

func (c *Controller) write(ctx context.Context, action string, next model.GlobalTimer) (model.TimerSnapshot, error) {
	doc, err := c.store.Set(ctx, model.ConfigCollection, model.TimerDocID, next)
	if err != nil {
		c.logger.Error().Err(err).Str("action", action).Msg("failed to write timer")
		return model.TimerSnapshot{}, fmt.Errorf("%s timer: %w", action, err)
	}
	c.logger.Info().
		Str("action", action).
		Str("status", string(next.Status)).
		Int("duration", next.Duration).
		Msg("timer updated")
	return FromDocument(doc)
}

func (c *Controller) transition(
	ctx context.Context,
	action string,
	fn func(model.GlobalTimer, time.Time) (model.GlobalTimer, bool),
) (model.TimerSnapshot, error) {
	for attempt := 1; ; attempt++ {
		cur, err := c.Current(ctx)
		if err != nil {
			return model.TimerSnapshot{}, err
		}

		next, changed := fn(cur.Timer, c.clock.Now())
		if !changed {
			c.logger.Debug().
				Str("action", action).
				Str("status", string(cur.Timer.Status)).
				Msg("transition not applicable")
			return cur, nil
		}

		doc, err := c.store.Set(ctx, model.ConfigCollection, model.TimerDocID, next, docstore.IfRevision(cur.Revision))
		if errors.Is(err, docstore.ErrConflict) && attempt < c.maxAttempts {
			c.logger.Debug().Str("action", action).Int("attempt", attempt).Msg("timer changed concurrently, retrying")
			continue
		}
		if err != nil {
			c.logger.Error().Err(err).Str("action", action).Msg("failed to write timer")
			return cur, fmt.Errorf("%s timer: %w", action, err)
		}

		c.logger.Info().
			Str("action", action).
			Str("status", string(next.Status)).
			Msg("timer updated")
		return FromDocument(doc)
	}
}

// FromDocument decodes a timer document into a snapshot.
func FromDocument(doc docstore.Document) (model.TimerSnapshot, error) {
	var t model.GlobalTimer
	if err := doc.Decode(&t); err != nil {
		return model.TimerSnapshot{}, err
	}
	return model.TimerSnapshot{Timer: t, Revision: doc.Revision, Exists: true}, nil
}

// FromSnapshot decodes a timer document watch snapshot. A missing document
// projects as the IDLE default of m.
func FromSnapshot(snap docstore.Snapshot, m Machine) (model.TimerSnapshot, error) {
	if !snap.Exists || snap.Document == nil {
		return model.TimerSnapshot{Timer: m.Idle()}, nil
	}
	return FromDocument(*snap.Document)
}
