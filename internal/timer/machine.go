// Package timer holds the shared timer transitions. Machine is pure;
// Controller applies it to the replicated timer document.
package timer

import (
	"errors"
	"time"

	"github.com/GolferGeek/sync-focus/internal/model"
)

var (
	ErrInvalidPhase    = errors.New("phase must be WORK or BREAK")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrAmbiguousPhases = errors.New("work and break durations must differ")
)

// Machine computes the next timer document from the current one. Work and
// Break are the nominal interval lengths in seconds.
type Machine struct {
	Work  int
	Break int
}

var DefaultMachine = Machine{Work: model.WorkTime, Break: model.BreakTime}

// Validate rejects configurations where a paused interval's phase could not
// be told apart by its duration.
func (m Machine) Validate() error {
	if m.Work <= 0 || m.Break <= 0 {
		return ErrInvalidDuration
	}
	if m.Work == m.Break {
		return ErrAmbiguousPhases
	}
	return nil
}

func (m Machine) Idle() model.GlobalTimer {
	return model.DefaultTimer(m.Work)
}

func (m Machine) Start(now time.Time, duration int, phase model.TimerStatus) (model.GlobalTimer, error) {
	if !model.IsValidPhase(phase) {
		return model.GlobalTimer{}, ErrInvalidPhase
	}
	if duration <= 0 {
		return model.GlobalTimer{}, ErrInvalidDuration
	}

	start := model.Millis(now)
	return model.GlobalTimer{
		Status:              phase,
		StartTime:           start,
		EndTime:             start + int64(duration)*1000,
		Duration:            duration,
		RemainingTimeStored: 0,
	}, nil
}

// Pause freezes a running timer. It reports false when cur is not running.
func (m Machine) Pause(cur model.GlobalTimer, now time.Time) (model.GlobalTimer, bool) {
	if !cur.Running() {
		return cur, false
	}

	remaining := RemainingSeconds(cur.EndTime, now)
	if cur.Duration > 0 && remaining > cur.Duration {
		remaining = cur.Duration
	}
	next := cur
	next.Status = model.StatusPaused
	next.RemainingTimeStored = remaining
	return next, true
}

// Resume restarts a paused timer so that the elapsed share of the interval
// is preserved. The phase is BREAK exactly when the duration equals Break.
func (m Machine) Resume(cur model.GlobalTimer, now time.Time) (model.GlobalTimer, bool) {
	if cur.Status != model.StatusPaused {
		return cur, false
	}

	phase := model.StatusWork
	if cur.Duration == m.Break {
		phase = model.StatusBreak
	}

	remaining := cur.RemainingTimeStored
	if remaining < 0 {
		remaining = 0
	}
	nowMs := model.Millis(now)
	return model.GlobalTimer{
		Status:              phase,
		StartTime:           nowMs - int64(cur.Duration-remaining)*1000,
		EndTime:             nowMs + int64(remaining)*1000,
		Duration:            cur.Duration,
		RemainingTimeStored: 0,
	}, true
}

func (m Machine) Stop() model.GlobalTimer {
	return m.Idle()
}

// Complete chains WORK into BREAK and resets everything else.
func (m Machine) Complete(cur model.GlobalTimer, now time.Time) model.GlobalTimer {
	if cur.Status == model.StatusWork {
		next, _ := m.Start(now, m.Break, model.StatusBreak)
		return next
	}
	return m.Idle()
}

// Skip ends the running phase early and starts the other one.
func (m Machine) Skip(cur model.GlobalTimer, now time.Time) (model.GlobalTimer, bool) {
	switch cur.Status {
	case model.StatusWork:
		next, _ := m.Start(now, m.Break, model.StatusBreak)
		return next, true
	case model.StatusBreak:
		next, _ := m.Start(now, m.Work, model.StatusWork)
		return next, true
	default:
		return cur, false
	}
}

// RemainingSeconds is max(0, ceil((endTime-now)/1000)).
func RemainingSeconds(endTime int64, now time.Time) int {
	diff := endTime - model.Millis(now)
	if diff <= 0 {
		return 0
	}
	return int((diff + 999) / 1000)
}
