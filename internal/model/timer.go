package model

import "time"

type TimerStatus string

const (
	StatusIdle   TimerStatus = "IDLE"
	StatusWork   TimerStatus = "WORK"
	StatusBreak  TimerStatus = "BREAK"
	StatusPaused TimerStatus = "PAUSED"
)

const (
	WorkTime  = 25 * 60
	BreakTime = 5 * 60
)

const (
	ConfigCollection = "config"
	TimerDocID       = "timer"
)

// GlobalTimer is the single team-wide timer document. Times are epoch
// milliseconds, durations are seconds.
type GlobalTimer struct {
	Status              TimerStatus `json:"status"`
	StartTime           int64       `json:"startTime"`
	EndTime             int64       `json:"endTime"`
	Duration            int         `json:"duration"`
	RemainingTimeStored int         `json:"remainingTimeStored"`
}

// DefaultTimer returns the IDLE document for the given nominal work length.
func DefaultTimer(workSeconds int) GlobalTimer {
	return GlobalTimer{
		Status:   StatusIdle,
		Duration: workSeconds,
	}
}

func (t GlobalTimer) Running() bool {
	return t.Status == StatusWork || t.Status == StatusBreak
}

// TimerSnapshot is a GlobalTimer as observed from the store, together with
// the store revision it was read at.
type TimerSnapshot struct {
	Timer    GlobalTimer `json:"timer"`
	Revision int64       `json:"revision"`
	Exists   bool        `json:"exists"`
}

func (s TimerSnapshot) IntervalKey() [2]int64 {
	return [2]int64{s.Timer.StartTime, s.Timer.EndTime}
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func IsValidPhase(status TimerStatus) bool {
	return status == StatusWork || status == StatusBreak
}
