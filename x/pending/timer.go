package pending

import "time"

// Timer cancels a per-request deadline.
type Timer interface {
	Stop() bool
}

// TimerFactory creates a Timer that executes a function after a duration.
type TimerFactory interface {
	AfterFunc(duration time.Duration, fn func()) Timer
}

// SystemTimerFactory implements TimerFactory using time.AfterFunc.
type SystemTimerFactory struct{}

func (SystemTimerFactory) AfterFunc(duration time.Duration, fn func()) Timer {
	return time.AfterFunc(duration, fn)
}
