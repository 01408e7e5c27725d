package session

import "time"

// Timer is a scheduled callback with a cancellation handle.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d. Injectable so tests can drive virtual
// time instead of sleeping.
type TimerFactory func(d time.Duration, fn func()) Timer

func stdTimerFactory(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
