package session

import "time"

// Scheduler runs f once after d unless the returned Handle is stopped first.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

type Handle interface {
	// Stop reports whether it prevented f from running.
	Stop() bool
}

// TimerScheduler schedules on the runtime timer heap.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}
