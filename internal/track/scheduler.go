package track

import "time"

// Scheduler hands out cancellable one-shot tasks. The tracking loops never
// sleep on their own; every delay goes through here, which keeps the
// suspend/resume/cancel contract explicit and lets tests drive time by hand.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Task
}

// Task is a scheduled callback that can be cancelled before it fires.
// Cancel reports whether the callback was still pending.
type Task interface {
	Cancel() bool
}

type timerScheduler struct{}

// NewScheduler returns the production scheduler backed by the runtime timer.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(d time.Duration, fn func()) Task {
	return timerTask{timer: time.AfterFunc(d, fn)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() bool {
	return t.timer.Stop()
}
