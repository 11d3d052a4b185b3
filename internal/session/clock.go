package session

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. Safe to call more than once.
	Stop()
}

// Scheduler runs callbacks after a delay.
//
// Every callback a Scheduler runs must execute on the hub's dispatcher, and
// Stop must be called from the dispatcher too.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// dispatchTimer is a time.AfterFunc whose callback is posted onto the
// dispatcher. stopped is only read and written on the dispatcher, so a
// callback that was already queued when Stop ran is discarded.
type dispatchTimer struct {
	timer   *time.Timer
	stopped bool
}

func (t *dispatchTimer) Stop() {
	t.stopped = true
	t.timer.Stop()
}

type dispatchScheduler struct {
	post func(func())
}

func (s dispatchScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &dispatchTimer{}
	t.timer = time.AfterFunc(d, func() {
		s.post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
