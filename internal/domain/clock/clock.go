// Package clock abstracts time so challenge countdowns, ready delays and
// match pauses can be cancelled, serialized per session and driven by tests.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a cancellable scheduled task.
type Timer interface {
	// Stop cancels the task. It reports whether a pending run was prevented.
	Stop() bool
}

// Clock schedules one-shot and periodic callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Real returns a Clock backed by the runtime timers.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (realClock) Every(d time.Duration, fn func()) Timer {
	t := &ticker{t: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.t.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type ticker struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.t.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// Serialized wraps base so every callback runs through run, typically a
// session's dispatcher. A callback whose timer was stopped before run
// acquired the dispatcher is dropped, so a stale deadline cannot reach a
// challenge that was restarted in the meantime.
func Serialized(base Clock, run func(func())) Clock {
	return &serialClock{base: base, run: run}
}

type serialClock struct {
	base Clock
	run  func(func())
}

type serialTimer struct {
	inner   Timer
	stopped atomic.Bool
}

func (t *serialTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	return t.inner.Stop()
}

func (c *serialClock) Now() time.Time { return c.base.Now() }

func (c *serialClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &serialTimer{}
	t.inner = c.base.AfterFunc(d, c.guard(t, fn))
	return t
}

func (c *serialClock) Every(d time.Duration, fn func()) Timer {
	t := &serialTimer{}
	t.inner = c.base.Every(d, c.guard(t, fn))
	return t
}

func (c *serialClock) guard(t *serialTimer, fn func()) func() {
	return func() {
		c.run(func() {
			if t.stopped.Load() {
				return
			}
			fn()
		})
	}
}
