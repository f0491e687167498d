// Package schedule runs the timed continuations of one task and tears them
// down together. A Schedule is keyed by the task it serves; owners compare
// schedules by identity to decide whether a continuation is still current.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Clock is the source of delays and of the current time. Tests substitute a
// recording or manual clock.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) Now() time.Time { return time.Now() }

// Schedule owns the continuations for a single key.
type Schedule struct {
	key    string
	clock  Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New derives a schedule from parent. Cancelling parent stops the schedule too.
func New(parent context.Context, key string, clock Clock) *Schedule {
	if clock == nil {
		clock = RealClock{}
	}
	ctx, cancel := context.WithCancel(parent)
	return &Schedule{key: key, clock: clock, ctx: ctx, cancel: cancel}
}

// Key returns the identifier the schedule was created for.
func (s *Schedule) Key() string { return s.key }

// Context is cancelled when the schedule is.
func (s *Schedule) Context() context.Context { return s.ctx }

// Cancel stops the schedule. Pending waits return false. Safe to call repeatedly.
func (s *Schedule) Cancel() { s.cancel() }

// Cancelled reports whether Cancel was called or the parent context ended.
func (s *Schedule) Cancelled() bool { return s.ctx.Err() != nil }

// Wait sleeps for d and reports whether the schedule is still live afterwards.
func (s *Schedule) Wait(d time.Duration) bool {
	if s.Cancelled() {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	case <-s.clock.After(d):
		return !s.Cancelled()
	}
}

// Go runs fn on its own goroutine; Join waits for every fn started this way.
func (s *Schedule) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Join blocks until all goroutines started with Go have returned.
func (s *Schedule) Join() { s.wg.Wait() }
