package ui

import (
	"sync"

	"jobfetch/internal/model"
	"jobfetch/internal/progress"
)

// teaReporter queues controller events for the program. It never blocks the
// controller: state changes coalesce into a flag and notices accumulate until
// the pump drains them.
type teaReporter struct {
	mu      sync.Mutex
	dirty   bool
	notices []progress.Notice
	wake    chan struct{}
}

func newTeaReporter() *teaReporter {
	return &teaReporter{wake: make(chan struct{}, 1)}
}

func (r *teaReporter) State(model.UIState) {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
	r.signal()
}

func (r *teaReporter) Notify(n progress.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	r.signal()
}

func (r *teaReporter) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *teaReporter) drain() eventsMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := eventsMsg{StateChanged: r.dirty, Notices: r.notices}
	r.dirty = false
	r.notices = nil
	return msg
}
