package ui

import "jobfetch/internal/progress"

// eventsMsg carries everything the controller reported since the last one.
type eventsMsg struct {
	StateChanged bool
	Notices      []progress.Notice
}

type submittedMsg struct {
	TaskID string
	Err    error
}

type savedMsg struct {
	Path string
	Err  error
}

type toastExpiredMsg struct {
	seq int
}
