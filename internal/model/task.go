package model

import "time"

// Task is one submitted job. An empty ID means there is no active task.
type Task struct {
	ID        string
	SourceURL string
	CreatedAt time.Time
}

// Active reports whether the task carries a server-issued identifier.
func (t Task) Active() bool { return t.ID != "" }

// Artifact describes a fetched result held as a local blob.
// Handle addresses the blob on disk and is only valid until the blob is released.
type Artifact struct {
	Handle string
	Name   string
	Size   int64
}

// UIState is a read-only projection of the controller's task, progress and
// artifact. It is recomputed on every change and never mutated by consumers.
type UIState struct {
	URL      string
	Progress int // 0..100; 0 also means idle or just reset
	TaskID   string
	Download *Artifact
}

// HasDownload reports whether the download affordance should be offered.
func (s UIState) HasDownload() bool { return s.Download != nil }

// ShowProgress reports whether a progress bar is meaningful: a task is
// running and the server has reported something short of completion.
func (s UIState) ShowProgress() bool {
	return s.Progress > 0 && s.Progress < 100
}

// Idle reports whether no task is active.
func (s UIState) Idle() bool { return s.TaskID == "" }
