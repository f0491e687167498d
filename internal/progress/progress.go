package progress

import (
	"time"

	"jobfetch/internal/model"
)

// Stage identifies where a task is in its lifecycle.
type Stage string

const (
	StageIdle      Stage = "idle"
	StagePolling   Stage = "polling"
	StageCompleted Stage = "completed" // server reported 100, artifact not fetched yet
	StageReady     Stage = "ready"     // artifact published
	StageStopped   Stage = "stopped"
	StageStalled   Stage = "stalled"
)

// Level categorises a user-facing notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a toast-style message for the presentation layer.
type Notice struct {
	TaskID  string
	Level   Level
	Message string
	At      time.Time
}

// Reporter is implemented by UI or any observer interested in lifecycle events.
// Calls arrive in the order the underlying changes happened. Implementations
// must not call back into controller actions from inside these methods.
type Reporter interface {
	State(s model.UIState)
	Notify(n Notice)
}

// Funcs adapts plain functions to Reporter. Nil fields are ignored.
type Funcs struct {
	OnState  func(model.UIState)
	OnNotice func(Notice)
}

func (f Funcs) State(s model.UIState) {
	if f.OnState != nil {
		f.OnState(s)
	}
}

func (f Funcs) Notify(n Notice) {
	if f.OnNotice != nil {
		f.OnNotice(n)
	}
}
