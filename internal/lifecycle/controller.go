// Package lifecycle drives one remote job at a time: submit, poll progress,
// resolve the artifact, and signal cleanup once the user has it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobfetch/internal/api"
	"jobfetch/internal/blobstore"
	"jobfetch/internal/logster"
	"jobfetch/internal/model"
	"jobfetch/internal/progress"
	"jobfetch/internal/schedule"
	"jobfetch/internal/util"
)

var (
	// ErrSuperseded is returned by Submit when a reset or a newer submission
	// happened while the request was in flight.
	ErrSuperseded = errors.New("submission superseded")
	// ErrClosed is returned by actions on a closed controller.
	ErrClosed = errors.New("controller closed")
	// ErrNoArtifact is returned by Download when nothing is ready.
	ErrNoArtifact = errors.New("no artifact available")
)

// Remote is the subset of the job service the controller drives.
type Remote interface {
	Submit(ctx context.Context, url string) (string, error)
	Progress(ctx context.Context, id string) (float64, error)
	FetchArtifact(ctx context.Context, id string) (*api.Download, error)
	Cleanup(ctx context.Context, id string) error
}

// task is the controller's record of one submitted job. Continuations hold
// a pointer to their task and act only while it is still c.current.
type task struct {
	model.Task
	sched         *schedule.Schedule
	stage         progress.Stage
	warnedInvalid bool
}

// Controller owns the task, its progress and its artifact. UIState is derived
// from these on every change and pushed to subscribed reporters.
type Controller struct {
	remote Remote
	blobs  *blobstore.Store
	clock  schedule.Clock
	logger logster.Logger

	pollInterval   time.Duration
	retryDelay     time.Duration
	maxWait        time.Duration
	cleanupTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup // poll/resolve goroutines
	bg      sync.WaitGroup // cleanup requests

	mu       sync.Mutex
	url      string
	progress int
	current  *task
	artifact *blobstore.Blob
	epoch    uint64
	closed   bool

	// pubMu is taken before mu is released so reporters observe changes in order.
	pubMu     sync.Mutex
	reporters []progress.Reporter
}

// New builds an idle controller. blobs receives fetched artifacts; the caller
// keeps ownership of the store and closes it after Close.
func New(remote Remote, blobs *blobstore.Store, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		remote:         remote,
		blobs:          blobs,
		clock:          schedule.RealClock{},
		logger:         logster.Nop(),
		pollInterval:   DefaultPollInterval,
		retryDelay:     DefaultRetryDelay,
		cleanupTimeout: DefaultCleanupTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Subscribe registers r and immediately sends it the current state.
func (c *Controller) Subscribe(r progress.Reporter) {
	c.mu.Lock()
	s := c.snapshotLocked()
	c.pubMu.Lock()
	c.mu.Unlock()
	defer c.pubMu.Unlock()
	c.reporters = append(c.reporters, r)
	r.State(s)
}

// Snapshot returns the current UI projection.
func (c *Controller) Snapshot() model.UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Current returns the active task, or a zero Task when idle.
func (c *Controller) Current() model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.Task{}
	}
	return c.current.Task
}

// Stage reports where the active task is in its lifecycle.
func (c *Controller) Stage() progress.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return progress.StageIdle
	}
	return c.current.stage
}

// SetURL updates the URL field without submitting.
func (c *Controller) SetURL(raw string) {
	c.mutate(func(e *effect) {
		if c.url == raw {
			return
		}
		c.url = raw
		e.publish = true
	})
}

// Submit validates raw, abandons whatever task was running, and asks the
// server for a new job. On success polling starts in the background.
func (c *Controller) Submit(ctx context.Context, raw string) (string, error) {
	if err := util.ValidateInput(raw); err != nil {
		c.notify(progress.LevelError, "", validationMessage(err))
		return "", err
	}

	var epoch uint64
	closed := false
	c.mutate(func(e *effect) {
		if c.closed {
			closed = true
			return
		}
		c.abandonLocked()
		c.url = raw
		c.epoch++
		epoch = c.epoch
		e.publish = true
	})
	if closed {
		return "", ErrClosed
	}

	id, err := c.remote.Submit(ctx, raw)
	if err != nil {
		c.logger.WithError(err).WithField("url", raw).Warnf("submission failed")
		c.notify(progress.LevelError, "", "Analysis failed: "+failureDetail(err))
		return "", err
	}

	var t *task
	c.mutate(func(e *effect) {
		if c.closed {
			closed = true
			return
		}
		if c.epoch != epoch {
			// The server already created the job; nobody will collect it.
			c.bg.Add(1)
			return
		}
		t = &task{
			Task:  model.Task{ID: id, SourceURL: raw, CreatedAt: c.clock.Now()},
			sched: schedule.New(c.ctx, id, c.clock),
			stage: progress.StagePolling,
		}
		c.current = t
		c.progress = 0
		c.workers.Add(1)
		e.publish = true
		e.notices = append(e.notices, c.newNotice(progress.LevelSuccess, id, "Analysis started!"))
	})
	if closed {
		return id, ErrClosed
	}
	if t == nil {
		c.logger.WithField("task_id", id).Infof("submission superseded before it was acknowledged")
		go c.cleanup(id)
		return id, ErrSuperseded
	}

	c.logger.WithField("task_id", id).WithField("url", raw).Infof("task submitted")
	t.sched.Go(func(context.Context) {
		defer c.workers.Done()
		c.track(t)
	})
	return id, nil
}

// Reset clears the URL, progress, artifact and task. Safe when idle.
func (c *Controller) Reset() {
	c.mutate(func(e *effect) {
		c.abandonLocked()
		c.url = ""
		c.epoch++
		e.publish = true
		e.notices = append(e.notices, c.newNotice(progress.LevelInfo, "", "Input reset successfully!"))
	})
}

// AcknowledgeDownload tells the server the current task's files may be
// removed. It does not wait for the request and does not clear local state;
// every call sends one cleanup request.
func (c *Controller) AcknowledgeDownload() {
	var id string
	c.mutate(func(e *effect) {
		if c.closed {
			return
		}
		if c.current == nil {
			e.notices = append(e.notices, c.newNotice(progress.LevelInfo, "", "No task to clean up."))
			return
		}
		id = c.current.ID
		c.bg.Add(1)
		e.notices = append(e.notices, c.newNotice(progress.LevelInfo, id, "Files cleaned up successfully!"))
	})
	if id != "" {
		go c.cleanup(id)
	}
}

// Save exports the artifact into dir without telling the server.
func (c *Controller) Save(dir string) (string, error) {
	c.mu.Lock()
	blob := c.artifact
	c.mu.Unlock()
	if blob == nil {
		return "", ErrNoArtifact
	}

	path, err := blob.Export(dir)
	if errors.Is(err, blobstore.ErrReleased) {
		return "", ErrNoArtifact
	}
	if err != nil {
		c.notify(progress.LevelError, "", "Saving failed: "+err.Error())
		return "", err
	}
	c.logger.WithField("path", path).Infof("artifact saved")
	return path, nil
}

// Download saves the artifact into dir and acknowledges it.
func (c *Controller) Download(dir string) (string, error) {
	path, err := c.Save(dir)
	if err != nil {
		return "", err
	}
	c.AcknowledgeDownload()
	return path, nil
}

// Close stops all background work, releases the artifact and waits for
// in-flight cleanup requests. The controller cannot be reused.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.abandonLocked()
	c.mu.Unlock()

	c.cancel()
	c.workers.Wait()
	c.bg.Wait()
}

func (c *Controller) cleanup(id string) {
	defer c.bg.Done()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cleanupTimeout)
	defer cancel()
	if err := c.remote.Cleanup(ctx, id); err != nil {
		c.logger.WithField("task_id", id).WithError(err).Debugf("cleanup request failed; ignored")
	}
}

// abandonLocked stops the current task's continuations and drops its artifact.
func (c *Controller) abandonLocked() {
	if c.current != nil {
		c.current.sched.Cancel()
		c.current.stage = progress.StageStopped
		c.current = nil
	}
	c.releaseArtifactLocked()
	c.progress = 0
}

func (c *Controller) releaseArtifactLocked() {
	if c.artifact == nil {
		return
	}
	if err := c.artifact.Release(); err != nil {
		c.logger.WithError(err).Warnf("releasing artifact %s", c.artifact.Path())
	}
	c.artifact = nil
}

func (c *Controller) snapshotLocked() model.UIState {
	s := model.UIState{URL: c.url, Progress: c.progress}
	if c.current != nil {
		s.TaskID = c.current.ID
	}
	if c.artifact != nil {
		s.Download = &model.Artifact{
			Handle: c.artifact.Path(),
			Name:   c.artifact.Name(),
			Size:   c.artifact.Size(),
		}
	}
	return s
}

type effect struct {
	publish bool
	notices []progress.Notice
}

// mutate runs fn under the state lock, then delivers the resulting state and
// notices before any later mutation can deliver its own.
func (c *Controller) mutate(fn func(e *effect)) {
	c.mu.Lock()
	var e effect
	fn(&e)
	var s model.UIState
	if e.publish {
		s = c.snapshotLocked()
	}
	c.pubMu.Lock()
	c.mu.Unlock()
	defer c.pubMu.Unlock()

	for _, r := range c.reporters {
		if e.publish {
			r.State(s)
		}
		for _, n := range e.notices {
			r.Notify(n)
		}
	}
}

func (c *Controller) notify(level progress.Level, taskID, msg string) {
	c.mutate(func(e *effect) {
		e.notices = append(e.notices, c.newNotice(level, taskID, msg))
	})
}

func (c *Controller) newNotice(level progress.Level, taskID, msg string) progress.Notice {
	return progress.Notice{TaskID: taskID, Level: level, Message: msg, At: c.clock.Now()}
}

func validationMessage(err error) string {
	if errors.Is(err, util.ErrEmptyInput) {
		return "URL cannot be empty!"
	}
	return "Invalid URL format!"
}

func failureDetail(err error) string {
	var se *api.SubmissionError
	if errors.As(err, &se) {
		return se.Error()
	}
	return fmt.Sprint(err)
}
