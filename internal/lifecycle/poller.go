package lifecycle

import (
	"errors"
	"fmt"
	"math"

	"jobfetch/internal/api"
	"jobfetch/internal/progress"
)

// track runs a task from its first poll to a published artifact, stopping
// early if the task is superseded, reset or stalled.
func (c *Controller) track(t *task) {
	if c.poll(t) {
		c.resolve(t)
	}
}

// poll queries progress at a fixed interval until the server reports exactly
// 100. Failed queries are logged and retried on the next tick. It returns
// false when the task stopped being current.
func (c *Controller) poll(t *task) bool {
	log := c.logger.WithField("task_id", t.ID)
	for {
		if !t.sched.Wait(c.pollInterval) {
			return false
		}
		if c.stalled(t) {
			return false
		}

		v, err := c.remote.Progress(t.sched.Context(), t.ID)
		var pv *api.ProgressValueError
		if errors.As(err, &pv) {
			if !c.rejectProgress(t, pv.Raw) {
				return false
			}
			continue
		}
		if err != nil {
			if t.sched.Cancelled() {
				return false
			}
			log.WithError(err).Debugf("progress query failed; retrying")
			continue
		}

		done, live := c.applyProgress(t, v)
		if !live {
			return false
		}
		if done {
			log.Infof("server reports completion")
			return true
		}
	}
}

// applyProgress records a reported value if t is still current. Values
// outside 0..100 or with a fraction are not applied; a value lower than one
// already seen is held at the previous maximum.
func (c *Controller) applyProgress(t *task, v float64) (done, live bool) {
	log := c.logger.WithField("task_id", t.ID)
	c.mutate(func(e *effect) {
		if c.current != t {
			return
		}
		live = true

		p, ok := asProgress(v)
		if !ok {
			c.invalidProgressLocked(t, e, fmt.Sprint(v))
			return
		}
		if p < c.progress {
			log.Warnf("progress went backwards (%d -> %d); holding %d", c.progress, p, c.progress)
			p = c.progress
		}

		c.progress = p
		e.publish = true
		if p == 100 {
			t.stage = progress.StageCompleted
			done = true
		}
	})
	return done, live
}

// rejectProgress handles a progress value that could not be decoded as a
// number. It reports whether t is still current.
func (c *Controller) rejectProgress(t *task, raw string) (live bool) {
	c.mutate(func(e *effect) {
		if c.current != t {
			return
		}
		live = true
		c.invalidProgressLocked(t, e, raw)
	})
	return live
}

// invalidProgressLocked logs every invalid value but tells the user once per task.
func (c *Controller) invalidProgressLocked(t *task, e *effect, shown string) {
	c.logger.WithField("task_id", t.ID).Warnf("ignoring invalid progress value %s", shown)
	if t.warnedInvalid {
		return
	}
	t.warnedInvalid = true
	e.notices = append(e.notices, c.newNotice(progress.LevelError, t.ID,
		fmt.Sprintf("Server reported invalid progress (%s)", shown)))
}

// stalled gives up on t once max wait has elapsed on the clock since submission.
func (c *Controller) stalled(t *task) bool {
	if c.maxWait <= 0 || c.clock.Now().Sub(t.CreatedAt) < c.maxWait {
		return false
	}
	c.mutate(func(e *effect) {
		if c.current != t {
			return
		}
		t.stage = progress.StageStalled
		t.sched.Cancel()
		e.notices = append(e.notices, c.newNotice(progress.LevelError, t.ID,
			fmt.Sprintf("Task stalled: no result after %s", c.maxWait)))
	})
	c.logger.WithField("task_id", t.ID).Warnf("giving up after %s", c.maxWait)
	return true
}

func asProgress(v float64) (int, bool) {
	if math.IsNaN(v) || v < 0 || v > 100 || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}
