package lifecycle

import (
	"jobfetch/internal/api"
	"jobfetch/internal/blobstore"
	"jobfetch/internal/progress"
)

// resolve fetches the artifact for a completed task, retrying after a fixed
// delay until the server returns it. There is no attempt limit; only reset,
// a newer submission, Close or max wait end the loop.
func (c *Controller) resolve(t *task) {
	log := c.logger.WithField("task_id", t.ID)
	for attempt := 1; ; attempt++ {
		if c.stalled(t) {
			return
		}

		blob, err := c.fetch(t)
		if err == nil {
			c.publishArtifact(t, blob)
			return
		}
		if t.sched.Cancelled() {
			return
		}
		if api.IsNotReady(err) {
			log.Debugf("artifact not ready (attempt %d)", attempt)
		} else {
			log.WithError(err).Debugf("artifact fetch failed (attempt %d)", attempt)
		}

		if !t.sched.Wait(c.retryDelay) {
			return
		}
	}
}

func (c *Controller) fetch(t *task) (*blobstore.Blob, error) {
	dl, err := c.remote.FetchArtifact(t.sched.Context(), t.ID)
	if err != nil {
		return nil, err
	}
	defer dl.Body.Close()
	return c.blobs.Put(dl.Name, dl.Body)
}

// publishArtifact makes blob the current artifact, or releases it if t was
// superseded while the fetch was in flight.
func (c *Controller) publishArtifact(t *task, blob *blobstore.Blob) {
	stale := false
	c.mutate(func(e *effect) {
		if c.current != t {
			stale = true
			return
		}
		c.releaseArtifactLocked()
		c.artifact = blob
		t.stage = progress.StageReady
		e.publish = true
		e.notices = append(e.notices, c.newNotice(progress.LevelSuccess, t.ID, "Analysis complete!"))
	})
	if stale {
		c.logger.WithField("task_id", t.ID).Debugf("discarding artifact for superseded task")
		_ = blob.Release()
		return
	}
	c.logger.WithField("task_id", t.ID).WithField("name", blob.Name()).Infof("artifact ready")
}
