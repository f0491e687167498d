package lifecycle

import (
	"time"

	"jobfetch/internal/logster"
	"jobfetch/internal/progress"
	"jobfetch/internal/schedule"
)

const (
	DefaultPollInterval   = time.Second
	DefaultRetryDelay     = time.Second
	DefaultCleanupTimeout = 10 * time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the fixed delay between progress queries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRetryDelay sets the fixed delay between artifact readiness checks.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithMaxWait gives up on a task that has not produced an artifact after d.
// Zero, the default, retries forever.
func WithMaxWait(d time.Duration) Option {
	return func(c *Controller) {
		c.maxWait = d
	}
}

// WithCleanupTimeout bounds each advisory cleanup request.
func WithCleanupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cleanupTimeout = d
		}
	}
}

// WithClock injects the source of delays and timestamps (useful for testing).
// Max wait is measured on this clock.
func WithClock(clk schedule.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logster.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithReporter subscribes r before the controller does anything.
func WithReporter(r progress.Reporter) Option {
	return func(c *Controller) {
		c.reporters = append(c.reporters, r)
	}
}
