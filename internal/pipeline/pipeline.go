package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/pnhp/nha-sync/internal/observability"
)

// Job is one batch pass over the stores.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule controls how the runner repeats and retries jobs.
type Schedule struct {
	// Interval between passes. Zero runs a single pass.
	Interval time.Duration
	// Attempts per job within a pass. Values below one mean one.
	Attempts int
	// InitialBackoff is the wait before the first retry; it doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	Job         string     `json:"job"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
}

// Pipeline runs its jobs in order, one pass at a time.
type Pipeline struct {
	jobs     []Job
	schedule Schedule
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu     sync.Mutex
	status []JobStatus
	index  map[string]int
}

// New creates a Pipeline running jobs in the given order.
func New(jobs []Job, schedule Schedule, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if schedule.Attempts < 1 {
		schedule.Attempts = 1
	}
	p := &Pipeline{
		jobs:     jobs,
		schedule: schedule,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		index:    make(map[string]int, len(jobs)),
	}
	for _, job := range jobs {
		if _, ok := p.index[job.Name()]; !ok {
			p.index[job.Name()] = len(p.status)
			p.status = append(p.status, JobStatus{Job: job.Name()})
		}
	}
	return p
}

// Status returns the last outcome of every job, in run order.
func (p *Pipeline) Status() []JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]JobStatus, len(p.status))
	copy(out, p.status)
	return out
}

func (p *Pipeline) record(name string, attempts int, err error) {
	now := p.clock.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	st := &p.status[p.index[name]]
	st.LastRun = &now
	st.Attempts = attempts
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastSuccess = &now
}

// CheckReadiness returns nil once a pass has completed without job errors.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no successful pass yet")
	}
	return nil
}

// Run executes passes until the context is cancelled, or once when the
// schedule has no interval. A failed job does not stop the following jobs or
// later passes.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "jobs", len(p.jobs), "interval", p.schedule.Interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
		if p.schedule.Interval <= 0 {
			return err
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(p.schedule.Interval):
		}
	}
}

// RunOnce runs every job once and returns the joined job errors.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range p.jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.runJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	if len(errs) == 0 {
		p.ready.Store(true)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	backoff := p.schedule.InitialBackoff

	var (
		err      error
		attempts int
	)
	defer func() { p.record(name, attempts, err) }()

	for attempt := 1; attempt <= p.schedule.Attempts; attempt++ {
		attempts = attempt
		start := p.clock.Now()
		err = job.Run(ctx)
		p.metrics.JobDuration.WithLabelValues(name).Observe(p.clock.Since(start).Seconds())
		if err == nil {
			p.metrics.JobLastSuccess.WithLabelValues(name).Set(float64(p.clock.Now().Unix()))
			p.logger.Info("job finished", "job", name, "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		p.metrics.JobErrors.WithLabelValues(name).Inc()
		p.logger.Error("job failed", "job", name, "attempt", attempt, "error", err)
		if attempt == p.schedule.Attempts {
			break
		}
		if !retry.SleepWithContext(ctx, backoff) {
			return err
		}
		backoff = retry.NextBackoff(backoff, p.schedule.MaxBackoff)
	}
	return err
}
