package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultWorkers bounds concurrent job runs when none is configured.
const defaultWorkers = 4

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration

	// RunAtStart runs the job once as soon as the scheduler starts,
	// before the first interval elapses.
	RunAtStart bool

	Run func(ctx context.Context) error
}

type scheduledJob struct {
	Job
	running atomic.Bool
	runs    atomic.Uint64
	fails   atomic.Uint64
}

// JobStats counts the runs of one job.
type JobStats struct {
	Name     string `json:"name"`
	Runs     uint64 `json:"runs"`
	Failures uint64 `json:"failures"`
}

// Scheduler runs jobs on fixed intervals.
//
// Each job has its own ticker. Runs execute on a pool of at most workers
// goroutines; a tick that arrives while the same job is still running is
// skipped. Errors are logged and the job stays scheduled.
type Scheduler struct {
	jobs    []*scheduledJob
	workers int
	logger  Logger
}

// NewScheduler creates a Scheduler running at most workers jobs at once.
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scheduler{
		workers: workers,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Add registers a job. Jobs with a non-positive interval or nil Run are
// ignored. Add must not be called after Run.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 || job.Run == nil {
		s.logger.Warn("job not scheduled", "job", job.Name, "interval", job.Interval)
		return
	}
	s.jobs = append(s.jobs, &scheduledJob{Job: job})
}

// Stats returns per-job run counters in registration order.
func (s *Scheduler) Stats() []JobStats {
	out := make([]JobStats, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = JobStats{Name: j.Name, Runs: j.runs.Load(), Failures: j.fails.Load()}
	}
	return out
}

// Run blocks until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	var pool errgroup.Group
	pool.SetLimit(s.workers)

	tickers, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		tickers.Go(func() error {
			s.loop(ctx, &pool, j)
			return nil
		})
	}

	s.logger.Info("scheduler started", "jobs", len(s.jobs), "workers", s.workers)
	err := tickers.Wait()
	if perr := pool.Wait(); err == nil {
		err = perr
	}
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, pool *errgroup.Group, j *scheduledJob) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	if j.RunAtStart {
		s.submit(ctx, pool, j)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.submit(ctx, pool, j)
		}
	}
}

// submit starts one run of j unless the previous run is still going.
// It blocks while the pool is full.
func (s *Scheduler) submit(ctx context.Context, pool *errgroup.Group, j *scheduledJob) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Debug("job still running, tick skipped", "job", j.Name)
		return
	}
	pool.Go(func() error {
		defer j.running.Store(false)
		j.runs.Add(1)
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.fails.Add(1)
			s.logger.Error("scheduled job failed", "job", j.Name, "error", err)
		}
		return nil
	})
}
