package parallel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/fence"
	"github.com/born-ml/tensorexec/internal/metrics"
)

// Job is one kernel launch over the flat index range [0, Count).
//
// Reads and Writes list the buffers the body touches. A buffer in both lists
// is treated as written. Body is called once per batch with a half-open
// range and must only touch the listed buffers (and memory private to the
// job).
type Job struct {
	Name      string
	Reads     []*arena.Buffer
	Writes    []*arena.Buffer
	After     *fence.Fence // Extra prerequisites, joined with the buffer fences
	Count     int
	BatchSize int
	Body      func(start, end int)
}

// Scheduler turns jobs into tasks. Schedule must be called from a single
// goroutine; the tasks themselves run concurrently on a bounded pool.
type Scheduler struct {
	cfg     Config
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *metrics.Metrics

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending *fence.Fence // Tasks not known to be finished
	tasks   atomic.Uint64
	batches atomic.Uint64
}

// NewScheduler creates a scheduler running at most cfg.NumWorkers batches at
// a time across all of its tasks.
func NewScheduler(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	cfg = cfg.normalized()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.NumWorkers)),
		logger:  logger,
		metrics: m,
	}
}

// Config returns the scheduler's effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Schedule launches job as a task and returns its fence.
//
// The task waits for the write fences of every buffer it reads, and for both
// fences of every buffer it writes. Once the task is scheduled, it joins the
// read fence of each buffer it reads and replaces both fences of each buffer
// it writes. Scheduling never blocks; a freed buffer is rejected with
// arena.ErrUseAfterDispose before anything runs.
func (s *Scheduler) Schedule(job Job) (*fence.Fence, error) {
	for _, b := range job.Reads {
		if err := b.Check(); err != nil {
			return nil, errors.Wrapf(err, "%s: read operand", job.Name)
		}
	}
	for _, b := range job.Writes {
		if err := b.Check(); err != nil {
			return nil, errors.Wrapf(err, "%s: write operand", job.Name)
		}
	}

	deps := make([]*fence.Fence, 0, len(job.Reads)+len(job.Writes)+1)
	deps = append(deps, job.After)
	for _, b := range job.Reads {
		deps = append(deps, b.Fences().ReadPrerequisite())
	}
	for _, b := range job.Writes {
		deps = append(deps, b.Fences().WritePrerequisite())
	}
	prereq := fence.Join(deps...)

	id := s.nextID.Add(1)
	task, done := fence.New(id)

	for _, b := range job.Reads {
		b.Fences().AddReader(task)
	}
	for _, b := range job.Writes {
		b.Fences().SetWriter(task)
	}

	s.mu.Lock()
	s.pending = fence.Join(s.pending, task)
	s.mu.Unlock()

	s.tasks.Add(1)
	s.metrics.TaskScheduled(job.Name)
	s.logger.Debug("schedule", "task", id, "kernel", job.Name, "count", job.Count,
		"batch", job.BatchSize, "after", prereq)

	go func() {
		defer done()
		prereq.Wait()
		n := ForBatches(job.Count, job.BatchSize, job.Body, s.cfg, s.sem)
		s.batches.Add(uint64(n))
		s.metrics.TaskFinished(n)
	}()
	return task, nil
}

// Pending returns a fence covering every task scheduled so far.
func (s *Scheduler) Pending() *fence.Fence {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = fence.Join(s.pending)
	return s.pending
}

// Wait blocks until every task scheduled so far has finished.
func (s *Scheduler) Wait() {
	s.Pending().Wait()
}

// WaitContext is Wait bounded by ctx.
func (s *Scheduler) WaitContext(ctx context.Context) error {
	return s.Pending().WaitContext(ctx)
}

// Stats returns the number of tasks scheduled and batches executed.
func (s *Scheduler) Stats() (tasks, batches uint64) {
	return s.tasks.Load(), s.batches.Load()
}
