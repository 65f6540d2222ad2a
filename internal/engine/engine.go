// Package engine ties the arena, scheduler, scratch pool and pinner of one
// execution engine together.
//
// Everything that used to be process wide (the matrix multiply plugin, the
// seed counter, scratch memory) lives on a Context, so engines are created
// and shut down independently.
package engine

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/gemm"
	"github.com/born-ml/tensorexec/internal/metrics"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/pool"
	"github.com/born-ml/tensorexec/internal/rng"
)

// ErrClosed is returned by operations on an engine that was shut down.
var ErrClosed = errors.New("engine is shut down")

// Context is one engine instance.
type Context struct {
	ID      string
	Config  Config
	Arena   *arena.Arena
	Sched   *parallel.Scheduler
	Pool    *pool.Pool
	Pinner  *pin.Pinner
	Gemm    gemm.Plugin // nil selects the built-in kernel
	Seeds   rng.SeedSource
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	registry *prometheus.Registry
	closed   bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	plugin     gemm.Plugin
	hasPlugin  bool
	seeds      rng.SeedSource
}

// WithLogger sets the logger. The engine id is added to every record.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the engine metrics on r instead of a private
// registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithGemm overrides the configured matrix multiply plugin. nil selects the
// built-in kernel.
func WithGemm(p gemm.Plugin) Option {
	return func(o *options) { o.plugin, o.hasPlugin = p, true }
}

// WithSeedSource overrides the seed source of the random kernels.
func WithSeedSource(s rng.SeedSource) Option {
	return func(o *options) { o.seeds = s }
}

// New creates an engine.
func New(cfg Config, opts ...Option) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	logger := o.logger
	if logger == nil {
		level, _ := cfg.Level()
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	logger = logger.With("engine", id[:8])

	c := &Context{ID: id, Config: cfg, Logger: logger}

	reg := o.registerer
	if reg == nil {
		c.registry = prometheus.NewRegistry()
		reg = c.registry
	}
	c.Metrics = metrics.New(reg, id)

	c.Gemm, _ = gemm.ByName(cfg.BLAS)
	if o.hasPlugin {
		c.Gemm = o.plugin
	}
	c.Seeds = o.seeds
	if c.Seeds == nil {
		c.Seeds = rng.NewSeeds(cfg.Seed).Source()
	}

	c.Arena = arena.New(arena.Config{
		MaxBytes:    cfg.MaxBytes,
		MaxRecycled: cfg.MaxRecycled,
		Logger:      logger,
		Metrics:     c.Metrics,
	})
	c.Sched = parallel.NewScheduler(cfg.Parallel(), logger, c.Metrics)
	c.Pool = pool.New(c.Arena, pool.Config{
		MaxBytes:    cfg.PoolMaxBytes,
		MaxPerClass: cfg.PoolMaxPerClass,
		Logger:      logger,
		Metrics:     c.Metrics,
	})
	c.Pinner = pin.NewPinner(c.Arena, c.Sched, logger)

	plugin := "builtin"
	if c.Gemm != nil {
		plugin = c.Gemm.Name()
	}
	logger.Debug("engine started", "workers", c.Sched.Config().NumWorkers,
		"serial", cfg.Serial, "gemm", plugin, "max_bytes", cfg.MaxBytes)
	return c, nil
}

// Gatherer returns the private metrics registry, or nil when the metrics
// were registered on a caller supplied registerer.
func (c *Context) Gatherer() prometheus.Gatherer {
	if c.registry == nil {
		return nil
	}
	return c.registry
}

// Check returns ErrClosed after Shutdown.
func (c *Context) Check() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Shutdown waits for every scheduled task, frees the scratch pool and shuts
// the arena down. Buffers still owned by tensors are reported and freed; the
// result then wraps arena.ErrUnsafeDisposal. Calling Shutdown twice is a
// no-op.
func (c *Context) Shutdown(ctx context.Context) error {
	if c.closed {
		return nil
	}
	if err := c.Sched.WaitContext(ctx); err != nil {
		return errors.Wrap(err, "engine shutdown")
	}
	c.closed = true

	c.Pool.Clear()
	tasks, batches := c.Sched.Stats()
	stats := c.Arena.Stats()
	err := c.Arena.Shutdown(ctx)
	c.Logger.Debug("engine stopped", "tasks", tasks, "batches", batches,
		"allocations", stats.Allocations, "recycled", stats.Recycled)
	return err
}
