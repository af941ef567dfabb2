package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/trigger"
	"github.com/dukex/autoflow/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig configures the execution side of a binary.
type EngineConfig struct {
	Mode        orchestrator.Mode
	Workers     int
	StepTimeout time.Duration
	Tracer      trace.Tracer
	Publisher   eventbus.EventPublisher
	Meter       bookkeeping.UsageMeter
}

// Source fires triggers into the engine, for example the cron scheduler.
type Source interface {
	Stop(ctx context.Context) error
}

// Engine bundles the matcher with the pool it dispatches to, if any.
type Engine struct {
	Matcher *trigger.Matcher
	pool    *worker.Pool
	sources []Source
}

// NewEngine wires orchestrator, dispatcher and matcher for the configured mode.
func NewEngine(logger *slog.Logger, reg *registry.Registry, cfg EngineConfig) *Engine {
	opts := []orchestrator.Option{
		orchestrator.WithStepTimeout(cfg.StepTimeout),
		orchestrator.WithPublisher(cfg.Publisher),
	}

	if cfg.Tracer != nil {
		opts = append(opts, orchestrator.WithTracer(cfg.Tracer))
	}

	orch := orchestrator.New(reg, logger, opts...)

	engine := &Engine{}

	var dispatcher orchestrator.Dispatcher = orchestrator.NewInlineDispatcher(orch)

	if cfg.Mode == orchestrator.ModeProduction {
		engine.pool = worker.NewPool(cfg.Workers, logger)
		dispatcher = orchestrator.NewPoolDispatcher(orch, engine.pool)
	}

	engine.Matcher = trigger.NewMatcher(reg, dispatcher, cfg.Meter, logger, trigger.WithPublisher(cfg.Publisher))

	return engine
}

// AddSource registers a trigger source to be stopped before the pool drains.
func (e *Engine) AddSource(source Source) {
	e.sources = append(e.sources, source)
}

// Shutdown stops the registered sources, newest first, then drains the worker pool.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error

	for i := len(e.sources) - 1; i >= 0; i-- {
		errs = append(errs, e.sources[i].Stop(ctx))
	}

	if e.pool != nil {
		errs = append(errs, e.pool.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// NewUsageMeter returns a Redis backed meter, or a log-only meter when redisURL is empty.
func NewUsageMeter(ctx context.Context, logger *slog.Logger, redisURL string) (bookkeeping.UsageMeter, func() error, error) {
	if redisURL == "" {
		return bookkeeping.NewLogUsageMeter(logger), func() error { return nil }, nil
	}

	meter, err := bookkeeping.NewRedisUsageMeterFromURL(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return meter, meter.Close, nil
}
