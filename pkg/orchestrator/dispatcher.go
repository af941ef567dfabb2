package orchestrator

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/worker"
)

// Mode selects how runs are dispatched.
type Mode string

const (
	// ModeBuilder runs inline and synchronously in the calling goroutine.
	ModeBuilder Mode = "builder"
	// ModeProduction runs in the worker pool and returns immediately.
	ModeProduction Mode = "production"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeBuilder, ModeProduction:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown automation mode %q, expected %q or %q", raw, ModeBuilder, ModeProduction)
	}
}

// Dispatcher hands a run to an execution strategy and returns its completion handle.
type Dispatcher interface {
	Dispatch(ctx context.Context, automation *models.Automation, execCtx *models.ExecutionContext) (*worker.Handle, error)
	Mode() Mode
}

// InlineDispatcher runs the automation before returning.
type InlineDispatcher struct {
	orchestrator *Orchestrator
}

func NewInlineDispatcher(orchestrator *Orchestrator) *InlineDispatcher {
	return &InlineDispatcher{orchestrator: orchestrator}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, automation *models.Automation, execCtx *models.ExecutionContext) (*worker.Handle, error) {
	result := d.orchestrator.Run(ctx, automation, execCtx)

	return worker.CompletedHandle(execCtx.ID, result, nil), nil
}

func (d *InlineDispatcher) Mode() Mode {
	return ModeBuilder
}

// PoolDispatcher submits exactly one pool job per run, carrying the execution context
// and a snapshot of the step list.
type PoolDispatcher struct {
	orchestrator *Orchestrator
	pool         *worker.Pool
}

func NewPoolDispatcher(orchestrator *Orchestrator, pool *worker.Pool) *PoolDispatcher {
	return &PoolDispatcher{orchestrator: orchestrator, pool: pool}
}

func (d *PoolDispatcher) Dispatch(ctx context.Context, automation *models.Automation, execCtx *models.ExecutionContext) (*worker.Handle, error) {
	snapshot := automation.Clone()

	handle, err := d.pool.Submit(ctx, execCtx.ID, func(jobCtx context.Context) (*models.ExecutionResult, error) {
		return d.orchestrator.Run(jobCtx, snapshot, execCtx), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch automation %s: %w", automation.ID, err)
	}

	return handle, nil
}

func (d *PoolDispatcher) Mode() Mode {
	return ModeProduction
}
