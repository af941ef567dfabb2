// Package orchestrator walks an automation's step list, threading outputs from step to
// step and aggregating the run into an execution result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/coerce"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrStepTimeout is recorded when a step exceeds its wall-clock bound.
	ErrStepTimeout = errors.New("step timed out")

	// ErrStepPanicked is recorded when a step panics.
	ErrStepPanicked = errors.New("step panicked")
)

// DefaultStepTimeout bounds each step unless configured otherwise.
const DefaultStepTimeout = 30 * time.Second

// StepResolver resolves the implementation of a configured step.
type StepResolver interface {
	Executor(step *models.Step) (protocol.Executor, error)
}

type Orchestrator struct {
	logger      *slog.Logger
	resolver    StepResolver
	stepTimeout time.Duration
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
}

type Option func(*Orchestrator)

// WithStepTimeout sets the per-step timeout. Zero or negative disables it.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stepTimeout = d
	}
}

// WithPublisher publishes run completion events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func New(resolver StepResolver, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:      logger.With("module", "orchestrator"),
		resolver:    resolver,
		stepTimeout: DefaultStepTimeout,
		tracer:      noop.NewTracerProvider().Tracer("orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run executes the steps of automation in definition order. Step failures never return
// as errors: they end the run and are recorded in the result's Error field. Step
// outputs are included in the result only when execCtx.GetResponses is set.
func (o *Orchestrator) Run(ctx context.Context, automation *models.Automation, execCtx *models.ExecutionContext) *models.ExecutionResult {
	logger := o.logger.With("automation_id", automation.ID, "execution_id", execCtx.ID)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "automation.run",
		attribute.String(otelhelper.AutomationIDKey, automation.ID),
		attribute.String(otelhelper.AppIDKey, execCtx.AppID),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID),
	)
	defer span.End()

	result := &models.ExecutionResult{
		ExecutionID:  execCtx.ID,
		AutomationID: automation.ID,
		Status:       models.RunStatusRunning,
		Trigger:      execCtx.Event,
		StartedAt:    time.Now().UTC(),
	}

	if execCtx.Steps == nil {
		execCtx.Steps = make([]map[string]any, 0, len(automation.Definition.Steps))
	}

	for i, step := range automation.Definition.Steps {
		executor, outputs, err := o.runStep(ctx, i, step, execCtx)
		if err != nil {
			o.fail(ctx, result, execCtx, i, step, err)
			logger.Error("Automation step failed", "step_index", i, "step_id", stepID(step), "error", err)
			otelhelper.SetError(span, err, attribute.Int(otelhelper.StepIndexKey, i))

			return result
		}

		execCtx.Steps = append(execCtx.Steps, outputs)

		if execCtx.GetResponses {
			result.Steps = append(result.Steps, models.StepResult{
				Index:   i,
				ID:      step.ID,
				StepID:  step.StepID,
				Outputs: outputs,
			})
		}

		if executor.Definition().Type == models.StepTypeLogic && outputs[protocol.LogicOutputKey] == false {
			logger.Debug("Logic step halted automation", "step_index", i, "step_id", step.StepID)

			result.Stopped = true

			break
		}
	}

	result.Status = models.RunStatusCompleted
	result.FinishedAt = time.Now().UTC()

	o.publish(ctx, automation.ID, events.AutomationRunCompleted{
		BaseEvent:     events.NewBaseEvent(events.AutomationRunCompletedEvent, automation.ID, execCtx.AppID),
		ExecutionID:   execCtx.ID,
		StepsExecuted: len(execCtx.Steps),
		Stopped:       result.Stopped,
		Duration:      result.FinishedAt.Sub(result.StartedAt),
	})

	return result
}

func (o *Orchestrator) runStep(
	ctx context.Context,
	index int,
	step *models.Step,
	execCtx *models.ExecutionContext,
) (protocol.Executor, map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "automation.step",
		attribute.String(otelhelper.StepIDKey, stepID(step)),
		attribute.Int(otelhelper.StepIndexKey, index),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID),
	)
	defer span.End()

	executor, err := o.resolver.Executor(step)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, err
	}

	inputs, err := template.RenderInputs(step.Inputs, execCtx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("failed to bind inputs: %w", err)
	}

	inputs = coerce.CleanInputValues(inputs, executor.Definition().Schema.Inputs)
	if inputs == nil {
		inputs = map[string]any{}
	}

	outputs, err := o.execute(ctx, executor, protocol.StepInput{
		Inputs:    inputs,
		AppID:     execCtx.AppID,
		Index:     index,
		Execution: execCtx,
		Logger:    o.logger.With("execution_id", execCtx.ID, "step_index", index, "step_id", step.StepID),
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, err
	}

	if outputs == nil {
		outputs = map[string]any{}
	}

	return executor, outputs, nil
}

type outcome struct {
	outputs map[string]any
	err     error
}

// execute runs one step in its own goroutine bounded by the step timeout. A panic
// becomes ErrStepPanicked; a step that ignores its context is abandoned at the deadline.
func (o *Orchestrator) execute(ctx context.Context, executor protocol.Executor, input protocol.StepInput) (map[string]any, error) {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.stepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
	}
	defer cancel()

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrStepPanicked, r)}
			}
		}()

		outputs, err := executor.Execute(stepCtx, input)
		done <- outcome{outputs: outputs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && stepCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrStepTimeout, o.stepTimeout)
		}

		return res.outputs, res.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w after %s", ErrStepTimeout, o.stepTimeout)
	}
}

func (o *Orchestrator) fail(
	ctx context.Context,
	result *models.ExecutionResult,
	execCtx *models.ExecutionContext,
	index int,
	step *models.Step,
	err error,
) {
	result.Status = models.RunStatusFailed
	result.Error = err.Error()
	result.FailedStep = &index
	result.FinishedAt = time.Now().UTC()

	o.publish(ctx, result.AutomationID, events.AutomationRunFailed{
		BaseEvent:   events.NewBaseEvent(events.AutomationRunFailedEvent, result.AutomationID, execCtx.AppID),
		ExecutionID: execCtx.ID,
		FailedStep:  index,
		StepID:      stepID(step),
		Error:       result.Error,
		Duration:    result.FinishedAt.Sub(result.StartedAt),
	})
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.Error("Failed to publish automation event", "event_type", event.GetType(), "error", err)
	}
}

func stepID(step *models.Step) string {
	if step == nil {
		return ""
	}

	return step.StepID
}
