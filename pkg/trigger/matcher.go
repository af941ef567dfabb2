// Package trigger matches external events to automations and starts their runs.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/dukex/autoflow/pkg/coerce"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/google/uuid"
)

// ErrMissingTrigger is returned for automations without a trigger step.
var ErrMissingTrigger = errors.New("automation has no trigger")

// Options tune a single external trigger.
type Options struct {
	// GetResponses makes ExternalTrigger wait for the run and return its result.
	GetResponses bool
	// Test marks a manual test run. Test runs are not metered.
	Test     bool
	Metadata map[string]any
}

// Matcher validates incoming events against an automation's trigger and dispatches runs.
type Matcher struct {
	triggers   bookkeeping.TriggerLookup
	dispatcher orchestrator.Dispatcher
	meter      bookkeeping.UsageMeter
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
}

type Option func(*Matcher)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Matcher) {
		m.publisher = publisher
	}
}

func NewMatcher(
	triggers bookkeeping.TriggerLookup,
	dispatcher orchestrator.Dispatcher,
	meter bookkeeping.UsageMeter,
	logger *slog.Logger,
	opts ...Option,
) *Matcher {
	m := &Matcher{
		triggers:   triggers,
		dispatcher: dispatcher,
		meter:      meter,
		logger:     logger.With("module", "trigger_matcher"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Mode reports how runs started by the matcher are dispatched.
func (m *Matcher) Mode() orchestrator.Mode {
	return m.dispatcher.Mode()
}

// ExternalTrigger starts a run of automation for event. The event is not modified.
// With opts.GetResponses the call waits and returns the run's result; otherwise it
// returns as soon as the run is dispatched, with a summary that carries no step outputs.
func (m *Matcher) ExternalTrigger(
	ctx context.Context,
	automation *models.Automation,
	event map[string]any,
	opts Options,
) (*models.ExecutionResult, error) {
	step := automation.Definition.Trigger
	if step == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingTrigger, automation.ID)
	}

	trigger, ok := m.triggers.Trigger(step.StepID)
	if !ok {
		return nil, fmt.Errorf("%w: trigger %q of automation %s", registry.ErrUnknownStep, step.StepID, automation.ID)
	}

	execCtx := &models.ExecutionContext{
		ID:           uuid.NewString(),
		AutomationID: automation.ID,
		AppID:        automation.AppID,
		Event:        coerceEvent(trigger, step, event),
		GetResponses: opts.GetResponses,
		Metadata:     opts.Metadata,
	}

	m.publish(ctx, automation, execCtx, step.StepID)

	handle, err := m.dispatcher.Dispatch(ctx, automation, execCtx)
	if err != nil {
		return nil, err
	}

	if m.dispatcher.Mode() == orchestrator.ModeProduction && !opts.Test {
		err := m.meter.Increment(ctx, automation.AppID, bookkeeping.CounterAutomationRuns, 1)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to increment automation usage",
				"app_id", automation.AppID, "automation_id", automation.ID, "error", err)
		}
	}

	if !opts.GetResponses {
		return dispatched(automation, execCtx, handle), nil
	}

	return handle.Wait(ctx)
}

// dispatched summarizes a run the caller does not wait for. It is pending unless the run
// already finished, as inline runs do.
func dispatched(automation *models.Automation, execCtx *models.ExecutionContext, handle *worker.Handle) *models.ExecutionResult {
	summary := &models.ExecutionResult{
		ExecutionID:  execCtx.ID,
		AutomationID: automation.ID,
		Status:       models.RunStatusPending,
	}

	select {
	case <-handle.Done():
		result, err := handle.Wait(context.Background())
		if err != nil {
			summary.Status = models.RunStatusFailed
			summary.Error = err.Error()

			return summary
		}

		if result != nil && result.Status.IsTerminal() {
			summary.Status = result.Status
			summary.Error = result.Error
			summary.StartedAt = result.StartedAt
			summary.FinishedAt = result.FinishedAt
		}
	default:
	}

	return summary
}

// coerceEvent copies event and converts its "fields" to the types the trigger declares.
func coerceEvent(trigger protocol.Step, step *models.Step, event map[string]any) map[string]any {
	payload := models.CloneMap(event)
	if payload == nil {
		payload = make(map[string]any)
	}

	provider, ok := trigger.(protocol.EventSchemaProvider)
	if !ok {
		return payload
	}

	if fields, ok := payload["fields"].(map[string]any); ok {
		payload["fields"] = coerce.CleanInputValues(fields, provider.EventSchema(step.Inputs))
	}

	return payload
}

func (m *Matcher) publish(ctx context.Context, automation *models.Automation, execCtx *models.ExecutionContext, triggerID string) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, automation.ID, events.AutomationTriggered{
		BaseEvent:   events.NewBaseEvent(events.AutomationTriggeredEvent, automation.ID, automation.AppID),
		ExecutionID: execCtx.ID,
		TriggerID:   triggerID,
		Mode:        string(m.dispatcher.Mode()),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to publish trigger event", "automation_id", automation.ID, "error", err)
	}
}
