package trigger_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/trigger"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// captureStep records the execution context handed to it.
type captureStep struct {
	id   string
	mu   sync.Mutex
	seen []*models.ExecutionContext
	err  error
}

func (s *captureStep) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{ID: s.id, Type: models.StepTypeAction, Name: s.id}
}

func (s *captureStep) Execute(_ context.Context, in protocol.StepInput) (map[string]any, error) {
	s.mu.Lock()
	s.seen = append(s.seen, in.Execution)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	return map[string]any{"success": true, "index": in.Index}, nil
}

func (s *captureStep) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.seen)
}

func newRegistry(steps ...protocol.Executor) *registry.Registry {
	r := registry.NewRegistry(slog.Default())
	r.RegisterDefaultSteps(nil)

	for _, step := range steps {
		r.RegisterAction(step)
	}

	return r
}

func appAutomation(fields map[string]any, steps ...string) *models.Automation {
	automation := &models.Automation{
		ID:    "au_1",
		AppID: "app_1",
		Definition: models.Definition{
			Trigger: &models.Step{
				StepID: "APP",
				Type:   models.StepTypeTrigger,
				Inputs: map[string]any{"fields": fields},
			},
		},
	}

	for _, id := range steps {
		automation.Definition.Steps = append(automation.Definition.Steps,
			&models.Step{StepID: id, Type: models.StepTypeAction, Inputs: map[string]any{}})
	}

	return automation
}

func TestExternalTrigger_BuilderRunsInline(t *testing.T) {
	step := &captureStep{id: "CAPTURE"}
	reg := newRegistry(step)

	meter := &mocks.MockUsageMeter{}
	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, meter, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil, "CAPTURE"),
		map[string]any{"fields": map[string]any{}}, trigger.Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Equal(t, "au_1", result.AutomationID)
	assert.Nil(t, result.Steps, "outputs are discarded for fire-and-forget runs")

	assert.Equal(t, 1, step.calls(), "inline dispatch completes before returning")
	assert.Equal(t, orchestrator.ModeBuilder, matcher.Mode())
	meter.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExternalTrigger_ProductionSubmitsOneJobAndMetersOnce(t *testing.T) {
	step := &captureStep{id: "CAPTURE"}
	reg := newRegistry(step)

	pool := worker.NewPool(2, slog.Default())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	meter := &mocks.MockUsageMeter{}
	meter.On("Increment", mock.Anything, "app_1", "automationRuns", int64(1)).Return(nil).Once()

	dispatcher := orchestrator.NewPoolDispatcher(orchestrator.New(reg, slog.Default()), pool)
	matcher := trigger.NewMatcher(reg, dispatcher, meter, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil, "CAPTURE"),
		map[string]any{}, trigger.Options{GetResponses: true})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.RunStatusCompleted, result.Status)

	metrics := pool.Metrics()
	assert.Equal(t, int64(1), metrics.Submitted)
	assert.Equal(t, int64(1), metrics.Completed)
	meter.AssertExpectations(t)
}

// gateStep blocks until released.
type gateStep struct {
	release chan struct{}
}

func (s *gateStep) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{ID: "GATE", Type: models.StepTypeAction, Name: "GATE"}
}

func (s *gateStep) Execute(ctx context.Context, _ protocol.StepInput) (map[string]any, error) {
	select {
	case <-s.release:
		return map[string]any{"success": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestExternalTrigger_ProductionReturnsPendingRun(t *testing.T) {
	gate := &gateStep{release: make(chan struct{})}
	reg := newRegistry(gate)

	pool := worker.NewPool(1, slog.Default())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	meter := &mocks.MockUsageMeter{}
	meter.On("Increment", mock.Anything, "app_1", "automationRuns", int64(1)).Return(nil).Once()

	dispatcher := orchestrator.NewPoolDispatcher(orchestrator.New(reg, slog.Default()), pool)
	matcher := trigger.NewMatcher(reg, dispatcher, meter, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil, "GATE"), nil, trigger.Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.RunStatusPending, result.Status)
	assert.NotEmpty(t, result.ExecutionID)
	assert.False(t, result.Status.IsTerminal())

	close(gate.release)

	assert.Eventually(t, func() bool {
		return pool.Metrics().Completed == 1
	}, time.Second, 10*time.Millisecond)
	meter.AssertExpectations(t)
}

func TestExternalTrigger_MeteringFailureDoesNotFailDispatch(t *testing.T) {
	step := &captureStep{id: "CAPTURE"}
	reg := newRegistry(step)

	pool := worker.NewPool(1, slog.Default())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	meter := &mocks.MockUsageMeter{}
	meter.On("Increment", mock.Anything, "app_1", "automationRuns", int64(1)).
		Return(errors.New("quota service down")).Once()

	dispatcher := orchestrator.NewPoolDispatcher(orchestrator.New(reg, slog.Default()), pool)
	matcher := trigger.NewMatcher(reg, dispatcher, meter, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil, "CAPTURE"),
		map[string]any{}, trigger.Options{GetResponses: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	meter.AssertExpectations(t)
}

func TestExternalTrigger_CoercesDeclaredFields(t *testing.T) {
	step := &captureStep{id: "CAPTURE"}
	reg := newRegistry(step)

	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, &mocks.MockUsageMeter{}, slog.Default())

	event := map[string]any{"fields": map[string]any{"a": "1", "b": "true", "c": "x"}}

	result, err := matcher.ExternalTrigger(context.Background(),
		appAutomation(map[string]any{"a": "number", "b": "boolean"}, "CAPTURE"),
		event, trigger.Options{GetResponses: true})
	require.NoError(t, err)

	require.Equal(t, 1, step.calls())

	fields := step.seen[0].Event["fields"].(map[string]any)
	assert.Equal(t, 1.0, fields["a"])
	assert.Equal(t, true, fields["b"])
	assert.Equal(t, "x", fields["c"])

	assert.Equal(t, "1", event["fields"].(map[string]any)["a"], "caller's event is not modified")
	assert.Equal(t, 1.0, result.Trigger["fields"].(map[string]any)["a"])
}

func TestExternalTrigger_FailureOmitsLaterSteps(t *testing.T) {
	good := &captureStep{id: "GOOD"}
	bad := &captureStep{id: "BAD", err: errors.New("step exploded")}
	after := &captureStep{id: "AFTER"}
	reg := newRegistry(good, bad, after)

	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, &mocks.MockUsageMeter{}, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil, "GOOD", "BAD", "AFTER"),
		map[string]any{}, trigger.Options{GetResponses: true})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "step exploded")
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "GOOD", result.Steps[0].StepID)
	assert.Zero(t, after.calls())
}

func TestExternalTrigger_UnknownTrigger(t *testing.T) {
	reg := newRegistry()
	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, &mocks.MockUsageMeter{}, slog.Default())

	automation := appAutomation(nil)
	automation.Definition.Trigger.StepID = "NOPE"

	_, err := matcher.ExternalTrigger(context.Background(), automation, nil, trigger.Options{})
	require.ErrorIs(t, err, registry.ErrUnknownStep)

	automation.Definition.Trigger = nil

	_, err = matcher.ExternalTrigger(context.Background(), automation, nil, trigger.Options{})
	require.ErrorIs(t, err, trigger.ErrMissingTrigger)
}

func TestExternalTrigger_PublishesTriggeredEvent(t *testing.T) {
	reg := newRegistry()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "au_1", mock.MatchedBy(func(e events.AutomationTriggered) bool {
		return e.TriggerID == "APP" && e.Mode == "builder" && e.ExecutionID != ""
	})).Return(nil).Once()

	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, &mocks.MockUsageMeter{}, slog.Default(), trigger.WithPublisher(bus))

	_, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil), nil, trigger.Options{})
	require.NoError(t, err)

	bus.AssertExpectations(t)
}

func TestExternalTrigger_TestRunsAreNotMetered(t *testing.T) {
	reg := newRegistry()

	pool := worker.NewPool(1, slog.Default())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	meter := &mocks.MockUsageMeter{}

	dispatcher := orchestrator.NewPoolDispatcher(orchestrator.New(reg, slog.Default()), pool)
	matcher := trigger.NewMatcher(reg, dispatcher, meter, slog.Default())

	result, err := matcher.ExternalTrigger(context.Background(), appAutomation(nil), nil,
		trigger.Options{GetResponses: true, Test: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	meter.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
