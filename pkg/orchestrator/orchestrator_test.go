package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcStep struct {
	id      string
	typ     models.StepType
	inputs  *models.JSONSchema
	calls   atomic.Int64
	execute func(ctx context.Context, in protocol.StepInput) (map[string]any, error)
}

func (s *funcStep) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:     s.id,
		Type:   s.typ,
		Schema: protocol.StepSchema{Inputs: s.inputs},
	}
}

func (s *funcStep) Execute(ctx context.Context, in protocol.StepInput) (map[string]any, error) {
	s.calls.Add(1)

	return s.execute(ctx, in)
}

type stepMap map[string]protocol.Executor

func (m stepMap) Executor(step *models.Step) (protocol.Executor, error) {
	if step == nil {
		return nil, registry.ErrUnknownStep
	}

	executor, ok := m[step.StepID]
	if !ok {
		return nil, registry.ErrUnknownStep
	}

	return executor, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoStep(id string) *funcStep {
	return &funcStep{
		id:  id,
		typ: models.StepTypeAction,
		inputs: &models.JSONSchema{Properties: map[string]*models.Property{
			"value": {Type: models.PropertyTypeNumber},
		}},
		execute: func(_ context.Context, in protocol.StepInput) (map[string]any, error) {
			return map[string]any{"value": in.Inputs["value"], "success": true}, nil
		},
	}
}

func automationWith(steps ...*models.Step) *models.Automation {
	return &models.Automation{
		ID:    "au_1",
		AppID: "app_1",
		Definition: models.Definition{
			Trigger: &models.Step{StepID: "APP", Type: models.StepTypeTrigger},
			Steps:   steps,
		},
	}
}

func newExecCtx(getResponses bool) *models.ExecutionContext {
	return &models.ExecutionContext{
		ID:           "exec-1",
		AutomationID: "au_1",
		AppID:        "app_1",
		Event:        map[string]any{"fields": map[string]any{"count": "7"}},
		GetResponses: getResponses,
	}
}

func TestRun_ThreadsOutputsAndCoercesInputs(t *testing.T) {
	echo := echoStep("ECHO")
	orch := New(stepMap{"ECHO": echo}, discardLogger())

	automation := automationWith(
		&models.Step{ID: "s1", StepID: "ECHO", Inputs: map[string]any{"value": "{{ .trigger.fields.count }}"}},
		&models.Step{ID: "s2", StepID: "ECHO", Inputs: map[string]any{"value": `{{ index .steps 0 "value" }}`}},
	)

	result := orch.Run(context.Background(), automation, newExecCtx(true))

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Error)
	require.Len(t, result.Steps, 2)
	assert.InDelta(t, 7.0, result.Steps[0].Outputs["value"], 0)
	assert.InDelta(t, 7.0, result.Steps[1].Outputs["value"], 0)
	assert.Equal(t, "s2", result.Steps[1].ID)
	assert.False(t, result.FinishedAt.IsZero())
}

func TestRun_StepErrorHaltsRemainingSteps(t *testing.T) {
	failing := &funcStep{
		id:  "FAIL",
		typ: models.StepTypeAction,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			return nil, errors.New("remote service unavailable")
		},
	}
	after := echoStep("AFTER")
	publisher := &recordingPublisher{}

	orch := New(stepMap{"ECHO": echoStep("ECHO"), "FAIL": failing, "AFTER": after}, discardLogger(), WithPublisher(publisher))

	result := orch.Run(context.Background(), automationWith(
		&models.Step{StepID: "ECHO"},
		&models.Step{StepID: "FAIL"},
		&models.Step{StepID: "AFTER"},
	), newExecCtx(true))

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.True(t, result.Failed())
	assert.Equal(t, "remote service unavailable", result.Error)
	require.NotNil(t, result.FailedStep)
	assert.Equal(t, 1, *result.FailedStep)
	assert.Len(t, result.Steps, 1)
	assert.Zero(t, after.calls.Load())
	assert.Equal(t, []events.EventType{events.AutomationRunFailedEvent}, publisher.types())
}

func TestRun_LogicStepStopsWithoutError(t *testing.T) {
	gate := &funcStep{
		id:  "GATE",
		typ: models.StepTypeLogic,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			return map[string]any{protocol.LogicOutputKey: false}, nil
		},
	}
	after := echoStep("AFTER")
	publisher := &recordingPublisher{}

	orch := New(stepMap{"GATE": gate, "AFTER": after}, discardLogger(), WithPublisher(publisher))

	result := orch.Run(context.Background(), automationWith(
		&models.Step{StepID: "GATE"},
		&models.Step{StepID: "AFTER"},
	), newExecCtx(true))

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.True(t, result.Stopped)
	assert.Empty(t, result.Error)
	assert.Len(t, result.Steps, 1)
	assert.Zero(t, after.calls.Load())
	assert.Equal(t, []events.EventType{events.AutomationRunCompletedEvent}, publisher.types())
}

func TestRun_ActionSuccessFalseDoesNotStop(t *testing.T) {
	action := &funcStep{
		id:  "SOFT_FAIL",
		typ: models.StepTypeAction,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			return map[string]any{"success": false}, nil
		},
	}
	after := echoStep("AFTER")

	orch := New(stepMap{"SOFT_FAIL": action, "AFTER": after}, discardLogger())

	result := orch.Run(context.Background(), automationWith(
		&models.Step{StepID: "SOFT_FAIL"},
		&models.Step{StepID: "AFTER"},
	), newExecCtx(false))

	assert.False(t, result.Stopped)
	assert.Equal(t, int64(1), after.calls.Load())
}

func TestRun_StepTimeout(t *testing.T) {
	slow := &funcStep{
		id:  "SLOW",
		typ: models.StepTypeAction,
		execute: func(ctx context.Context, _ protocol.StepInput) (map[string]any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	}
	after := echoStep("AFTER")

	orch := New(stepMap{"SLOW": slow, "AFTER": after}, discardLogger(), WithStepTimeout(20*time.Millisecond))

	result := orch.Run(context.Background(), automationWith(
		&models.Step{StepID: "SLOW"},
		&models.Step{StepID: "AFTER"},
	), newExecCtx(true))

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, ErrStepTimeout.Error())
	assert.Zero(t, after.calls.Load())
}

func TestRun_StepOwnDeadlineIsNotAStepTimeout(t *testing.T) {
	clientTimeout := &funcStep{
		id:  "CLIENT_TIMEOUT",
		typ: models.StepTypeAction,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			return nil, fmt.Errorf("request to upstream: %w", context.DeadlineExceeded)
		},
	}

	orch := New(stepMap{"CLIENT_TIMEOUT": clientTimeout}, discardLogger(), WithStepTimeout(time.Minute))

	result := orch.Run(context.Background(), automationWith(&models.Step{StepID: "CLIENT_TIMEOUT"}), newExecCtx(true))

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "request to upstream")
	assert.NotContains(t, result.Error, ErrStepTimeout.Error())
}

func TestRun_StepIgnoringContextIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stuck := &funcStep{
		id:  "STUCK",
		typ: models.StepTypeAction,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			<-release

			return nil, nil
		},
	}

	orch := New(stepMap{"STUCK": stuck}, discardLogger(), WithStepTimeout(20*time.Millisecond))

	result := orch.Run(context.Background(), automationWith(&models.Step{StepID: "STUCK"}), newExecCtx(true))

	assert.Contains(t, result.Error, ErrStepTimeout.Error())
}

func TestRun_PanicIsCaptured(t *testing.T) {
	panicking := &funcStep{
		id:  "PANIC",
		typ: models.StepTypeAction,
		execute: func(context.Context, protocol.StepInput) (map[string]any, error) {
			panic("nil map write")
		},
	}

	orch := New(stepMap{"PANIC": panicking}, discardLogger())

	result := orch.Run(context.Background(), automationWith(&models.Step{StepID: "PANIC"}), newExecCtx(true))

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "step panicked")
	assert.Contains(t, result.Error, "nil map write")
}

func TestRun_UnknownStep(t *testing.T) {
	orch := New(stepMap{}, discardLogger())

	result := orch.Run(context.Background(), automationWith(&models.Step{StepID: "GONE"}), newExecCtx(true))

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, registry.ErrUnknownStep.Error())
}

func TestRun_WithoutResponsesDiscardsOutputs(t *testing.T) {
	orch := New(stepMap{"ECHO": echoStep("ECHO")}, discardLogger())

	execCtx := newExecCtx(false)
	result := orch.Run(context.Background(), automationWith(&models.Step{StepID: "ECHO"}), execCtx)

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Nil(t, result.Steps)
	assert.Len(t, execCtx.Steps, 1)
}

func TestRun_EmptyStepList(t *testing.T) {
	orch := New(stepMap{}, discardLogger())

	result := orch.Run(context.Background(), automationWith(), newExecCtx(true))

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Steps)
}

func TestInlineDispatcher(t *testing.T) {
	echo := echoStep("ECHO")
	dispatcher := NewInlineDispatcher(New(stepMap{"ECHO": echo}, discardLogger()))

	handle, err := dispatcher.Dispatch(context.Background(), automationWith(&models.Step{StepID: "ECHO"}), newExecCtx(true))
	require.NoError(t, err)

	// inline runs have finished before Dispatch returns
	assert.Equal(t, int64(1), echo.calls.Load())

	select {
	case <-handle.Done():
	default:
		t.Fatal("inline handle should be completed")
	}

	assert.Equal(t, ModeBuilder, dispatcher.Mode())
}

func TestPoolDispatcher(t *testing.T) {
	pool := worker.NewPool(2, discardLogger())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	dispatcher := NewPoolDispatcher(New(stepMap{"ECHO": echoStep("ECHO")}, discardLogger()), pool)

	automation := automationWith(&models.Step{StepID: "ECHO", Inputs: map[string]any{"value": "3"}})

	handle, err := dispatcher.Dispatch(context.Background(), automation, newExecCtx(true))
	require.NoError(t, err)

	// later edits do not leak into the queued run
	automation.Definition.Steps[0].Inputs["value"] = "99"

	result, err := handle.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.InDelta(t, 3.0, result.Steps[0].Outputs["value"], 0)
	assert.Equal(t, int64(1), pool.Metrics().Submitted)
	assert.Equal(t, ModeProduction, dispatcher.Mode())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("production")
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, mode)

	_, err = ParseMode("turbo")
	require.Error(t, err)
}
