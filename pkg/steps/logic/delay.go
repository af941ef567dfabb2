package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/template"
)

const DelayID = "DELAY"

var ErrInvalidDelay = errors.New("invalid delay")

// Delay pauses the run for a number of milliseconds.
type Delay struct{}

func NewDelay() *Delay {
	return &Delay{}
}

func (l *Delay) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          DelayID,
		Type:        models.StepTypeLogic,
		Name:        "Delay",
		Description: "Delay the automation until an amount of time has passed",
		Icon:        "Clock",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"time": {Type: models.PropertyTypeNumber, Title: "Delay in milliseconds"},
				},
				Required: []string{"time"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"success": {Type: models.PropertyTypeBoolean, Description: "Whether the delay was successful"},
				},
				Required: []string{"success"},
			},
		},
	}
}

func (l *Delay) ValidateInputs(inputs map[string]any) error {
	if raw, ok := inputs["time"].(string); ok && template.NeedsTemplating(raw) {
		return nil
	}

	_, err := delayDuration(inputs)

	return err
}

func (l *Delay) Execute(ctx context.Context, input protocol.StepInput) (map[string]any, error) {
	d, err := delayDuration(input.Inputs)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return map[string]any{protocol.LogicOutputKey: true}, nil
}

func delayDuration(inputs map[string]any) (time.Duration, error) {
	raw, ok := inputs["time"]
	if !ok || raw == nil {
		return 0, nil
	}

	ms, ok := asNumber(raw)
	if !ok || ms < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDelay, raw)
	}

	return time.Duration(ms * float64(time.Millisecond)), nil
}
