package triggers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/robfig/cron/v3"
)

const CronTriggerID = "CRON"

var ErrInvalidCronExpression = errors.New("invalid cron expression")

// CronTrigger fires on a cron schedule.
type CronTrigger struct{}

func NewCronTrigger() *CronTrigger {
	return &CronTrigger{}
}

func (t *CronTrigger) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          CronTriggerID,
		Type:        models.StepTypeTrigger,
		Name:        "Cron Trigger",
		Description: "Triggers automation using a CRON schedule",
		Icon:        "Clock",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"cron": {
						Type:        models.PropertyTypeString,
						Title:       "Expression",
						Description: "Standard five field cron expression or descriptor such as @hourly",
					},
				},
				Required: []string{"cron"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"timestamp": {
						Type:        models.PropertyTypeNumber,
						Description: "Timestamp the cron was executed",
					},
				},
			},
		},
	}
}

func (t *CronTrigger) ValidateInputs(inputs map[string]any) error {
	_, err := ParseSchedule(inputs)

	return err
}

// ParseSchedule parses the "cron" input of a CRON trigger.
func ParseSchedule(inputs map[string]any) (cron.Schedule, error) {
	expression, _ := inputs["cron"].(string)

	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("%w: missing required field 'cron'", ErrInvalidCronExpression)
	}

	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCronExpression, err)
	}

	return schedule, nil
}
