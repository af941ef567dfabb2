// Package models defines the core domain models for event-triggered automations.
package models

// DocumentTypeAutomation tags every stored automation document.
const DocumentTypeAutomation = "automation"

// StepType identifies which catalog a step definition belongs to.
type StepType string

const (
	StepTypeTrigger StepType = "TRIGGER"
	StepTypeAction  StepType = "ACTION"
	StepTypeLogic   StepType = "LOGIC"
)

// Step is one configured unit of an automation: the trigger or an entry of the step list.
type Step struct {
	ID        string         `json:"id,omitempty"`
	StepID    string         `json:"stepId"              validate:"required"`
	Type      StepType       `json:"type,omitempty"`
	Name      string         `json:"name,omitempty"`
	Inputs    map[string]any `json:"inputs"`
	WebhookID string         `json:"webhookId,omitempty"`
}

// Definition holds the trigger and the ordered step list of an automation.
type Definition struct {
	Trigger *Step   `json:"trigger" validate:"required"`
	Steps   []*Step `json:"steps"`
}

// Automation is a versioned automation document.
type Automation struct {
	ID         string     `json:"_id,omitempty"`
	Rev        string     `json:"_rev,omitempty"`
	Type       string     `json:"type,omitempty"`
	AppID      string     `json:"appId,omitempty"`
	Name       string     `json:"name,omitempty"`
	Definition Definition `json:"definition"`

	// Deprecated: Live is never interpreted and is stripped before persistence.
	Live *bool `json:"live,omitempty"`
}

// AllSteps returns the step list followed by the trigger, skipping nil entries.
func (a *Automation) AllSteps() []*Step {
	steps := make([]*Step, 0, len(a.Definition.Steps)+1)

	for _, step := range a.Definition.Steps {
		if step != nil {
			steps = append(steps, step)
		}
	}

	if a.Definition.Trigger != nil {
		steps = append(steps, a.Definition.Trigger)
	}

	return steps
}

// Clone returns a deep copy of the automation so callers can mutate inputs safely.
func (a *Automation) Clone() *Automation {
	if a == nil {
		return nil
	}

	clone := *a
	clone.Definition.Trigger = a.Definition.Trigger.Clone()

	if a.Definition.Steps != nil {
		clone.Definition.Steps = make([]*Step, len(a.Definition.Steps))
		for i, step := range a.Definition.Steps {
			clone.Definition.Steps[i] = step.Clone()
		}
	}

	if a.Live != nil {
		live := *a.Live
		clone.Live = &live
	}

	return &clone
}

// Clone returns a copy of the step with its own inputs map.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Inputs = CloneMap(s.Inputs)

	return &clone
}

// CloneMap copies a value bag, recursing into nested maps.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))

	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = CloneMap(nested)

			continue
		}

		out[k] = v
	}

	return out
}
