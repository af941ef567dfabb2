// Package registry provides the catalog of trigger, action and logic steps.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

var (
	// ErrUnknownStep is returned when a step identifier has no registered definition.
	ErrUnknownStep = errors.New("unknown step")

	// ErrNotExecutable is returned when a registered step has no execution logic.
	ErrNotExecutable = errors.New("step is not executable")
)

// DefinitionList is the full catalog as exposed to the builder.
type DefinitionList struct {
	Logic   map[string]protocol.StepDefinition `json:"logic"`
	Trigger map[string]protocol.StepDefinition `json:"trigger"`
	Action  map[string]protocol.StepDefinition `json:"action"`
}

// Registry holds the immutable step catalogs. Steps are registered at startup and only
// read afterwards.
type Registry struct {
	logger   *slog.Logger
	triggers map[string]protocol.Step
	actions  map[string]protocol.Executor
	logic    map[string]protocol.Executor
	settings *SettingsCache
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		triggers: make(map[string]protocol.Step),
		actions:  make(map[string]protocol.Executor),
		logic:    make(map[string]protocol.Executor),
		settings: NewSettingsCache(),
	}
}

func (r *Registry) RegisterTrigger(step protocol.Step) {
	r.triggers[step.Definition().ID] = step
}

func (r *Registry) RegisterAction(step protocol.Executor) {
	r.actions[step.Definition().ID] = step
}

func (r *Registry) RegisterLogic(step protocol.Executor) {
	r.logic[step.Definition().ID] = step
}

// Trigger looks up a trigger by its exact identifier.
func (r *Registry) Trigger(id string) (protocol.Step, bool) {
	step, ok := r.triggers[id]

	return step, ok
}

// Action looks up an action by its exact identifier.
func (r *Registry) Action(id string) (protocol.Executor, bool) {
	step, ok := r.actions[id]

	return step, ok
}

// Logic looks up a logic step by its exact identifier.
func (r *Registry) Logic(id string) (protocol.Executor, bool) {
	step, ok := r.logic[id]

	return step, ok
}

// Executor resolves the implementation of a configured action or logic step. When the
// step carries no type tag both catalogs are searched, actions first.
func (r *Registry) Executor(step *models.Step) (protocol.Executor, error) {
	if step == nil {
		return nil, fmt.Errorf("%w: nil step", ErrUnknownStep)
	}

	switch step.Type {
	case models.StepTypeAction:
		if executor, ok := r.actions[step.StepID]; ok {
			return executor, nil
		}
	case models.StepTypeLogic:
		if executor, ok := r.logic[step.StepID]; ok {
			return executor, nil
		}
	case models.StepTypeTrigger:
		return nil, fmt.Errorf("%w: trigger %q cannot run as a step", ErrNotExecutable, step.StepID)
	default:
		if executor, ok := r.actions[step.StepID]; ok {
			return executor, nil
		}

		if executor, ok := r.logic[step.StepID]; ok {
			return executor, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownStep, step.StepID)
}

// TriggerDefinitions returns the trigger catalog.
func (r *Registry) TriggerDefinitions() map[string]protocol.StepDefinition {
	return definitions(r.triggers)
}

// ActionDefinitions returns the action catalog.
func (r *Registry) ActionDefinitions() map[string]protocol.StepDefinition {
	return definitions(r.actions)
}

// LogicDefinitions returns the logic catalog.
func (r *Registry) LogicDefinitions() map[string]protocol.StepDefinition {
	return definitions(r.logic)
}

// Definitions returns all three catalogs.
func (r *Registry) Definitions() DefinitionList {
	return DefinitionList{
		Logic:   r.LogicDefinitions(),
		Trigger: r.TriggerDefinitions(),
		Action:  r.ActionDefinitions(),
	}
}

// HealthCheck reports whether any step has been registered.
func (r *Registry) HealthCheck() (string, bool) {
	total := len(r.triggers) + len(r.actions) + len(r.logic)
	if total == 0 || len(r.triggers) == 0 {
		return "Registry has no triggers registered", false
	}

	return fmt.Sprintf("Registry has %d steps registered", total), true
}

// Settings returns the builder settings of a step type, resolved once and cached.
func (r *Registry) Settings(stepType models.StepType, id string) ([]Setting, error) {
	var step protocol.Step

	var ok bool

	switch stepType {
	case models.StepTypeTrigger:
		step, ok = r.triggers[id]
	case models.StepTypeAction:
		step, ok = r.actions[id]
	case models.StepTypeLogic:
		step, ok = r.logic[id]
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownStep, stepType, id)
	}

	key := string(stepType) + "/" + id

	return r.settings.Get(key, func() []Setting {
		r.logger.Debug("Resolving step settings", "key", key)

		return resolveSettings(step.Definition().Schema.Inputs)
	}), nil
}

// SettingsCache exposes the settings cache, mainly so tests can reset it.
func (r *Registry) SettingsCache() *SettingsCache {
	return r.settings
}

func definitions[T protocol.Step](steps map[string]T) map[string]protocol.StepDefinition {
	defs := make(map[string]protocol.StepDefinition, len(steps))
	for _, id := range slices.Sorted(maps.Keys(steps)) {
		defs[id] = steps[id].Definition()
	}

	return defs
}
