package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/trigger"
	"github.com/google/uuid"
)

// AutomationIDPrefix starts every generated automation id.
const AutomationIDPrefix = "au_"

// Automation implements the builder and trigger operations on automation documents.
type Automation struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	matcher     *trigger.Matcher
	webhooks    *bookkeeping.WebhookLifecycle
	history     *bookkeeping.HistoryRecorder
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*automationOptions)

type automationOptions struct {
	webhookRegistry bookkeeping.WebhookRegistry
	publisher       eventbus.EventPublisher
}

// WithWebhookRegistry replaces the store-backed webhook registry.
func WithWebhookRegistry(webhooks bookkeeping.WebhookRegistry) Option {
	return func(o *automationOptions) {
		o.webhookRegistry = webhooks
	}
}

// WithPublisher publishes automation saved and deleted events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *automationOptions) {
		o.publisher = publisher
	}
}

// NewAutomation creates a new automation service.
func NewAutomation(
	persistence persistence.Persistence,
	registry *registry.Registry,
	matcher *trigger.Matcher,
	logger *slog.Logger,
	opts ...Option,
) *Automation {
	options := automationOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.webhookRegistry == nil {
		options.webhookRegistry = bookkeeping.NewStoreWebhookRegistry(persistence.Webhooks())
	}

	return &Automation{
		persistence: persistence,
		registry:    registry,
		matcher:     matcher,
		webhooks:    bookkeeping.NewWebhookLifecycle(registry, options.webhookRegistry, logger),
		history:     bookkeeping.NewHistoryRecorder(persistence.TestHistory(), logger),
		publisher:   options.publisher,
		logger:      logger.With("module", "automation_service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Automation) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new automation for appID. A document that already carries both
// _id and _rev is updated instead.
func (s *Automation) Create(ctx context.Context, appID string, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	if automation.ID != "" && automation.Rev != "" {
		return s.Update(ctx, appID, automation)
	}

	automation = automation.Clone()
	automation.AppID = appID
	automation.ID = newAutomationID()
	automation.Type = models.DocumentTypeAutomation

	CleanAutomationInputs(automation)

	if err := s.validate("Create", automation); err != nil {
		return nil, err
	}

	automation = s.webhooks.CheckForWebhooks(ctx, appID, nil, automation)

	return s.put(ctx, "Create", nil, automation)
}

// Update replaces a stored automation. The document must carry the current _rev.
func (s *Automation) Update(ctx context.Context, appID string, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	if automation.ID == "" {
		return nil, NewValidationError("Update", "missing_id", "automation _id is required", ErrMissingID)
	}

	automation = automation.Clone()
	automation.AppID = appID

	if automation.Type == "" {
		automation.Type = models.DocumentTypeAutomation
	}

	old, err := s.persistence.Automations().Get(ctx, appID, automation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation %s: %w", automation.ID, err)
	}

	CleanAutomationInputs(automation)

	if err := s.validate("Update", automation); err != nil {
		return nil, err
	}

	automation = s.webhooks.CheckForWebhooks(ctx, appID, old, automation)

	return s.put(ctx, "Update", old, automation)
}

func (s *Automation) put(ctx context.Context, op string, old, automation *models.Automation) (*models.Automation, error) {
	rev, err := s.persistence.Automations().Put(ctx, automation)
	if err != nil {
		s.releaseWebhook(ctx, old, automation)

		return nil, fmt.Errorf("failed to save automation %s: %w", automation.ID, err)
	}

	automation.Rev = rev

	s.logger.InfoContext(ctx, "Automation saved", "op", op, "app_id", automation.AppID, "automation_id", automation.ID, "rev", rev)

	event := events.AutomationSaved{
		BaseEvent: events.NewBaseEvent(events.AutomationSavedEvent, automation.ID, automation.AppID),
		Rev:       rev,
	}

	if step := automation.Definition.Trigger; step != nil {
		event.TriggerID = step.StepID
		event.Inputs = maps.Clone(step.Inputs)
	}

	s.publish(ctx, automation.ID, event)

	return automation, nil
}

// releaseWebhook removes a registration created for a save that did not go through.
func (s *Automation) releaseWebhook(ctx context.Context, old, automation *models.Automation) {
	step := automation.Definition.Trigger
	if step == nil || step.WebhookID == "" {
		return
	}

	if old != nil && old.Definition.Trigger != nil && old.Definition.Trigger.WebhookID == step.WebhookID {
		return
	}

	s.webhooks.CheckForWebhooks(ctx, automation.AppID, automation, nil)
}

// Fetch returns every automation of appID.
func (s *Automation) Fetch(ctx context.Context, appID string) ([]*models.Automation, error) {
	automations, err := s.persistence.Automations().AllDocs(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	return automations, nil
}

// Find returns one automation of appID.
func (s *Automation) Find(ctx context.Context, appID, id string) (*models.Automation, error) {
	automation, err := s.persistence.Automations().Get(ctx, appID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get automation %s: %w", id, err)
	}

	return automation, nil
}

// Destroy deletes the automation at revision rev and removes its webhook registration.
func (s *Automation) Destroy(ctx context.Context, appID, id, rev string) error {
	old, err := s.persistence.Automations().Get(ctx, appID, id)
	if err != nil {
		return fmt.Errorf("failed to load automation %s: %w", id, err)
	}

	if old.Rev != rev {
		return persistence.NewAutomationError("Remove", appID, id, ErrRevisionConflict)
	}

	s.webhooks.CheckForWebhooks(ctx, appID, old, nil)

	if err := s.persistence.Automations().Remove(ctx, appID, id, rev); err != nil {
		return fmt.Errorf("failed to delete automation %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Automation deleted", "app_id", appID, "automation_id", id)

	s.publish(ctx, id, events.AutomationDeleted{
		BaseEvent: events.NewBaseEvent(events.AutomationDeletedEvent, id, appID),
	})

	return nil
}

// Trigger fires the automation with production semantics and returns without waiting.
// The returned run summary is pending until the run finishes.
func (s *Automation) Trigger(
	ctx context.Context,
	appID, id string,
	event map[string]any,
) (*models.Automation, *models.ExecutionResult, error) {
	automation, err := s.Find(ctx, appID, id)
	if err != nil {
		return nil, nil, err
	}

	run, err := s.matcher.ExternalTrigger(ctx, automation, withAppID(event, appID), trigger.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to trigger automation %s: %w", id, err)
	}

	return automation, run, nil
}

// Test fires the automation, waits for its result and records the run in the test history.
func (s *Automation) Test(ctx context.Context, appID, id string, event map[string]any) (*models.ExecutionResult, error) {
	automation, err := s.Find(ctx, appID, id)
	if err != nil {
		return nil, err
	}

	occurredAt := s.now()
	event = withAppID(event, appID)

	result, err := s.matcher.ExternalTrigger(ctx, automation, event, trigger.Options{GetResponses: true, Test: true})
	if err != nil {
		return nil, fmt.Errorf("failed to test automation %s: %w", id, err)
	}

	// History failures are logged by the recorder and do not fail the test run.
	_, _ = s.history.Record(ctx, automation, event, result, occurredAt)

	return result, nil
}

// History lists the recorded test runs of an automation, newest first.
func (s *Automation) History(ctx context.Context, appID, id string) ([]*models.TestHistoryRecord, error) {
	if _, err := s.Find(ctx, appID, id); err != nil {
		return nil, err
	}

	records, err := s.history.List(ctx, appID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list test history of %s: %w", id, err)
	}

	return records, nil
}

func (s *Automation) validate(op string, automation *models.Automation) error {
	err := s.registry.ValidateAutomation(automation)
	if err == nil {
		return nil
	}

	var validationErr *registry.ValidationError
	if errors.As(err, &validationErr) {
		return NewValidationError(op, "invalid_automation", strings.Join(validationErr.Problems, "; "),
			errors.Join(ErrInvalidAutomation, err))
	}

	return fmt.Errorf("failed to validate automation: %w", err)
}

func (s *Automation) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish automation event", "event_type", event.GetType(), "error", err)
	}
}

// CleanAutomationInputs drops the deprecated live flag and removes every input whose
// value is empty: nil or "". Zero and false are configured values and are kept.
func CleanAutomationInputs(automation *models.Automation) *models.Automation {
	if automation == nil {
		return nil
	}

	automation.Live = nil

	for _, step := range automation.AllSteps() {
		maps.DeleteFunc(step.Inputs, func(_ string, value any) bool {
			return value == nil || value == ""
		})
	}

	return automation
}

func newAutomationID() string {
	return AutomationIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func withAppID(event map[string]any, appID string) map[string]any {
	out := models.CloneMap(event)
	if out == nil {
		out = make(map[string]any)
	}

	out["appId"] = appID

	return out
}
