package bookkeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/google/uuid"
)

// Trigger inputs written when a webhook is registered.
const (
	InputSchemaURL  = "schemaUrl"
	InputTriggerURL = "triggerUrl"
)

// WebhookRegistry creates and removes the webhook registration of an automation.
type WebhookRegistry interface {
	Register(ctx context.Context, appID string, automation *models.Automation) (*models.Webhook, error)
	Deregister(ctx context.Context, appID, webhookID string) error
}

// StoreWebhookRegistry keeps registrations in the document store.
type StoreWebhookRegistry struct {
	webhooks persistence.WebhookRepository
}

func NewStoreWebhookRegistry(webhooks persistence.WebhookRepository) *StoreWebhookRegistry {
	return &StoreWebhookRegistry{webhooks: webhooks}
}

func (r *StoreWebhookRegistry) Register(ctx context.Context, appID string, automation *models.Automation) (*models.Webhook, error) {
	webhook := &models.Webhook{
		ID:    "wh_" + uuid.NewString(),
		AppID: appID,
		Name:  "Automation webhook",
		Action: models.WebhookAction{
			Type:   models.WebhookActionAutomation,
			Target: automation.ID,
		},
		CreatedAt: time.Now().UTC(),
	}

	if automation.Name != "" {
		webhook.Name = automation.Name + " webhook"
	}

	if err := r.webhooks.Save(ctx, webhook); err != nil {
		return nil, fmt.Errorf("failed to register webhook for automation %s: %w", automation.ID, err)
	}

	return webhook, nil
}

func (r *StoreWebhookRegistry) Deregister(ctx context.Context, appID, webhookID string) error {
	return r.webhooks.Delete(ctx, appID, webhookID)
}

// TriggerLookup resolves trigger step ids.
type TriggerLookup interface {
	Trigger(id string) (protocol.Step, bool)
}

// WebhookLifecycle keeps webhook registrations in line with automation triggers.
type WebhookLifecycle struct {
	triggers TriggerLookup
	webhooks WebhookRegistry
	logger   *slog.Logger
}

func NewWebhookLifecycle(triggers TriggerLookup, webhooks WebhookRegistry, logger *slog.Logger) *WebhookLifecycle {
	return &WebhookLifecycle{
		triggers: triggers,
		webhooks: webhooks,
		logger:   logger.With("module", "webhook_lifecycle"),
	}
}

// SchemaURL is the path serving the trigger output schema of a registration.
func SchemaURL(appID, webhookID string) string {
	return fmt.Sprintf("webhooks/schema/%s/%s", appID, webhookID)
}

// TriggerURL is the path that fires a registration.
func TriggerURL(appID, webhookID string) string {
	return fmt.Sprintf("webhooks/trigger/%s/%s", appID, webhookID)
}

// CheckForWebhooks compares the triggers of oldAuto and newAuto and registers or
// removes the webhook accordingly. newAuto is nil when the automation is deleted.
// newAuto is modified in place and returned. Registration failures are logged and
// leave the trigger without a webhook.
func (l *WebhookLifecycle) CheckForWebhooks(ctx context.Context, appID string, oldAuto, newAuto *models.Automation) *models.Automation {
	oldTrigger := triggerOf(oldAuto)
	newTrigger := triggerOf(newAuto)

	oldIsWebhook := l.requiresWebhook(oldTrigger)
	newIsWebhook := l.requiresWebhook(newTrigger)

	if oldIsWebhook && oldTrigger.WebhookID != "" && !newIsWebhook {
		if err := l.webhooks.Deregister(ctx, appID, oldTrigger.WebhookID); err != nil {
			l.logger.WarnContext(ctx, "Failed to remove webhook",
				"app_id", appID, "webhook_id", oldTrigger.WebhookID, "error", err)
		}

		if newTrigger != nil {
			newTrigger.WebhookID = ""
			delete(newTrigger.Inputs, InputSchemaURL)
			delete(newTrigger.Inputs, InputTriggerURL)
		}

		return newAuto
	}

	if !newIsWebhook {
		return newAuto
	}

	if newTrigger.WebhookID == "" && oldIsWebhook {
		newTrigger.WebhookID = oldTrigger.WebhookID
	}

	if newTrigger.WebhookID != "" {
		return newAuto
	}

	webhook, err := l.webhooks.Register(ctx, appID, newAuto)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to register webhook",
			"app_id", appID, "automation_id", newAuto.ID, "error", err)

		return newAuto
	}

	newTrigger.WebhookID = webhook.ID

	if newTrigger.Inputs == nil {
		newTrigger.Inputs = make(map[string]any)
	}

	newTrigger.Inputs[InputSchemaURL] = SchemaURL(appID, webhook.ID)
	newTrigger.Inputs[InputTriggerURL] = TriggerURL(appID, webhook.ID)

	return newAuto
}

func (l *WebhookLifecycle) requiresWebhook(step *models.Step) bool {
	if step == nil {
		return false
	}

	trigger, ok := l.triggers.Trigger(step.StepID)
	if !ok {
		return false
	}

	webhookTrigger, ok := trigger.(protocol.WebhookTrigger)

	return ok && webhookTrigger.RequiresWebhook()
}

func triggerOf(automation *models.Automation) *models.Step {
	if automation == nil {
		return nil
	}

	return automation.Definition.Trigger
}
