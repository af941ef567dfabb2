package services

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/trigger"
)

// TriggerWebhook fires the automation targeted by a webhook registration with the
// request body as the event.
func (s *Automation) TriggerWebhook(ctx context.Context, appID, webhookID string, body map[string]any) error {
	automation, err := s.webhookTarget(ctx, appID, webhookID)
	if err != nil {
		return err
	}

	event := map[string]any{"body": body, "appId": appID}

	if _, err := s.matcher.ExternalTrigger(ctx, automation, event, trigger.Options{}); err != nil {
		return fmt.Errorf("failed to trigger automation %s from webhook %s: %w", automation.ID, webhookID, err)
	}

	return nil
}

// WebhookSchema returns the body schema recorded for a webhook registration.
func (s *Automation) WebhookSchema(ctx context.Context, appID, webhookID string) (*models.JSONSchema, error) {
	webhook, err := s.persistence.Webhooks().Get(ctx, appID, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %s: %w", webhookID, err)
	}

	if webhook.BodySchema == nil {
		return &models.JSONSchema{Type: models.PropertyTypeObject}, nil
	}

	return webhook.BodySchema, nil
}

// BuildWebhookSchema infers a schema from a sample request body and stores it on the
// registration, so the builder can offer the body fields as bindings.
func (s *Automation) BuildWebhookSchema(ctx context.Context, appID, webhookID string, body map[string]any) (*models.JSONSchema, error) {
	webhook, err := s.persistence.Webhooks().Get(ctx, appID, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %s: %w", webhookID, err)
	}

	webhook.BodySchema = InferSchema(body)

	if err := s.persistence.Webhooks().Save(ctx, webhook); err != nil {
		return nil, fmt.Errorf("failed to save webhook %s: %w", webhookID, err)
	}

	return webhook.BodySchema, nil
}

func (s *Automation) webhookTarget(ctx context.Context, appID, webhookID string) (*models.Automation, error) {
	webhook, err := s.persistence.Webhooks().Get(ctx, appID, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %s: %w", webhookID, err)
	}

	if webhook.Action.Type != models.WebhookActionAutomation {
		return nil, NewValidationError("TriggerWebhook", "unsupported_webhook",
			"webhook does not target an automation", ErrInvalidRequest)
	}

	return s.Find(ctx, appID, webhook.Action.Target)
}

// InferSchema describes the shape of a decoded JSON object.
func InferSchema(body map[string]any) *models.JSONSchema {
	schema := &models.JSONSchema{
		Type:       models.PropertyTypeObject,
		Properties: make(map[string]*models.Property, len(body)),
	}

	for _, key := range slices.Sorted(maps.Keys(body)) {
		schema.Properties[key] = inferProperty(body[key])
	}

	return schema
}

func inferProperty(value any) *models.Property {
	switch v := value.(type) {
	case bool:
		return &models.Property{Type: models.PropertyTypeBoolean}
	case float64, float32, int, int64:
		return &models.Property{Type: models.PropertyTypeNumber}
	case map[string]any:
		nested := InferSchema(v)

		return &models.Property{Type: models.PropertyTypeObject, Properties: nested.Properties}
	case []any:
		prop := &models.Property{Type: models.PropertyTypeArray}
		if len(v) > 0 {
			prop.Items = inferProperty(v[0])
		}

		return prop
	default:
		return &models.Property{Type: models.PropertyTypeString}
	}
}
