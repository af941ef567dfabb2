// Package persistence provides the document store abstraction for automations, webhook
// registrations and test history.
package persistence

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
)

type Persistence interface {
	Automations() AutomationRepository
	Webhooks() WebhookRepository
	TestHistory() TestHistoryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// AutomationRepository stores versioned automation documents. Every write must carry
// the current revision; a stale revision fails with ErrRevisionConflict.
type AutomationRepository interface {
	Get(ctx context.Context, appID, id string) (*models.Automation, error)
	// Put stores the document and returns its new revision. The argument is not modified.
	Put(ctx context.Context, automation *models.Automation) (string, error)
	Remove(ctx context.Context, appID, id, rev string) error
	// AllDocs lists the automations of an app, or of every app when appID is empty.
	AllDocs(ctx context.Context, appID string) ([]*models.Automation, error)
}

type WebhookRepository interface {
	Get(ctx context.Context, appID, id string) (*models.Webhook, error)
	Save(ctx context.Context, webhook *models.Webhook) error
	Delete(ctx context.Context, appID, id string) error
}

// TestHistoryRepository is an append-only log of manual test runs.
type TestHistoryRepository interface {
	Append(ctx context.Context, record *models.TestHistoryRecord) error
	// List returns the records of one automation, newest first.
	List(ctx context.Context, appID, automationID string) ([]*models.TestHistoryRecord, error)
}
