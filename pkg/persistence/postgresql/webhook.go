package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// WebhookRepository handles webhook registration database operations.
type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Get(ctx context.Context, appID, id string) (*models.Webhook, error) {
	var doc []byte

	err := r.db.QueryRowContext(ctx, `SELECT doc FROM webhooks WHERE app_id = $1 AND id = $2`, appID, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWebhookNotFound
		}

		return nil, fmt.Errorf("failed to query webhook %s: %w", id, err)
	}

	var webhook models.Webhook

	if err := json.Unmarshal(doc, &webhook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook %s: %w", id, err)
	}

	return &webhook, nil
}

func (r *WebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	doc, err := json.Marshal(webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook %s: %w", webhook.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhooks (app_id, id, doc, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (app_id, id) DO UPDATE SET doc = EXCLUDED.doc
	`, webhook.AppID, webhook.ID, doc, webhook.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save webhook %s: %w", webhook.ID, err)
	}

	return nil
}

func (r *WebhookRepository) Delete(ctx context.Context, appID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE app_id = $1 AND id = $2`, appID, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWebhookNotFound
	}

	return nil
}
