package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const webhooksDir = "webhooks"

// WebhookRepository handles webhook registration file operations.
type WebhookRepository struct {
	root string
}

func NewWebhookRepository(root string) *WebhookRepository {
	return &WebhookRepository{root: root}
}

func (wr *WebhookRepository) Get(_ context.Context, appID, id string) (*models.Webhook, error) {
	filePath, err := docPath(wr.root, appID, webhooksDir, id, ".json")
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrWebhookNotFound
		}

		return nil, fmt.Errorf("failed to read webhook %s: %w", id, err)
	}

	var webhook models.Webhook

	if err := json.Unmarshal(body, &webhook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook %s: %w", id, err)
	}

	return &webhook, nil
}

func (wr *WebhookRepository) Save(_ context.Context, webhook *models.Webhook) error {
	filePath, err := docPath(wr.root, webhook.AppID, webhooksDir, webhook.ID, ".json")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return fmt.Errorf("failed to create webhooks directory: %w", err)
	}

	data, err := json.MarshalIndent(webhook, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal webhook %s: %w", webhook.ID, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

func (wr *WebhookRepository) Delete(_ context.Context, appID, id string) error {
	filePath, err := docPath(wr.root, appID, webhooksDir, id, ".json")
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrWebhookNotFound
		}

		return fmt.Errorf("failed to delete webhook %s: %w", id, err)
	}

	return nil
}
