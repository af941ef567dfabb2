package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const automationsDir = "automations"

// AutomationRepository handles automation document file operations.
type AutomationRepository struct {
	root string
	mu   sync.Mutex
}

func NewAutomationRepository(root string) *AutomationRepository {
	return &AutomationRepository{root: root}
}

func (ar *AutomationRepository) Get(_ context.Context, appID, id string) (*models.Automation, error) {
	automation, err := ar.read(appID, id)
	if err != nil {
		return nil, persistence.NewAutomationError("Get", appID, id, err)
	}

	return automation, nil
}

func (ar *AutomationRepository) read(appID, id string) (*models.Automation, error) {
	filePath, err := docPath(ar.root, appID, automationsDir, id, ".json")
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrAutomationNotFound
		}

		return nil, fmt.Errorf("failed to read automation: %w", err)
	}

	var automation models.Automation

	err = json.Unmarshal(body, &automation)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal automation: %w", err)
	}

	return &automation, nil
}

func (ar *AutomationRepository) Put(_ context.Context, automation *models.Automation) (string, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	current := ""

	existing, err := ar.read(automation.AppID, automation.ID)

	switch {
	case err == nil:
		current = existing.Rev
	case persistence.IsAutomationNotFound(err):
	default:
		return "", persistence.NewAutomationError("Put", automation.AppID, automation.ID, err)
	}

	if err := persistence.CheckRevision(current, automation.Rev); err != nil {
		return "", persistence.NewAutomationError("Put", automation.AppID, automation.ID, err)
	}

	doc := automation.Clone()
	doc.Rev = persistence.NextRevision(current)

	filePath, err := docPath(ar.root, doc.AppID, automationsDir, doc.ID, ".json")
	if err != nil {
		return "", persistence.NewAutomationError("Put", automation.AppID, automation.ID, err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return "", fmt.Errorf("failed to create automations directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal automation %s: %w", doc.ID, err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write automation %s: %w", doc.ID, err)
	}

	return doc.Rev, nil
}

func (ar *AutomationRepository) Remove(_ context.Context, appID, id, rev string) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	existing, err := ar.read(appID, id)
	if err != nil {
		return persistence.NewAutomationError("Remove", appID, id, err)
	}

	if err := persistence.CheckRevision(existing.Rev, rev); err != nil {
		return persistence.NewAutomationError("Remove", appID, id, err)
	}

	filePath, err := docPath(ar.root, appID, automationsDir, id, ".json")
	if err != nil {
		return persistence.NewAutomationError("Remove", appID, id, err)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete automation %s: %w", id, err)
	}

	return nil
}

func (ar *AutomationRepository) AllDocs(_ context.Context, appID string) ([]*models.Automation, error) {
	appIDs := []string{appID}

	if appID == "" {
		entries, err := os.ReadDir(filepath.Join(ar.root, "apps"))
		if err != nil {
			if os.IsNotExist(err) {
				return make([]*models.Automation, 0), nil
			}

			return nil, fmt.Errorf("failed to list apps: %w", err)
		}

		appIDs = appIDs[:0]

		for _, entry := range entries {
			if entry.IsDir() {
				appIDs = append(appIDs, entry.Name())
			}
		}
	}

	automations := make([]*models.Automation, 0)

	for _, id := range appIDs {
		appAutomations, err := ar.list(id)
		if err != nil {
			return nil, err
		}

		automations = append(automations, appAutomations...)
	}

	sort.Slice(automations, func(i, j int) bool {
		if automations[i].AppID != automations[j].AppID {
			return automations[i].AppID < automations[j].AppID
		}

		return automations[i].ID < automations[j].ID
	})

	return automations, nil
}

func (ar *AutomationRepository) list(appID string) ([]*models.Automation, error) {
	dir, err := appDir(ar.root, appID, automationsDir)
	if err != nil {
		return nil, err
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list automation files: %w", err)
	}

	automations := make([]*models.Automation, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		automation, err := ar.read(appID, file[:len(file)-5])
		if err != nil {
			return nil, fmt.Errorf("failed to load automation %s: %w", file, err)
		}

		automations = append(automations, automation)
	}

	return automations, nil
}
