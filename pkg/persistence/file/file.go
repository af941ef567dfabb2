// Package file provides file-based persistence for automations, webhooks and test history.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Documents live under <root>/apps/<appId>/.
type Persistence struct {
	root            string
	automationRepo  *AutomationRepository
	webhookRepo     *WebhookRepository
	testHistoryRepo *TestHistoryRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		automationRepo:  NewAutomationRepository(cleanRoot),
		webhookRepo:     NewWebhookRepository(cleanRoot),
		testHistoryRepo: NewTestHistoryRepository(cleanRoot),
	}
}

func (fp *Persistence) Automations() persistence.AutomationRepository {
	return fp.automationRepo
}

func (fp *Persistence) Webhooks() persistence.WebhookRepository {
	return fp.webhookRepo
}

func (fp *Persistence) TestHistory() persistence.TestHistoryRepository {
	return fp.testHistoryRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// appDir returns the directory of one collection of an app, rejecting ids that would
// escape the root.
func appDir(root, appID, collection string) (string, error) {
	if err := checkName(appID); err != nil {
		return "", err
	}

	return filepath.Join(root, "apps", appID, collection), nil
}

func docPath(root, appID, collection, id, ext string) (string, error) {
	dir, err := appDir(root, appID, collection)
	if err != nil {
		return "", err
	}

	if err := checkName(id); err != nil {
		return "", err
	}

	return filepath.Join(dir, id+ext), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, name)
	}

	return nil
}
