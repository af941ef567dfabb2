package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// AutomationRepository handles automation document database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

func (r *AutomationRepository) Get(ctx context.Context, appID, id string) (*models.Automation, error) {
	var doc []byte

	err := r.db.QueryRowContext(ctx, `SELECT doc FROM automations WHERE app_id = $1 AND id = $2`, appID, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("Get", appID, id, persistence.ErrAutomationNotFound)
		}

		return nil, persistence.NewAutomationError("Get", appID, id, fmt.Errorf("failed to query automation: %w", err))
	}

	return decodeAutomation(doc)
}

// Put creates the document when it carries no revision and otherwise replaces it only
// if the stored revision still matches.
func (r *AutomationRepository) Put(ctx context.Context, automation *models.Automation) (string, error) {
	if automation.ID == "" || automation.AppID == "" {
		return "", persistence.NewAutomationError("Put", automation.AppID, automation.ID, persistence.ErrInvalidID)
	}

	doc := automation.Clone()
	doc.Rev = persistence.NextRevision(automation.Rev)

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal automation %s: %w", doc.ID, err)
	}

	var result sql.Result

	if automation.Rev == "" {
		result, err = r.db.ExecContext(ctx, `
			INSERT INTO automations (app_id, id, rev, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (app_id, id) DO NOTHING
		`, doc.AppID, doc.ID, doc.Rev, body)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE automations
			SET rev = $4, doc = $5, updated_at = NOW()
			WHERE app_id = $1 AND id = $2 AND rev = $3
		`, doc.AppID, doc.ID, automation.Rev, doc.Rev, body)
	}

	if err != nil {
		return "", persistence.NewAutomationError("Put", doc.AppID, doc.ID, fmt.Errorf("failed to write automation: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return "", persistence.NewAutomationError("Put", doc.AppID, doc.ID, persistence.ErrRevisionConflict)
	}

	return doc.Rev, nil
}

func (r *AutomationRepository) Remove(ctx context.Context, appID, id, rev string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM automations WHERE app_id = $1 AND id = $2 AND rev = $3`, appID, id, rev)
	if err != nil {
		return persistence.NewAutomationError("Remove", appID, id, fmt.Errorf("failed to delete automation: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM automations WHERE app_id = $1 AND id = $2)`, appID, id).Scan(&exists)
	if err != nil {
		return persistence.NewAutomationError("Remove", appID, id, fmt.Errorf("failed to query automation: %w", err))
	}

	if exists {
		return persistence.NewAutomationError("Remove", appID, id, persistence.ErrRevisionConflict)
	}

	return persistence.NewAutomationError("Remove", appID, id, persistence.ErrAutomationNotFound)
}

func (r *AutomationRepository) AllDocs(ctx context.Context, appID string) ([]*models.Automation, error) {
	query := `
		SELECT doc
		FROM automations
		WHERE ($1 = '' OR app_id = $1)
		ORDER BY app_id, id
	`

	rows, err := r.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		var doc []byte

		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automation, err := decodeAutomation(doc)
		if err != nil {
			return nil, err
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

func decodeAutomation(doc []byte) (*models.Automation, error) {
	var automation models.Automation

	if err := json.Unmarshal(doc, &automation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal automation: %w", err)
	}

	return &automation, nil
}
