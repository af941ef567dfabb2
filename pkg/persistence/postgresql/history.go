package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/models"
)

// TestHistoryRepository stores manual test runs, one row per run.
type TestHistoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTestHistoryRepository(db *sql.DB, logger *slog.Logger) *TestHistoryRepository {
	return &TestHistoryRepository{db: db, logger: logger}
}

func (r *TestHistoryRepository) Append(ctx context.Context, record *models.TestHistoryRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal test history record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO test_history (id, app_id, automation_id, record, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.AppID, record.AutomationID, body, record.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append test history: %w", err)
	}

	return nil
}

func (r *TestHistoryRepository) List(ctx context.Context, appID, automationID string) ([]*models.TestHistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record
		FROM test_history
		WHERE app_id = $1 AND automation_id = $2
		ORDER BY seq DESC
	`, appID, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test history: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.TestHistoryRecord, 0)

	for rows.Next() {
		var body []byte

		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan test history record: %w", err)
		}

		var record models.TestHistoryRecord

		if err := json.Unmarshal(body, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test history record: %w", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating test history: %w", err)
	}

	return records, nil
}
