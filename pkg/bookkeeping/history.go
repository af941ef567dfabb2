package bookkeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

// HistoryRecorder appends one record per manual test run.
type HistoryRecorder struct {
	history persistence.TestHistoryRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewHistoryRecorder(history persistence.TestHistoryRepository, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{
		history: history,
		logger:  logger.With("module", "test_history"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record stores the event and result of a test run, whatever its outcome.
// occurredAt is the time the test was invoked.
func (r *HistoryRecorder) Record(
	ctx context.Context,
	automation *models.Automation,
	event map[string]any,
	result *models.ExecutionResult,
	occurredAt time.Time,
) (*models.TestHistoryRecord, error) {
	if occurredAt.IsZero() {
		occurredAt = r.now()
	}

	record := &models.TestHistoryRecord{
		ID:           uuid.NewString(),
		AutomationID: automation.ID,
		AppID:        automation.AppID,
		Event:        models.CloneMap(event),
		Output:       result,
		OccurredAt:   occurredAt,
	}

	if err := r.history.Append(ctx, record); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record test run",
			"automation_id", automation.ID, "app_id", automation.AppID, "error", err)

		return nil, err
	}

	return record, nil
}

// List returns the recorded test runs of an automation, newest first.
func (r *HistoryRecorder) List(ctx context.Context, appID, automationID string) ([]*models.TestHistoryRecord, error) {
	return r.history.List(ctx, appID, automationID)
}
