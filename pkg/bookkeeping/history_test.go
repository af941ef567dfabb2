package bookkeeping_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecorder_RecordsSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	recorder := bookkeeping.NewHistoryRecorder(file.NewPersistence(t.TempDir()).TestHistory(), slog.Default())
	automation := automationWithTrigger("APP", "")

	invokedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := map[string]any{"fields": map[string]any{"a": 1}}

	_, err := recorder.Record(ctx, automation, event,
		&models.ExecutionResult{Status: models.RunStatusCompleted}, invokedAt)
	require.NoError(t, err)

	_, err = recorder.Record(ctx, automation, event,
		&models.ExecutionResult{Status: models.RunStatusFailed, Error: "boom"}, invokedAt.Add(time.Minute))
	require.NoError(t, err)

	records, err := recorder.List(ctx, "app_1", "au_1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.RunStatusFailed, records[0].Output.Status)
	assert.Equal(t, "boom", records[0].Output.Error)
	assert.True(t, records[0].OccurredAt.Equal(invokedAt.Add(time.Minute)))
	assert.Equal(t, models.RunStatusCompleted, records[1].Output.Status)
}

func TestHistoryRecorder_DefaultsOccurredAt(t *testing.T) {
	history := &mocks.MockTestHistoryRepository{}
	history.On("Append", mock.Anything, mock.MatchedBy(func(r *models.TestHistoryRecord) bool {
		return !r.OccurredAt.IsZero() && r.AutomationID == "au_1" && r.AppID == "app_1"
	})).Return(nil).Once()

	recorder := bookkeeping.NewHistoryRecorder(history, slog.Default())

	record, err := recorder.Record(context.Background(), automationWithTrigger("APP", ""), nil, nil, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	history.AssertExpectations(t)
}

func TestHistoryRecorder_ReturnsStoreError(t *testing.T) {
	history := &mocks.MockTestHistoryRepository{}
	history.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	recorder := bookkeeping.NewHistoryRecorder(history, slog.Default())

	_, err := recorder.Record(context.Background(), automationWithTrigger("APP", ""), nil, nil, time.Now())
	require.EqualError(t, err, "disk full")
}
