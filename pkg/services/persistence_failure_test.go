package services_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/testutil"
	"github.com/dukex/autoflow/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockedService(t *testing.T) (*services.Automation, *mocks.MockPersistence) {
	t.Helper()

	p := mocks.NewMockPersistence()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultSteps(nil)

	dispatcher := orchestrator.NewInlineDispatcher(orchestrator.New(reg, slog.Default()))
	matcher := trigger.NewMatcher(reg, dispatcher, bookkeeping.NewLogUsageMeter(slog.Default()), slog.Default())

	return services.NewAutomation(p, reg, matcher, slog.Default()), p
}

func TestAutomation_UnhealthyPersistence(t *testing.T) {
	service, p := newMockedService(t)
	p.On("HealthCheck", mock.Anything).Return(errors.New("disk full")).Once()

	message, ok := service.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "disk full")
	p.AssertExpectations(t)
}

func TestAutomation_FetchFailureIsNotClassified(t *testing.T) {
	service, p := newMockedService(t)
	p.GetMockAutomationRepository().On("AllDocs", mock.Anything, "app_1").
		Return(nil, errors.New("connection reset")).Once()

	_, err := service.Fetch(context.Background(), "app_1")
	require.Error(t, err)
	assert.False(t, services.IsValidationError(err))
	assert.False(t, services.IsNotFoundError(err))
	assert.False(t, services.IsConflictError(err))
}

func TestAutomation_TestSucceedsWhenHistoryFails(t *testing.T) {
	service, p := newMockedService(t)

	automation := testutil.CreateTestAutomation(testutil.WithAppID("app_1"))

	p.GetMockAutomationRepository().On("Get", mock.Anything, "app_1", automation.ID).Return(automation, nil).Once()
	p.GetMockTestHistoryRepository().On("Append", mock.Anything, mock.MatchedBy(func(r *models.TestHistoryRecord) bool {
		return r.AutomationID == automation.ID && r.Output != nil
	})).Return(errors.New("read-only file system")).Once()

	result, err := service.Test(context.Background(), "app_1", automation.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)

	p.GetMockAutomationRepository().AssertExpectations(t)
	p.GetMockTestHistoryRepository().AssertExpectations(t)
}

func TestAutomation_DeleteWebhookFailureIsLogged(t *testing.T) {
	service, p := newMockedService(t)

	automation := testutil.CreateTestAutomation(
		testutil.WithAppID("app_1"),
		testutil.WithTrigger("WEBHOOK", map[string]any{}),
	)
	automation.Rev = "1-abc"
	automation.Definition.Trigger.WebhookID = "wh_1"

	automations := p.GetMockAutomationRepository()
	automations.On("Get", mock.Anything, "app_1", automation.ID).Return(automation, nil).Once()
	automations.On("Remove", mock.Anything, "app_1", automation.ID, "1-abc").Return(nil).Once()
	p.GetMockWebhookRepository().On("Delete", mock.Anything, "app_1", "wh_1").Return(errors.New("gone")).Once()

	require.NoError(t, service.Destroy(context.Background(), "app_1", automation.ID, "1-abc"))

	automations.AssertExpectations(t)
	p.GetMockWebhookRepository().AssertExpectations(t)
}
