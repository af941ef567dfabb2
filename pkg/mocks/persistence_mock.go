package mocks

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockAutomationRepository is a mock implementation of persistence.AutomationRepository interface.
type MockAutomationRepository struct {
	mock.Mock
}

func (m *MockAutomationRepository) Get(ctx context.Context, appID, id string) (*models.Automation, error) {
	args := m.Called(ctx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) Put(ctx context.Context, automation *models.Automation) (string, error) {
	args := m.Called(ctx, automation)

	return args.String(0), args.Error(1)
}

func (m *MockAutomationRepository) Remove(ctx context.Context, appID, id, rev string) error {
	args := m.Called(ctx, appID, id, rev)

	return args.Error(0)
}

func (m *MockAutomationRepository) AllDocs(ctx context.Context, appID string) ([]*models.Automation, error) {
	args := m.Called(ctx, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Automation), args.Error(1)
}

// MockWebhookRepository is a mock implementation of persistence.WebhookRepository interface.
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) Get(ctx context.Context, appID, id string) (*models.Webhook, error) {
	args := m.Called(ctx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	args := m.Called(ctx, webhook)

	return args.Error(0)
}

func (m *MockWebhookRepository) Delete(ctx context.Context, appID, id string) error {
	args := m.Called(ctx, appID, id)

	return args.Error(0)
}

// MockTestHistoryRepository is a mock implementation of persistence.TestHistoryRepository interface.
type MockTestHistoryRepository struct {
	mock.Mock
}

func (m *MockTestHistoryRepository) Append(ctx context.Context, record *models.TestHistoryRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockTestHistoryRepository) List(ctx context.Context, appID, automationID string) ([]*models.TestHistoryRecord, error) {
	args := m.Called(ctx, appID, automationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TestHistoryRecord), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	automationRepo  *MockAutomationRepository
	webhookRepo     *MockWebhookRepository
	testHistoryRepo *MockTestHistoryRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		automationRepo:  &MockAutomationRepository{},
		webhookRepo:     &MockWebhookRepository{},
		testHistoryRepo: &MockTestHistoryRepository{},
	}
}

func (m *MockPersistence) GetMockAutomationRepository() *MockAutomationRepository {
	return m.automationRepo
}

func (m *MockPersistence) GetMockWebhookRepository() *MockWebhookRepository {
	return m.webhookRepo
}

func (m *MockPersistence) GetMockTestHistoryRepository() *MockTestHistoryRepository {
	return m.testHistoryRepo
}

func (m *MockPersistence) Automations() persistence.AutomationRepository {
	return m.automationRepo
}

func (m *MockPersistence) Webhooks() persistence.WebhookRepository {
	return m.webhookRepo
}

func (m *MockPersistence) TestHistory() persistence.TestHistoryRepository {
	return m.testHistoryRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
