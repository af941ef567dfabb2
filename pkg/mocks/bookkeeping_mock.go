package mocks

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockUsageMeter is a mock implementation of bookkeeping.UsageMeter interface.
type MockUsageMeter struct {
	mock.Mock
}

func (m *MockUsageMeter) Increment(ctx context.Context, accountKey, counter string, amount int64) error {
	args := m.Called(ctx, accountKey, counter, amount)

	return args.Error(0)
}

// MockWebhookRegistry is a mock implementation of bookkeeping.WebhookRegistry interface.
type MockWebhookRegistry struct {
	mock.Mock
}

func (m *MockWebhookRegistry) Register(ctx context.Context, appID string, automation *models.Automation) (*models.Webhook, error) {
	args := m.Called(ctx, appID, automation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Webhook), args.Error(1)
}

func (m *MockWebhookRegistry) Deregister(ctx context.Context, appID, webhookID string) error {
	args := m.Called(ctx, appID, webhookID)

	return args.Error(0)
}
