package push

import (
	"context"
	"log/slog"
)

// MockProvider is a mock push provider for local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock push provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the notification instead of sending it.
func (m *MockProvider) Send(ctx context.Context, token string, n *Notification) error {
	m.logger.Info("MOCK PUSH",
		"title", n.Title,
		"body", n.Body,
		"badge", n.Badge)
	return nil
}
