package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockConversation answers every message with a canned Slovak reply
type MockConversation struct {
	logger *zap.Logger
}

// NewMockConversation creates a new mock conversational backend
func NewMockConversation(logger *zap.Logger) *MockConversation {
	return &MockConversation{logger: logger}
}

// CreateSession returns a random session identifier
func (m *MockConversation) CreateSession(ctx context.Context) (string, error) {
	return "mock-" + uuid.NewString(), nil
}

// Send echoes the message back
func (m *MockConversation) Send(ctx context.Context, sessionID, author, message string) (string, error) {
	m.logger.Info("Processing mock message",
		zap.String("session_id", sessionID),
		zap.String("author", author))

	if message == "" {
		return "Ahoj! Som Elena. O čom sa chceš porozprávať?", nil
	}
	return fmt.Sprintf("Ďakujem, že si mi to povedal! Počula som: „%s“. Čo ďalej?", message), nil
}
