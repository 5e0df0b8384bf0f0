package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// ConversationSession holds the process-wide conversation session id. The id is loaded
// from the store, or created through the backend and persisted, on first use and reused
// for every later call.
type ConversationSession struct {
	backend repositories.Conversation
	store   repositories.SessionIDStore
	logger  *zap.Logger

	mu sync.Mutex
	id string
}

// NewConversationSession creates a new conversation session cache
func NewConversationSession(backend repositories.Conversation, store repositories.SessionIDStore, logger *zap.Logger) *ConversationSession {
	return &ConversationSession{
		backend: backend,
		store:   store,
		logger:  logger,
	}
}

// ID returns the cached session id, resuming the persisted one or creating a new one
// when none is cached yet
func (s *ConversationSession) ID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id, nil
	}

	stored, err := s.store.Load()
	if err != nil {
		s.logger.Warn("Failed to load persisted session, creating a new one", zap.Error(err))
	}
	if stored != "" {
		s.id = stored
		s.logger.Info("Resumed conversation session", zap.String("sessionID", stored))
		return s.id, nil
	}

	id, err := s.backend.CreateSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation session: %w", err)
	}
	if err := s.store.Save(id); err != nil {
		s.logger.Warn("Failed to persist conversation session", zap.String("sessionID", id), zap.Error(err))
	}

	s.id = id
	s.logger.Info("Created conversation session", zap.String("sessionID", id))
	return s.id, nil
}

// Invalidate drops id from the cache if it is still the current one. The next call to
// ID creates a replacement.
func (s *ConversationSession) Invalidate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id {
		return
	}
	s.id = ""
	if err := s.store.Save(""); err != nil {
		s.logger.Warn("Failed to clear persisted session", zap.Error(err))
	}
	s.logger.Warn("Conversation session invalidated", zap.String("sessionID", id))
}

// Current returns the cached id without creating one
func (s *ConversationSession) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
