// Package memory provides in-process implementations of the storage ports.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/elena/assistant/domain/entities"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// SessionRepository keeps conversation histories in memory.
// Stored sessions are copied on the way in and out, so callers never share state.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

// Create implements repositories.SessionRepository
func (m *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	id := session.ID.Hex()
	if _, exists := m.sessions[id]; exists {
		return fmt.Errorf("session %s already exists", id)
	}

	m.sessions[id] = clone(session)
	return nil
}

// GetByID implements repositories.SessionRepository
func (m *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repositories.ErrSessionNotFound, id)
	}
	return clone(session), nil
}

// Update implements repositories.SessionRepository
func (m *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := session.ID.Hex()
	if _, exists := m.sessions[id]; !exists {
		return fmt.Errorf("%w: %s", repositories.ErrSessionNotFound, id)
	}
	m.sessions[id] = clone(session)
	return nil
}

// Count returns the number of stored sessions
func (m *SessionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func clone(session *entities.Session) *entities.Session {
	c := *session
	c.Messages = append([]entities.SessionMessage(nil), session.Messages...)
	if session.LastMessageAt != nil {
		t := *session.LastMessageAt
		c.LastMessageAt = &t
	}
	return &c
}
