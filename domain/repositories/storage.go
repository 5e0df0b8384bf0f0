package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/elena/assistant/domain/entities"
)

// ErrSessionNotFound is returned when a stored conversation session does not exist
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository stores conversation history for history-based backends
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
}

// SessionIDStore persists the identifier of the active conversation session
type SessionIDStore interface {
	// Load returns the stored identifier, or "" when nothing is stored
	Load() (string, error)
	Save(id string) error
}
