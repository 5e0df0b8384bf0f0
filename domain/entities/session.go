package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus represents the status of a conversation session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusTerminated SessionStatus = "terminated"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// SessionMessage represents a message within a session
type SessionMessage struct {
	Timestamp  time.Time   `json:"timestamp" bson:"timestamp"`
	Role       MessageRole `json:"role" bson:"role"`
	Author     string      `json:"author" bson:"author"`
	Content    string      `json:"content" bson:"content"`
	DurationMs int         `json:"duration_ms" bson:"duration_ms"`
}

// SessionMetadata contains session-level metadata
type SessionMetadata struct {
	Language string `json:"language" bson:"language"`
	Model    string `json:"model" bson:"model"`
}

// Session is a persistent conversation between the user and the assistant.
// Its hex ID is what gets stored in the session file.
type Session struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Assistant     string             `json:"assistant" bson:"assistant"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	Status        SessionStatus      `json:"status" bson:"status"`
	Messages      []SessionMessage   `json:"messages" bson:"messages"`
	Metadata      SessionMetadata    `json:"metadata" bson:"metadata"`
}

// NewSession creates a new session for an assistant persona
func NewSession(assistant, language string) *Session {
	now := time.Now()
	return &Session{
		ID:           primitive.NewObjectID(),
		Assistant:    assistant,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       SessionStatusActive,
		Messages:     make([]SessionMessage, 0),
		Metadata: SessionMetadata{
			Language: language,
		},
	}
}

// AddMessage adds a new message to the session
func (s *Session) AddMessage(role MessageRole, author, content string, durationMs int) {
	now := time.Now()
	s.Messages = append(s.Messages, SessionMessage{
		Timestamp:  now,
		Role:       role,
		Author:     author,
		Content:    content,
		DurationMs: durationMs,
	})
	s.LastMessageAt = &now
	s.LastActiveAt = now
}

// RecentHistory returns at most limit of the newest messages, oldest first.
// A limit <= 0 returns the whole history.
func (s *Session) RecentHistory(limit int) []SessionMessage {
	if limit <= 0 || len(s.Messages) <= limit {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-limit:]
}

// IsActive reports whether the session still accepts messages
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.LastActiveAt = time.Now()
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.Assistant == "" {
		return errors.New("assistant is required")
	}

	if s.Status != SessionStatusActive && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}

	return nil
}
