package repositories

import "context"

// Conversation abstracts a conversational backend that keeps context per session
type Conversation interface {
	// CreateSession opens a new conversation context and returns its identifier
	CreateSession(ctx context.Context) (string, error)
	// Send posts a message from author into the session and returns the reply
	Send(ctx context.Context, sessionID, author, message string) (string, error)
}
