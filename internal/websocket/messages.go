package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/elena/assistant/domain"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeEvent  MessageType = "event"
	MessageTypeStatus MessageType = "status"
	MessageTypePing   MessageType = "ping"
	MessageTypePong   MessageType = "pong"
	MessageTypeError  MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// EventMessage carries one pipeline event to monitor clients
type EventMessage struct {
	BaseMessage
	Event domain.Event `json:"event"`
}

// StatusMessage carries a pipeline status snapshot, sent on connect and on request
type StatusMessage struct {
	BaseMessage
	Status interface{} `json:"status"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

// NewEventMessage wraps a pipeline event
func NewEventMessage(event domain.Event) *EventMessage {
	return &EventMessage{BaseMessage: newBase(MessageTypeEvent), Event: event}
}

// NewStatusMessage wraps a status snapshot
func NewStatusMessage(status interface{}) *StatusMessage {
	return &StatusMessage{BaseMessage: newBase(MessageTypeStatus), Status: status}
}

// NewPongMessage answers a ping, echoing its data
func NewPongMessage(data string) *PongMessage {
	return &PongMessage{BaseMessage: newBase(MessageTypePong), Data: data}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: newBase(MessageTypeError), Code: code, Message: message}
}

// ParseMessage parses a client message. Clients may only send ping and status requests.
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to parse ping message: %w", err)
		}
		return &msg, nil
	case MessageTypeStatus:
		return &base, nil
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}
