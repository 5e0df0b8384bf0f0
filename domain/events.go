package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a pipeline event published to monitor clients
type EventType string

const (
	EventCaptureStarted  EventType = "capture_started"
	EventCaptureFinished EventType = "capture_finished"
	EventTranscription   EventType = "transcription"
	EventResponse        EventType = "response"
	EventSpeechWord      EventType = "speech_word"
	EventSpeechDone      EventType = "speech_done"
	EventSpeechError     EventType = "speech_error"
)

// Event is a single pipeline notification
type Event struct {
	ID      string      `json:"id"`
	Type    EventType   `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent creates a new event stamped with the current time
func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Time:    time.Now(),
		Payload: payload,
	}
}

// EventPublisher receives pipeline events. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

// NopPublisher discards all events
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
