package stt

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// MockSpeechToText returns canned Slovak phrases picked by audio length
type MockSpeechToText struct {
	logger *zap.Logger
	delay  time.Duration
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		logger: logger,
		delay:  100 * time.Millisecond,
	}
}

// Transcribe simulates recognition latency and reports one segment
func (m *MockSpeechToText) Transcribe(ctx context.Context, audio []float32, sampleRate int, opts repositories.TranscribeOptions, onSegment func(repositories.Segment)) (repositories.TranscriptionInfo, error) {
	duration := samplesDuration(len(audio), sampleRate)
	m.logger.Info("Processing mock transcription",
		zap.Int("samples", len(audio)),
		zap.Duration("duration", duration),
		zap.String("language", opts.Language))

	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return repositories.TranscriptionInfo{}, ctx.Err()
	}

	var text string
	switch {
	case duration > 5*time.Second:
		text = "Ahoj Elena, ako sa máš? Chcem ti porozprávať o dnešku."
	case duration > 2*time.Second:
		text = "Ďakujem, že ma počúvaš."
	case duration > 500*time.Millisecond:
		text = "Ahoj Elena!"
	default:
		text = "Ahoj"
	}

	onSegment(repositories.Segment{Text: text, End: duration})
	return repositories.TranscriptionInfo{
		Language:            opts.Language,
		LanguageProbability: 1,
		Duration:            duration,
	}, nil
}
