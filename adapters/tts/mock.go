package tts

import (
	"context"
	"errors"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

const mockSampleRate = 24000

// MockTextToSpeech is a placeholder implementation for text-to-speech. Every word
// lasts WordDuration of generated audio.
type MockTextToSpeech struct {
	player       repositories.AudioOutput
	logger       *zap.Logger
	WordDuration time.Duration
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service. player may be nil, in
// which case Synthesize only waits out the audio duration.
func NewMockTextToSpeech(player repositories.AudioOutput, logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{
		player:       player,
		logger:       logger,
		WordDuration: 150 * time.Millisecond,
	}
}

// Synthesize implements repositories.TextToSpeech
func (t *MockTextToSpeech) Synthesize(ctx context.Context, text string, onBoundary func(repositories.WordBoundary)) error {
	words := splitWords(text)
	if len(words) == 0 {
		return domain.NewTTSConfigError("synthesize", errors.New("text cannot be empty"))
	}

	t.logger.Info("Processing text-to-speech", zap.Int("words", len(words)))

	var offset time.Duration
	for _, w := range words {
		w.AudioOffset = offset
		if onBoundary != nil {
			onBoundary(w)
		}

		if t.player != nil {
			if err := t.player.Write(ctx, t.tone(t.player.SampleRate())); err != nil {
				return domain.NewTTSServiceError("synthesize", err)
			}
		} else {
			select {
			case <-time.After(t.WordDuration):
			case <-ctx.Done():
				return domain.NewTTSServiceError("synthesize", ctx.Err())
			}
		}
		offset += t.WordDuration
	}
	return nil
}

// SynthesizeToFile implements repositories.TextToSpeech
func (t *MockTextToSpeech) SynthesizeToFile(ctx context.Context, text, path string) error {
	words := splitWords(text)
	if len(words) == 0 {
		return domain.NewTTSConfigError("synthesize to file", errors.New("text cannot be empty"))
	}
	if err := ctx.Err(); err != nil {
		return domain.NewTTSServiceError("synthesize to file", err)
	}

	var samples []int16
	for range words {
		samples = append(samples, t.tone(mockSampleRate)...)
	}
	return writeWAV("synthesize to file", path, samples, mockSampleRate)
}

// tone generates one word worth of a quiet sawtooth
func (t *MockTextToSpeech) tone(rate int) []int16 {
	n := int(t.WordDuration * time.Duration(rate) / time.Second)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16((i%256)-128) * 16
	}
	return samples
}

// splitWords returns the whitespace-separated words of text with rune offsets
func splitWords(text string) []repositories.WordBoundary {
	var words []repositories.WordBoundary
	var current []rune
	start := 0
	offset := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			if len(current) > 0 {
				words = append(words, repositories.WordBoundary{TextOffset: start, WordLength: len(current), Text: string(current)})
				current = nil
			}
		} else {
			if len(current) == 0 {
				start = offset
			}
			current = append(current, r)
		}
		offset++
	}
	if len(current) > 0 {
		words = append(words, repositories.WordBoundary{TextOffset: start, WordLength: len(current), Text: string(current)})
	}
	return words
}
