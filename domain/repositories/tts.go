package repositories

import (
	"context"
	"time"
)

// TextToSpeech abstracts speech synthesis engines.
// Failures are returned as *domain.TTSError.
type TextToSpeech interface {
	// Synthesize speaks text and returns once playback completed. onBoundary is called for
	// every word as its audio is handed to the output device.
	Synthesize(ctx context.Context, text string, onBoundary func(WordBoundary)) error
	// SynthesizeToFile renders text into a WAV file at path
	SynthesizeToFile(ctx context.Context, text, path string) error
}

// WordBoundary marks which span of the input text the audio currently corresponds to.
// TextOffset and WordLength count runes.
type WordBoundary struct {
	AudioOffset time.Duration `json:"audio_offset"`
	TextOffset  int           `json:"text_offset"`
	WordLength  int           `json:"word_length"`
	Text        string        `json:"text"`
}
