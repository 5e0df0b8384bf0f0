package repositories

import (
	"context"
	"time"
)

// SpeechToText abstracts speech recognition engines
type SpeechToText interface {
	// Transcribe recognises mono float32 audio. onSegment is called once per recognised
	// segment, in order, as soon as the engine produces it.
	Transcribe(ctx context.Context, audio []float32, sampleRate int, opts TranscribeOptions, onSegment func(Segment)) (TranscriptionInfo, error)
}

// TranscribeOptions are the inference parameters passed to the engine
type TranscribeOptions struct {
	Language          string  `json:"language"`
	BeamSize          int     `json:"beam_size"`
	BestOf            int     `json:"best_of"`
	Temperature       float32 `json:"temperature"`
	VADFilter         bool    `json:"vad_filter"`
	NoSpeechThreshold float32 `json:"no_speech_threshold"`
}

// Segment is one recognised span of text
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// TranscriptionInfo describes the recognised audio as a whole
type TranscriptionInfo struct {
	Language            string        `json:"language"`
	LanguageProbability float64       `json:"language_probability"`
	Duration            time.Duration `json:"duration"`
}
