package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// ErrModelNotFound is returned when the whisper model file does not exist
var ErrModelNotFound = errors.New("whisper model not found")

var _ repositories.SpeechToText = (*Whisper)(nil)

// Whisper transcribes with a local whisper.cpp model. The bindings share one native
// context per model, so calls are serialized.
type Whisper struct {
	mu      sync.Mutex
	model   whisperlib.Model
	threads uint
	filter  bool
	logger  *zap.Logger
}

// NewWhisper loads the model at modelPath
func NewWhisper(modelPath string, threads int, filterHallucinations bool, logger *zap.Logger) (*Whisper, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model %q: %w", modelPath, err)
	}

	logger.Info("Whisper model loaded",
		zap.String("path", modelPath),
		zap.Bool("multilingual", model.IsMultilingual()))

	return &Whisper{
		model:   model,
		threads: uint(threads),
		filter:  filterHallucinations,
		logger:  logger,
	}, nil
}

// Transcribe runs whisper over audio. BestOf and NoSpeechThreshold have no counterpart
// in the bindings; VADFilter trims low-energy edges before inference.
func (w *Whisper) Transcribe(ctx context.Context, audio []float32, sampleRate int, opts repositories.TranscribeOptions, onSegment func(repositories.Segment)) (repositories.TranscriptionInfo, error) {
	info := repositories.TranscriptionInfo{
		Language: opts.Language,
		Duration: samplesDuration(len(audio), sampleRate),
	}

	if opts.VADFilter {
		audio = TrimSilence(audio, sampleRate)
		if len(audio) == 0 {
			w.logger.Debug("Whisper skipped silent audio")
			return info, nil
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return info, err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return info, fmt.Errorf("failed to create whisper context: %w", err)
	}

	language := opts.Language
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return info, fmt.Errorf("failed to set whisper language %q: %w", language, err)
	}
	if opts.BeamSize > 0 {
		wctx.SetBeamSize(opts.BeamSize)
	}
	wctx.SetTemperature(opts.Temperature)
	if w.threads > 0 {
		wctx.SetThreads(w.threads)
	}
	wctx.SetMaxContext(0)

	segments := 0
	callback := func(seg whisperlib.Segment) {
		text := strings.TrimSpace(seg.Text)
		if text == "" || (w.filter && IsHallucination(text)) {
			return
		}
		segments++
		onSegment(repositories.Segment{Text: text, Start: seg.Start, End: seg.End})
	}

	if err := wctx.Process(audio, nil, callback, nil); err != nil {
		return info, fmt.Errorf("failed to process audio: %w", err)
	}

	if detected := wctx.Language(); detected != "" {
		info.Language = detected
	}
	if opts.Language != "" {
		info.LanguageProbability = 1
	}

	w.logger.Debug("Whisper transcription finished",
		zap.Int("segments", segments),
		zap.String("language", info.Language),
		zap.Duration("audio", info.Duration))

	return info, nil
}

// Close releases the model
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Close()
}
