package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
	"github.com/satriahrh/elena/assistant/internal/speech"
)

// ErrSpeechUnavailable is returned when no synthesis engine is configured
var ErrSpeechUnavailable = errors.New("speech synthesis unavailable")

// OutputConfig configures the output stage
type OutputConfig struct {
	Enabled      bool
	QueueMaxSize int
}

// OutputStage reports every reply and schedules it for speech. Fallback replies are
// spoken ahead of normal ones.
type OutputStage struct {
	tts     repositories.TextToSpeech
	in      *queue.StageQueue[domain.ResponseResult]
	speech  *speech.Queue
	enabled atomic.Bool
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutputStage creates a new output stage. tts may be nil, which keeps speech disabled.
func NewOutputStage(
	config OutputConfig,
	tts repositories.TextToSpeech,
	in *queue.StageQueue[domain.ResponseResult],
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OutputStage {
	s := &OutputStage{
		tts:     tts,
		in:      in,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	s.speech = speech.NewQueue(speech.SpeakerFunc(s.speak), config.QueueMaxSize, logger.Named("speech"))
	s.speech.OnDrop = func(string) { m.SpeechDropped.Inc() }
	s.enabled.Store(config.Enabled && tts != nil)
	return s
}

// Run consumes replies until the input queue is closed
func (s *OutputStage) Run(ctx context.Context) {
	for {
		result, err := s.in.Get(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				s.logger.Warn("Output stage interrupted", zap.Error(err))
			}
			s.logger.Info("Output stage stopped")
			return
		}
		s.handle(result)
	}
}

func (s *OutputStage) handle(result domain.ResponseResult) {
	transcription := result.Transcription
	fields := []zap.Field{
		zap.String("jobID", result.JobID),
		zap.Uint64("seq", result.Seq),
		zap.String("reply", result.Text),
		zap.Bool("fallback", result.Fallback),
		zap.Int("attempts", result.Timing.Attempts),
		zap.Duration("capture", transcription.Meta.CaptureDuration),
		zap.Duration("transcription", transcription.Timing.Total),
		zap.Duration("first_segment", transcription.Timing.FirstSegment),
		zap.Duration("assistant", result.Timing.Assistant),
	}
	if released := transcription.Meta.ReleasedAt; !released.IsZero() {
		total := s.now().Sub(released)
		s.metrics.UtteranceLatency.Observe(total.Seconds())
		fields = append(fields,
			zap.Duration("first_segment_since_release", transcription.Timing.SinceRelease-transcription.Timing.Total+transcription.Timing.FirstSegment),
			zap.Duration("total", total))
	}
	s.logger.Info("Utterance completed", fields...)

	if !s.enabled.Load() {
		return
	}

	text := speech.Clean(result.Text)
	if text == "" {
		s.logger.Debug("Nothing to speak", zap.String("jobID", result.JobID))
		return
	}

	priority := speech.PriorityNormal
	if result.Fallback {
		priority = speech.PriorityUrgent
	}
	s.speech.Add(text, priority)
}

// speak runs on the speech queue worker
func (s *OutputStage) speak(ctx context.Context, text string) error {
	start := s.now()
	err := s.tts.Synthesize(ctx, text, func(boundary repositories.WordBoundary) {
		s.events.Publish(domain.NewEvent(domain.EventSpeechWord, boundary))
	})
	s.metrics.SpeechDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.SpeechFailures.Inc()
			s.events.Publish(domain.NewEvent(domain.EventSpeechError, map[string]string{"error": err.Error()}))
		}
		return err
	}
	s.events.Publish(domain.NewEvent(domain.EventSpeechDone, map[string]string{"text": text}))
	return nil
}

// SetEnabled turns speech on or off. Turning it off flushes anything queued.
func (s *OutputStage) SetEnabled(enabled bool) {
	if enabled && s.tts == nil {
		s.logger.Warn("Cannot enable speech without a synthesis engine")
		return
	}
	if s.enabled.Swap(enabled) == enabled {
		return
	}
	s.logger.Info("Speech output toggled", zap.Bool("enabled", enabled))
	if !enabled {
		s.speech.Flush()
	}
}

// Enabled reports whether replies are spoken
func (s *OutputStage) Enabled() bool {
	return s.enabled.Load()
}

// SynthesizeToFile renders cleaned text into a WAV file
func (s *OutputStage) SynthesizeToFile(ctx context.Context, text, path string) error {
	if s.tts == nil {
		return ErrSpeechUnavailable
	}
	return s.tts.SynthesizeToFile(ctx, speech.Clean(text), path)
}

// Flush cancels the utterance being spoken and drops queued ones
func (s *OutputStage) Flush() {
	s.speech.Flush()
}

// Close flushes the speech queue and rejects further utterances
func (s *OutputStage) Close() {
	s.speech.Close()
}

// SpeechQueued returns the number of utterances waiting to be spoken
func (s *OutputStage) SpeechQueued() int {
	return s.speech.Len()
}

// Speaking reports whether the speech worker is running
func (s *OutputStage) Speaking() bool {
	return s.speech.Processing()
}

// WaitSpeech blocks until the speech queue is idle
func (s *OutputStage) WaitSpeech(ctx context.Context) error {
	return s.speech.Wait(ctx)
}
