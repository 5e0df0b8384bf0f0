package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

// TranscriptionConfig configures the transcription worker pool
type TranscriptionConfig struct {
	Workers int
	Options repositories.TranscribeOptions
}

// TranscriptionStage pulls jobs from the job queue with a pool of workers. Results are
// released through a reorderer so they leave the stage in capture order.
type TranscriptionStage struct {
	config    TranscriptionConfig
	stt       repositories.SpeechToText
	jobs      *queue.StageQueue[domain.StageJob]
	reorderer *queue.Reorderer[domain.TranscriptionResult]
	events    domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewTranscriptionStage creates a new transcription stage
func NewTranscriptionStage(
	config TranscriptionConfig,
	stt repositories.SpeechToText,
	jobs *queue.StageQueue[domain.StageJob],
	reorderer *queue.Reorderer[domain.TranscriptionResult],
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TranscriptionStage {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &TranscriptionStage{
		config:    config,
		stt:       stt,
		jobs:      jobs,
		reorderer: reorderer,
		events:    events,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Run starts the workers and blocks until all of them have seen the closed job queue.
// The reorderer input is closed on return.
func (s *TranscriptionStage) Run(ctx context.Context) {
	defer s.reorderer.CloseInput()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	s.logger.Info("Transcription stage stopped")
}

func (s *TranscriptionStage) work(ctx context.Context, worker int) {
	logger := s.logger.With(zap.Int("worker", worker))
	for {
		job, err := s.jobs.Get(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				logger.Warn("Transcription worker interrupted", zap.Error(err))
			}
			return
		}

		result, err := s.Transcribe(ctx, job)
		if err != nil {
			s.metrics.TranscriptionFailures.Inc()
			logger.Error("Failed to transcribe job, dropping it",
				zap.String("jobID", job.ID),
				zap.Uint64("seq", job.Seq),
				zap.Error(err))
			s.reorderer.Skip(job.Seq)
			continue
		}

		if result.Text == "" {
			s.metrics.TranscriptionsEmpty.Inc()
		}
		logger.Info("Transcription completed",
			zap.String("jobID", job.ID),
			zap.Uint64("seq", job.Seq),
			zap.String("text", result.Text),
			zap.String("language", result.Language),
			zap.Duration("firstSegment", result.Timing.FirstSegment),
			zap.Duration("total", result.Timing.Total))
		s.events.Publish(domain.NewEvent(domain.EventTranscription, result))
		s.reorderer.Emit(job.Seq, result)
	}
}

// Transcribe runs one job through the engine and measures first-segment and total latency
func (s *TranscriptionStage) Transcribe(ctx context.Context, job domain.StageJob) (domain.TranscriptionResult, error) {
	start := s.now()
	var firstSegment time.Duration
	var parts []string

	info, err := s.stt.Transcribe(ctx, job.Audio, job.Meta.FinalSampleRate, s.config.Options, func(segment repositories.Segment) {
		if firstSegment == 0 {
			firstSegment = s.now().Sub(start)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	})
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("failed to transcribe: %w", err)
	}

	finished := s.now()
	total := finished.Sub(start)
	timing := domain.TranscriptionTiming{
		FirstSegment: firstSegment,
		Total:        total,
	}
	if !job.Meta.ReleasedAt.IsZero() {
		timing.SinceRelease = finished.Sub(job.Meta.ReleasedAt)
	}

	s.metrics.TranscriptionDuration.Observe(total.Seconds())
	if firstSegment > 0 {
		s.metrics.TranscriptionFirstSegment.Observe(firstSegment.Seconds())
	}

	return domain.TranscriptionResult{
		JobID:               job.ID,
		Seq:                 job.Seq,
		Text:                strings.Join(parts, " "),
		Language:            info.Language,
		LanguageProbability: info.LanguageProbability,
		AudioDuration:       info.Duration,
		Timing:              timing,
		Meta:                job.Meta,
	}, nil
}
