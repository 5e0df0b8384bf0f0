package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

const defaultCallTimeout = 30 * time.Second

// ResponseConfig configures the response stage retry policy
type ResponseConfig struct {
	Author string
	// MaxAttempts is the total number of calls made before falling back
	MaxAttempts     int
	InitialBackoff  time.Duration
	CallTimeout     time.Duration
	FallbackMessage string
}

// ResponseStage sends transcriptions to the conversational backend one at a time.
// Failed calls are retried with doubling backoff; when every attempt failed the
// fallback message is produced instead.
type ResponseStage struct {
	config  ResponseConfig
	backend repositories.Conversation
	session *ConversationSession
	in      *queue.StageQueue[domain.TranscriptionResult]
	out     *queue.StageQueue[domain.ResponseResult]
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResponseStage creates a new response stage
func NewResponseStage(
	config ResponseConfig,
	backend repositories.Conversation,
	session *ConversationSession,
	in *queue.StageQueue[domain.TranscriptionResult],
	out *queue.StageQueue[domain.ResponseResult],
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ResponseStage {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	return &ResponseStage{
		config:  config,
		backend: backend,
		session: session,
		in:      in,
		out:     out,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Run consumes transcriptions until the input queue is closed. The output queue is
// closed on return.
func (s *ResponseStage) Run(ctx context.Context) {
	defer s.out.Close()

	for {
		transcription, err := s.in.Get(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				s.logger.Warn("Response stage interrupted", zap.Error(err))
			}
			s.logger.Info("Response stage stopped")
			return
		}

		if strings.TrimSpace(transcription.Text) == "" {
			s.logger.Debug("Dropping empty transcription", zap.String("jobID", transcription.JobID))
			continue
		}

		result := s.Respond(ctx, transcription)
		s.events.Publish(domain.NewEvent(domain.EventResponse, result))

		if err := s.out.Put(ctx, result); err != nil {
			s.logger.Warn("Failed to enqueue response",
				zap.String("jobID", result.JobID),
				zap.Error(err))
		}
	}
}

// Respond produces the reply for one transcription. It never fails: exhausted retries
// yield the fallback message.
func (s *ResponseStage) Respond(ctx context.Context, transcription domain.TranscriptionResult) domain.ResponseResult {
	result := domain.ResponseResult{
		JobID:         transcription.JobID,
		Seq:           transcription.Seq,
		Transcription: transcription,
	}

	start := s.now()
	backoff := s.config.InitialBackoff
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		s.metrics.ResponseAttempts.Inc()
		result.Timing.Attempts = attempt

		reply, err := s.attempt(ctx, transcription.Text)
		if err == nil {
			result.Text = reply
			result.Timing.Assistant = s.now().Sub(start)
			s.metrics.ResponseDuration.Observe(result.Timing.Assistant.Seconds())
			s.logger.Info("Response received",
				zap.String("jobID", transcription.JobID),
				zap.Int("attempt", attempt),
				zap.String("text", reply),
				zap.Duration("latency", result.Timing.Assistant))
			return result
		}

		s.logger.Warn("Conversational backend call failed",
			zap.String("jobID", transcription.JobID),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", s.config.MaxAttempts),
			zap.Error(err))

		if attempt == s.config.MaxAttempts || ctx.Err() != nil {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}

	s.metrics.ResponseFallbacks.Inc()
	result.Text = s.config.FallbackMessage
	result.Fallback = true
	result.Timing.Assistant = s.now().Sub(start)
	s.logger.Error("All attempts failed, using fallback message",
		zap.String("jobID", transcription.JobID),
		zap.Int("attempts", result.Timing.Attempts))
	return result
}

// attempt makes one bounded call; a timeout counts as a failure
func (s *ResponseStage) attempt(ctx context.Context, text string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	sessionID, err := s.session.ID(callCtx)
	if err != nil {
		return "", err
	}

	reply, err := s.backend.Send(callCtx, sessionID, s.config.Author, text)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			s.session.Invalidate(sessionID)
		}
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("call timed out after %s: %w", s.config.CallTimeout, err)
		}
		return "", err
	}
	return reply, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
