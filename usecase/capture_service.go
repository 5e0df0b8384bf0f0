package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/capture"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

const defaultDispatchBuffer = 4

// CaptureConfig configures the capture service
type CaptureConfig struct {
	Stream          repositories.AudioStreamConfig
	Capture         capture.Config
	ModelSampleRate int
	// DispatchBuffer is how many finished sessions may wait for finalization
	DispatchBuffer int
}

// CaptureService binds audio blocks and push-to-talk edges to the capture machine.
// Finished sessions are handed from the audio callback to a dispatcher goroutine, which
// finalizes them and puts the jobs on the job queue, so the callback never waits on
// queue back-pressure.
type CaptureService struct {
	config  CaptureConfig
	input   repositories.AudioInput
	machine *capture.Machine
	jobs    *queue.StageQueue[domain.StageJob]
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger

	sessions chan *capture.Session

	mu        sync.Mutex
	stream    repositories.AudioStream
	finalizer capture.Finalizer
	seq       uint64
	done      chan struct{}
	stopOnce  sync.Once
}

// NewCaptureService creates a new capture service
func NewCaptureService(
	config CaptureConfig,
	input repositories.AudioInput,
	jobs *queue.StageQueue[domain.StageJob],
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CaptureService {
	if config.DispatchBuffer < 1 {
		config.DispatchBuffer = defaultDispatchBuffer
	}
	if config.Capture.SampleRate == 0 {
		config.Capture.SampleRate = config.Stream.SampleRate
	}
	if config.Capture.BlockSize == 0 {
		config.Capture.BlockSize = config.Stream.BlockSize
	}

	return &CaptureService{
		config:   config,
		input:    input,
		machine:  capture.NewMachine(config.Capture),
		jobs:     jobs,
		events:   events,
		metrics:  m,
		logger:   logger,
		sessions: make(chan *capture.Session, config.DispatchBuffer),
		finalizer: capture.Finalizer{
			RecordSampleRate: config.Stream.SampleRate,
			ModelSampleRate:  config.ModelSampleRate,
			DeviceKind:       "unknown",
		},
	}
}

// Start opens the input stream and starts the dispatcher
func (s *CaptureService) Start(ctx context.Context) error {
	stream, err := s.input.Open(s.config.Stream, s.onBlock)
	if err != nil {
		return fmt.Errorf("failed to open audio input: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.finalizer.DeviceKind = "portaudio:" + stream.DeviceName()
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.dispatch(ctx, s.done)

	if err := stream.Start(); err != nil {
		s.Stop()
		return fmt.Errorf("failed to start audio input: %w", err)
	}

	s.logger.Info("Audio capture started",
		zap.String("device", stream.DeviceName()),
		zap.Int("sampleRate", s.config.Stream.SampleRate),
		zap.Int("blockSize", s.config.Stream.BlockSize),
		zap.Int("preRollBlocks", s.machine.PreRollBlocks()),
		zap.Int("postRollBlocks", s.machine.PostRollBlocks()))
	return nil
}

// Press handles a push-to-talk key-down edge
func (s *CaptureService) Press() {
	if !s.machine.Press() {
		s.logger.Debug("Press ignored", zap.Stringer("state", s.machine.State()))
		return
	}
	s.logger.Info("Recording started")
	s.events.Publish(domain.NewEvent(domain.EventCaptureStarted, nil))
}

// Release handles a push-to-talk key-up edge
func (s *CaptureService) Release() {
	if !s.machine.Release() {
		s.logger.Debug("Release ignored", zap.Stringer("state", s.machine.State()))
		return
	}
	s.logger.Info("Recording stopped, draining post-roll")
}

// onBlock runs on the audio driver goroutine
func (s *CaptureService) onBlock(block domain.AudioBlock) {
	session, finished := s.machine.Process(block)
	if !finished {
		return
	}

	select {
	case s.sessions <- session:
	default:
		s.metrics.CaptureDropped.WithLabelValues("dispatch_full").Inc()
		s.logger.Warn("Dispatcher busy, dropping capture session",
			zap.Int("frames", len(session.Frames)))
	}
}

func (s *CaptureService) dispatch(ctx context.Context, done chan struct{}) {
	defer close(done)

	for session := range s.sessions {
		job, err := s.finalizer.Finalize(session, s.seq+1)
		if err != nil {
			reason := "finalize"
			if errors.Is(err, capture.ErrNoFrames) {
				reason = "empty"
			}
			s.metrics.CaptureDropped.WithLabelValues(reason).Inc()
			s.logger.Warn("Dropping capture session", zap.Error(err))
			continue
		}
		s.seq++

		s.metrics.CaptureSessions.Inc()
		s.metrics.CaptureDuration.Observe(job.Meta.CaptureDuration.Seconds())
		s.logger.Info("Capture finalized",
			zap.String("jobID", job.ID),
			zap.Uint64("seq", job.Seq),
			zap.Int("frames", job.Meta.FrameCount),
			zap.Duration("duration", job.Meta.CaptureDuration),
			zap.Int("sampleRate", job.Meta.FinalSampleRate))
		s.events.Publish(domain.NewEvent(domain.EventCaptureFinished, job.Meta))

		if err := s.jobs.Put(ctx, job); err != nil {
			s.metrics.CaptureDropped.WithLabelValues("queue_closed").Inc()
			s.logger.Warn("Failed to enqueue job",
				zap.String("jobID", job.ID),
				zap.Error(err))
		}
	}
}

// Stop closes the input stream and waits for the dispatcher to hand off every
// finished session. No block is processed after Stop returns.
func (s *CaptureService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		stream, done := s.stream, s.done
		s.mu.Unlock()

		if stream != nil {
			if err := stream.Close(); err != nil {
				s.logger.Warn("Failed to close audio input", zap.Error(err))
			}
		}
		close(s.sessions)
		if done != nil {
			<-done
		}
		s.logger.Info("Audio capture stopped", zap.Uint64("jobs", s.seq))
	})
}

// State returns the current capture state
func (s *CaptureService) State() domain.CaptureState {
	return s.machine.State()
}
