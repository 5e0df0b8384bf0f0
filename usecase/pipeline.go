package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

// ErrAlreadyStarted is returned by Start on a running pipeline
var ErrAlreadyStarted = errors.New("pipeline already started")

const queueSampleInterval = time.Second

// PipelineConfig sizes the stage queues and configures every stage
type PipelineConfig struct {
	JobQueueSize        int
	TranscriptQueueSize int
	ResponseQueueSize   int
	Capture             CaptureConfig
	Transcription       TranscriptionConfig
	Response            ResponseConfig
	Output              OutputConfig
}

// PipelineDeps are the adapters the pipeline runs on
type PipelineDeps struct {
	Input        repositories.AudioInput
	STT          repositories.SpeechToText
	Conversation repositories.Conversation
	SessionStore repositories.SessionIDStore
	// TTS may be nil when speech output is not configured
	TTS     repositories.TextToSpeech
	Events  domain.EventPublisher
	Metrics *metrics.Metrics
}

// QueueStatus is the fill level of one stage queue
type QueueStatus struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

// PipelineStatus is a point-in-time snapshot of the pipeline
type PipelineStatus struct {
	Running      bool                   `json:"running"`
	CaptureState string                 `json:"capture_state"`
	Queues       map[string]QueueStatus `json:"queues"`
	SessionID    string                 `json:"session_id"`
	SpeechQueued int                    `json:"speech_queued"`
	Speaking     bool                   `json:"speaking"`
	TTSEnabled   bool                   `json:"tts_enabled"`
}

// Pipeline wires capture, transcription, response and output stages together through
// bounded queues
type Pipeline struct {
	jobs        *queue.StageQueue[domain.StageJob]
	transcripts *queue.StageQueue[domain.TranscriptionResult]
	responses   *queue.StageQueue[domain.ResponseResult]
	reorderer   *queue.Reorderer[domain.TranscriptionResult]

	capture       *CaptureService
	transcription *TranscriptionStage
	response      *ResponseStage
	output        *OutputStage
	session       *ConversationSession
	metrics       *metrics.Metrics
	logger        *zap.Logger

	mu                sync.Mutex
	running           bool
	cancel            context.CancelFunc
	transcriptionDone chan struct{}
	reorderDone       chan struct{}
	responseDone      chan struct{}
	outputDone        chan struct{}
	samplerDone       chan struct{}
}

// NewPipeline creates a new pipeline
func NewPipeline(config PipelineConfig, deps PipelineDeps, logger *zap.Logger) *Pipeline {
	events := deps.Events
	if events == nil {
		events = domain.NopPublisher{}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics(nil)
	}

	jobs := queue.NewStageQueue[domain.StageJob]("jobs", config.JobQueueSize)
	transcripts := queue.NewStageQueue[domain.TranscriptionResult]("transcripts", config.TranscriptQueueSize)
	responses := queue.NewStageQueue[domain.ResponseResult]("responses", config.ResponseQueueSize)
	reorderer := queue.NewReorderer(transcripts, logger.Named("reorder"))
	session := NewConversationSession(deps.Conversation, deps.SessionStore, logger.Named("session"))

	return &Pipeline{
		jobs:          jobs,
		transcripts:   transcripts,
		responses:     responses,
		reorderer:     reorderer,
		capture:       NewCaptureService(config.Capture, deps.Input, jobs, events, m, logger.Named("capture")),
		transcription: NewTranscriptionStage(config.Transcription, deps.STT, jobs, reorderer, events, m, logger.Named("transcription")),
		response:      NewResponseStage(config.Response, deps.Conversation, session, transcripts, responses, events, m, logger.Named("response")),
		output:        NewOutputStage(config.Output, deps.TTS, responses, events, m, logger.Named("output")),
		session:       session,
		metrics:       m,
		logger:        logger,
	}
}

// Start runs every stage and opens the audio input. The stages keep the values of ctx
// but not its cancellation: they run until Shutdown drains them or its deadline expires.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.running = true
	p.transcriptionDone = goDone(func() { p.transcription.Run(ctx) })
	p.reorderDone = goDone(func() { p.reorderer.Run(ctx) })
	p.responseDone = goDone(func() { p.response.Run(ctx) })
	p.outputDone = goDone(func() { p.output.Run(ctx) })
	p.samplerDone = goDone(func() { p.sampleQueues(ctx) })
	p.mu.Unlock()

	if err := p.capture.Start(ctx); err != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			p.logger.Warn("Failed to shut down after start failure", zap.Error(shutdownErr))
		}
		return err
	}

	p.logger.Info("Pipeline started")
	return nil
}

// Shutdown stops the pipeline stage by stage: the audio input first, then each queue
// is closed once its producers have finished, and finally the speech queue is flushed.
// If ctx expires first, the remaining stages are cancelled.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()
	defer cancel()

	p.logger.Info("Shutting down pipeline")

	p.capture.Stop()
	p.jobs.Close()

	steps := []struct {
		name string
		done chan struct{}
	}{
		{"transcription", p.transcriptionDone},
		{"reorder", p.reorderDone},
		{"response", p.responseDone},
		{"output", p.outputDone},
	}

	var err error
	for _, step := range steps {
		select {
		case <-step.done:
			p.logger.Debug("Stage finished", zap.String("stage", step.name))
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("failed to stop %s stage in time: %w", step.name, ctx.Err())
				p.logger.Warn("Shutdown deadline reached, cancelling stages", zap.String("stage", step.name))
				cancel()
			}
			<-step.done
		}
	}

	p.output.Close()
	cancel()
	<-p.samplerDone

	p.logger.Info("Pipeline stopped")
	return err
}

// Press forwards a push-to-talk key-down edge
func (p *Pipeline) Press() {
	p.capture.Press()
}

// Release forwards a push-to-talk key-up edge
func (p *Pipeline) Release() {
	p.capture.Release()
}

// SetSpeechEnabled turns reply speech on or off
func (p *Pipeline) SetSpeechEnabled(enabled bool) {
	p.output.SetEnabled(enabled)
}

// SynthesizeToFile renders text into a WAV file with the configured engine
func (p *Pipeline) SynthesizeToFile(ctx context.Context, text, path string) error {
	return p.output.SynthesizeToFile(ctx, text, path)
}

// Status returns a snapshot of the pipeline state
func (p *Pipeline) Status() PipelineStatus {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return PipelineStatus{
		Running:      running,
		CaptureState: p.capture.State().String(),
		Queues: map[string]QueueStatus{
			p.jobs.Name():        {Len: p.jobs.Len(), Cap: p.jobs.Cap()},
			p.transcripts.Name(): {Len: p.transcripts.Len(), Cap: p.transcripts.Cap()},
			p.responses.Name():   {Len: p.responses.Len(), Cap: p.responses.Cap()},
		},
		SessionID:    p.session.Current(),
		SpeechQueued: p.output.SpeechQueued(),
		Speaking:     p.output.Speaking(),
		TTSEnabled:   p.output.Enabled(),
	}
}

func (p *Pipeline) sampleQueues(ctx context.Context) {
	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.metrics.QueueDepth.WithLabelValues(p.jobs.Name()).Set(float64(p.jobs.Len()))
			p.metrics.QueueDepth.WithLabelValues(p.transcripts.Name()).Set(float64(p.transcripts.Len()))
			p.metrics.QueueDepth.WithLabelValues(p.responses.Name()).Set(float64(p.responses.Len()))
			p.metrics.QueueDepth.WithLabelValues("speech").Set(float64(p.output.SpeechQueued()))
		case <-ctx.Done():
			return
		}
	}
}

func goDone(fn func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}
