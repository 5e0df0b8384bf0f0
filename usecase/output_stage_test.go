package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

func newTestOutputStage(t *testing.T, tts repositories.TextToSpeech, enabled bool) (*OutputStage, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	stage := NewOutputStage(OutputConfig{Enabled: enabled, QueueMaxSize: 4}, tts,
		queue.NewStageQueue[domain.ResponseResult]("responses", 4),
		events, metrics.NewMetrics(nil), zaptest.NewLogger(t))
	t.Cleanup(stage.Close)
	return stage, events
}

func runOutput(t *testing.T, stage *OutputStage, results ...domain.ResponseResult) {
	t.Helper()
	ctx := context.Background()
	for _, r := range results {
		if err := stage.in.Put(ctx, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	stage.in.Close()
	stage.Run(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := stage.WaitSpeech(waitCtx); err != nil {
		t.Fatalf("Speech did not finish: %v", err)
	}
}

func TestOutputStage_SpeaksCleanedReplies(t *testing.T) {
	tts := &fakeTTS{}
	stage, events := newTestOutputStage(t, tts, true)

	runOutput(t, stage,
		domain.ResponseResult{JobID: "1", Text: "[2024-05-01 12:00:00] [Elena]: Ahoj 😊"},
		domain.ResponseResult{JobID: "2", Text: ""},
		domain.ResponseResult{JobID: "3", Text: "🎉"},
	)

	if got := tts.spokenTexts(); fmt.Sprint(got) != fmt.Sprint([]string{"Ahoj"}) {
		t.Errorf("Expected only the cleaned reply to be spoken, got %q", got)
	}
	if events.count(domain.EventSpeechWord) != 1 || events.count(domain.EventSpeechDone) != 1 {
		t.Errorf("Expected one word and one done event")
	}
}

func TestOutputStage_DisabledSpeaksNothing(t *testing.T) {
	tts := &fakeTTS{}
	stage, _ := newTestOutputStage(t, tts, false)

	runOutput(t, stage, domain.ResponseResult{Text: "Ahoj"})

	if got := tts.spokenTexts(); len(got) != 0 {
		t.Errorf("Expected silence, got %q", got)
	}
}

func TestOutputStage_WithoutEngine(t *testing.T) {
	stage, _ := newTestOutputStage(t, nil, true)

	if stage.Enabled() {
		t.Error("Speech cannot be enabled without an engine")
	}
	stage.SetEnabled(true)
	if stage.Enabled() {
		t.Error("SetEnabled must not enable speech without an engine")
	}
	if err := stage.SynthesizeToFile(context.Background(), "Ahoj", "out.wav"); !errors.Is(err, ErrSpeechUnavailable) {
		t.Errorf("Expected ErrSpeechUnavailable, got %v", err)
	}
}

func TestOutputStage_FailureDoesNotBlockNextUtterance(t *testing.T) {
	tts := &fakeTTS{fail: true}
	stage, events := newTestOutputStage(t, tts, true)

	runOutput(t, stage, domain.ResponseResult{Text: "prvá"}, domain.ResponseResult{Text: "druhá"})

	if events.count(domain.EventSpeechError) != 2 {
		t.Errorf("Expected both failures reported, got %d", events.count(domain.EventSpeechError))
	}
}

func TestOutputStage_FallbackJumpsTheQueue(t *testing.T) {
	tts := &fakeTTS{release: make(chan struct{})}
	stage, _ := newTestOutputStage(t, tts, true)

	// "slow" occupies the worker while the others queue up
	stage.handle(domain.ResponseResult{Text: "slow"})
	if !eventually(func() bool { return stage.Speaking() && stage.SpeechQueued() == 0 }) {
		t.Fatal("Worker did not pick up the first utterance")
	}
	stage.handle(domain.ResponseResult{Text: "normálna"})
	stage.handle(domain.ResponseResult{Text: "Prepáč", Fallback: true})
	if stage.SpeechQueued() != 2 {
		t.Fatalf("Expected 2 queued utterances, got %d", stage.SpeechQueued())
	}

	close(tts.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stage.WaitSpeech(ctx); err != nil {
		t.Fatalf("Speech did not finish: %v", err)
	}

	want := []string{"slow", "Prepáč", "normálna"}
	if got := tts.spokenTexts(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestOutputStage_DisablingFlushes(t *testing.T) {
	tts := &fakeTTS{release: make(chan struct{})}
	stage, _ := newTestOutputStage(t, tts, true)

	stage.handle(domain.ResponseResult{Text: "slow"})
	if !eventually(func() bool { return stage.Speaking() && stage.SpeechQueued() == 0 }) {
		t.Fatal("Worker did not pick up the first utterance")
	}
	stage.handle(domain.ResponseResult{Text: "ďalšia"})

	stage.SetEnabled(false)
	if stage.SpeechQueued() != 0 || stage.Speaking() || stage.Enabled() {
		t.Errorf("Disabling speech should cancel and flush the queue")
	}

	stage.handle(domain.ResponseResult{Text: "ignorovaná"})
	if stage.SpeechQueued() != 0 || len(tts.spokenTexts()) != 0 {
		t.Errorf("Nothing should be spoken while disabled")
	}

	stage.SetEnabled(true)
	if !stage.Enabled() {
		t.Error("Expected speech to be enabled again")
	}
}

func TestOutputStage_SynthesizeToFileCleansText(t *testing.T) {
	tts := &fakeTTS{}
	stage, _ := newTestOutputStage(t, tts, true)

	if err := stage.SynthesizeToFile(context.Background(), "Ahoj 🚀", "/tmp/a.wav"); err != nil {
		t.Fatalf("SynthesizeToFile failed: %v", err)
	}
	if tts.files["/tmp/a.wav"] != "Ahoj" {
		t.Errorf("Expected cleaned text, got %q", tts.files["/tmp/a.wav"])
	}
}
