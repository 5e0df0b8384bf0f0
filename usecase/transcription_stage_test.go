package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/queue"
)

func testJob(seq uint64, key float32) domain.StageJob {
	audio := make([]float32, 1600)
	audio[0] = key
	return domain.StageJob{
		ID:    "job",
		Seq:   seq,
		Audio: audio,
		Meta: domain.JobMetadata{
			ReleasedAt:      time.Now(),
			FinalSampleRate: 16000,
		},
	}
}

func TestTranscriptionStage_Transcribe(t *testing.T) {
	stt := &fakeSTT{texts: map[float32][]string{1: {" Ahoj ", "", "ako sa máš? "}}}
	transcripts := queue.NewStageQueue[domain.TranscriptionResult]("transcripts", 1)
	stage := NewTranscriptionStage(
		TranscriptionConfig{Workers: 1, Options: repositories.TranscribeOptions{Language: "sk"}},
		stt, nil, queue.NewReorderer(transcripts, zaptest.NewLogger(t)),
		domain.NopPublisher{}, metrics.NewMetrics(nil), zaptest.NewLogger(t))

	result, err := stage.Transcribe(context.Background(), testJob(7, 1))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "Ahoj ako sa máš?" {
		t.Errorf("Expected trimmed and joined text, got %q", result.Text)
	}
	if result.Seq != 7 || result.Language != "sk" {
		t.Errorf("Unexpected result metadata %+v", result)
	}
	if result.AudioDuration != 100*time.Millisecond {
		t.Errorf("Expected 100ms audio, got %s", result.AudioDuration)
	}
	if result.Timing.Total < result.Timing.FirstSegment {
		t.Errorf("Total %s shorter than first segment %s", result.Timing.Total, result.Timing.FirstSegment)
	}
	if result.Timing.SinceRelease < result.Timing.Total {
		t.Errorf("Since-release latency %s shorter than total %s", result.Timing.SinceRelease, result.Timing.Total)
	}
}

func TestTranscriptionStage_FirstSegmentLatency(t *testing.T) {
	stt := &fakeSTT{
		texts:  map[float32][]string{1: {"jeden"}},
		delays: map[float32]time.Duration{1: 20 * time.Millisecond},
	}
	transcripts := queue.NewStageQueue[domain.TranscriptionResult]("transcripts", 1)
	stage := NewTranscriptionStage(TranscriptionConfig{}, stt, nil,
		queue.NewReorderer(transcripts, zaptest.NewLogger(t)),
		domain.NopPublisher{}, metrics.NewMetrics(nil), zaptest.NewLogger(t))

	result, err := stage.Transcribe(context.Background(), testJob(1, 1))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Timing.FirstSegment < 20*time.Millisecond {
		t.Errorf("Expected first segment after the engine delay, got %s", result.Timing.FirstSegment)
	}
}

func TestTranscriptionStage_RunKeepsCaptureOrderAndDropsFailures(t *testing.T) {
	stt := &fakeSTT{
		texts: map[float32][]string{1: {"prvý"}, 2: {"druhý"}, 3: {"tretí"}, 4: {"štvrtý"}},
		// the first job finishes last
		delays: map[float32]time.Duration{1: 60 * time.Millisecond, 2: 20 * time.Millisecond},
		fail:   map[float32]bool{3: true},
	}
	jobs := queue.NewStageQueue[domain.StageJob]("jobs", 4)
	transcripts := queue.NewStageQueue[domain.TranscriptionResult]("transcripts", 4)
	reorderer := queue.NewReorderer(transcripts, zaptest.NewLogger(t))
	events := &recordingPublisher{}
	m := metrics.NewMetrics(nil)
	stage := NewTranscriptionStage(TranscriptionConfig{Workers: 3}, stt, jobs, reorderer, events, m, zaptest.NewLogger(t))

	ctx := context.Background()
	go reorderer.Run(ctx)
	done := make(chan struct{})
	go func() {
		stage.Run(ctx)
		close(done)
	}()

	for seq := uint64(1); seq <= 4; seq++ {
		if err := jobs.Put(ctx, testJob(seq, float32(seq))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	jobs.Close()

	var got []string
	for {
		result, err := transcripts.Get(ctx)
		if errors.Is(err, queue.ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got = append(got, result.Text)
	}
	<-done

	want := []string{"prvý", "druhý", "štvrtý"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if events.count(domain.EventTranscription) != 3 {
		t.Errorf("Expected 3 transcription events, got %d", events.count(domain.EventTranscription))
	}
}

func TestTranscriptionStage_EmptyTextStillReleased(t *testing.T) {
	stt := &fakeSTT{texts: map[float32][]string{1: {"  "}}}
	jobs := queue.NewStageQueue[domain.StageJob]("jobs", 1)
	transcripts := queue.NewStageQueue[domain.TranscriptionResult]("transcripts", 1)
	reorderer := queue.NewReorderer(transcripts, zaptest.NewLogger(t))
	stage := NewTranscriptionStage(TranscriptionConfig{Workers: 1}, stt, jobs, reorderer, domain.NopPublisher{}, metrics.NewMetrics(nil), zaptest.NewLogger(t))

	ctx := context.Background()
	go reorderer.Run(ctx)
	go stage.Run(ctx)

	if err := jobs.Put(ctx, testJob(1, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	jobs.Close()

	result, err := transcripts.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Expected empty text, got %q", result.Text)
	}
}
