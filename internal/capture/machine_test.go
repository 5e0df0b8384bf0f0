package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/satriahrh/elena/assistant/domain"
)

// 100-sample blocks at 1 kHz: 3 pre-roll blocks, 2 post-roll blocks
func testConfig() Config {
	return Config{
		SampleRate: 1000,
		BlockSize:  100,
		PreRoll:    300 * time.Millisecond,
		PostRoll:   200 * time.Millisecond,
	}
}

func block(value float32) domain.AudioBlock {
	b := make(domain.AudioBlock, 100)
	for i := range b {
		b[i] = value
	}
	return b
}

func TestMachine_Sizes(t *testing.T) {
	m := NewMachine(Config{SampleRate: 16000, BlockSize: 1024, PreRoll: 500 * time.Millisecond, PostRoll: 500 * time.Millisecond})

	if m.PreRollBlocks() != 8 {
		t.Errorf("Expected 8 pre-roll blocks, got %d", m.PreRollBlocks())
	}
	if m.PostRollBlocks() != 8 {
		t.Errorf("Expected 8 post-roll blocks, got %d", m.PostRollBlocks())
	}
}

func TestMachine_FullCycleFrameCount(t *testing.T) {
	m := NewMachine(testConfig())

	for i := 0; i < 5; i++ {
		if _, done := m.Process(block(float32(i))); done {
			t.Fatal("Idle machine must not finalize")
		}
	}

	if !m.Press() {
		t.Fatal("Expected press to start a session")
	}
	if m.State() != domain.CaptureRecording {
		t.Fatalf("Expected recording, got %s", m.State())
	}

	for i := 0; i < 4; i++ {
		if _, done := m.Process(block(10)); done {
			t.Fatal("Recording must not finalize")
		}
	}

	if !m.Release() {
		t.Fatal("Expected release to enter post-roll")
	}
	if m.State() != domain.CapturePostRoll {
		t.Fatalf("Expected postroll, got %s", m.State())
	}

	if _, done := m.Process(block(20)); done {
		t.Fatal("Finalized one block early")
	}
	session, done := m.Process(block(21))
	if !done {
		t.Fatal("Expected the session to finalize after the post-roll blocks")
	}

	// 3 pre-roll + 4 recording + 2 post-roll
	if len(session.Frames) != 9 {
		t.Errorf("Expected 9 frames, got %d", len(session.Frames))
	}
	if session.Frames[0][0] != 2 {
		t.Errorf("Expected oldest pre-roll block 2, got %v", session.Frames[0][0])
	}
	if session.ReleasedAt.Before(session.PressedAt) {
		t.Error("Release timestamp precedes press timestamp")
	}
	if m.State() != domain.CaptureIdle {
		t.Errorf("Expected idle after finalize, got %s", m.State())
	}
}

func TestMachine_RoundTripAudio(t *testing.T) {
	m := NewMachine(testConfig())

	var want []float32
	m.Press()
	for i := 0; i < 3; i++ {
		b := block(float32(i + 1))
		b[0] = float32(-i)
		want = append(want, b...)
		m.Process(b)
	}
	m.Release()

	var session *Session
	for i := 0; i < 2; i++ {
		b := block(float32(100 + i))
		want = append(want, b...)
		session, _ = m.Process(b)
	}
	if session == nil {
		t.Fatal("Expected a finalized session")
	}

	job, err := Finalizer{RecordSampleRate: 1000, ModelSampleRate: 1000}.Finalize(session, 1)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if len(job.Audio) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(job.Audio))
	}
	for i := range want {
		if job.Audio[i] != want[i] {
			t.Fatalf("Sample %d = %v, want %v", i, job.Audio[i], want[i])
		}
	}
	if job.Meta.CaptureDuration != 500*time.Millisecond {
		t.Errorf("Expected 500ms capture, got %v", job.Meta.CaptureDuration)
	}
	if job.Meta.FrameCount != 5 {
		t.Errorf("Expected 5 frames, got %d", job.Meta.FrameCount)
	}
}

func TestMachine_PressWhileRecordingIsNoop(t *testing.T) {
	m := NewMachine(testConfig())
	m.Process(block(1))

	m.Press()
	m.Process(block(2))

	if m.Press() {
		t.Error("Second press must not start another session")
	}
	m.Release()
	if m.Press() {
		t.Error("Press during post-roll must be ignored")
	}

	m.Process(block(3))
	session, done := m.Process(block(4))
	if !done {
		t.Fatal("Expected exactly one finalized session")
	}
	if len(session.Frames) != 4 {
		t.Errorf("Expected 4 frames, got %d", len(session.Frames))
	}
}

func TestMachine_ReleaseWhileIdleIsNoop(t *testing.T) {
	m := NewMachine(testConfig())
	m.Process(block(1))

	if m.Release() {
		t.Error("Release while idle must be ignored")
	}
	if m.State() != domain.CaptureIdle {
		t.Errorf("Expected idle, got %s", m.State())
	}
	for i := 0; i < 5; i++ {
		if _, done := m.Process(block(2)); done {
			t.Fatal("Stray release produced a session")
		}
	}
}

func TestMachine_EmptySessionIsDropped(t *testing.T) {
	m := NewMachine(testConfig())

	m.Press()
	if m.Release() {
		t.Error("Release of an empty session must not enter post-roll")
	}
	if m.State() != domain.CaptureIdle {
		t.Errorf("Expected idle, got %s", m.State())
	}
	for i := 0; i < 3; i++ {
		if _, done := m.Process(block(1)); done {
			t.Fatal("Empty session produced a job")
		}
	}
}

func TestMachine_RepeatedCycles(t *testing.T) {
	m := NewMachine(testConfig())
	m.Process(block(0))

	for cycle := 1; cycle <= 3; cycle++ {
		m.Press()
		m.Process(block(1))
		m.Release()
		m.Process(block(2))
		session, done := m.Process(block(3))
		if !done {
			t.Fatalf("Cycle %d did not finalize", cycle)
		}
		// pre-roll holds the last 3 blocks of the previous cycle
		if len(session.Frames) != 6 && cycle > 1 {
			t.Errorf("Cycle %d: expected 6 frames, got %d", cycle, len(session.Frames))
		}
	}
}

func TestMachine_ConcurrentEdgesAndBlocks(t *testing.T) {
	m := NewMachine(testConfig())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	sessions := make(chan *Session, 100)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if s, done := m.Process(block(1)); done {
					sessions <- s
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		m.Press()
		time.Sleep(100 * time.Microsecond)
		m.Release()
	}
	close(stop)
	wg.Wait()
	close(sessions)

	for s := range sessions {
		if len(s.Frames) == 0 {
			t.Error("Finalized session without frames")
		}
	}
}
