package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// fakeInput hands the registered block callback to the test
type fakeInput struct {
	mu      sync.Mutex
	onBlock func(domain.AudioBlock)
	openErr error
	closed  bool
}

func (f *fakeInput) Open(config repositories.AudioStreamConfig, onBlock func(domain.AudioBlock)) (repositories.AudioStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	f.onBlock = onBlock
	f.mu.Unlock()
	return &fakeStream{input: f}, nil
}

// push delivers one block the way the driver goroutine would
func (f *fakeInput) push(block domain.AudioBlock) {
	f.mu.Lock()
	onBlock, closed := f.onBlock, f.closed
	f.mu.Unlock()
	if onBlock != nil && !closed {
		onBlock(block)
	}
}

type fakeStream struct {
	input *fakeInput
}

func (s *fakeStream) Start() error { return nil }

func (s *fakeStream) Close() error {
	s.input.mu.Lock()
	s.input.closed = true
	s.input.mu.Unlock()
	return nil
}

func (s *fakeStream) DeviceName() string { return "fake mic" }

func block(value float32) domain.AudioBlock {
	b := make(domain.AudioBlock, 100)
	for i := range b {
		b[i] = value
	}
	return b
}

// fakeSTT turns the first sample of each job into text via texts
type fakeSTT struct {
	mu     sync.Mutex
	texts  map[float32][]string
	delays map[float32]time.Duration
	fail   map[float32]bool
	calls  int
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []float32, sampleRate int, opts repositories.TranscribeOptions, onSegment func(repositories.Segment)) (repositories.TranscriptionInfo, error) {
	f.mu.Lock()
	f.calls++
	key := audio[0]
	segments, delay, fail := f.texts[key], f.delays[key], f.fail[key]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return repositories.TranscriptionInfo{}, ctx.Err()
		}
	}
	if fail {
		return repositories.TranscriptionInfo{}, errors.New("decoder crashed")
	}
	for _, text := range segments {
		onSegment(repositories.Segment{Text: text})
	}
	return repositories.TranscriptionInfo{
		Language:            opts.Language,
		LanguageProbability: 1,
		Duration:            time.Duration(len(audio)) * time.Second / time.Duration(sampleRate),
	}, nil
}

// fakeConversation fails the first failures calls, then echoes
type fakeConversation struct {
	mu        sync.Mutex
	failures  int
	block     bool
	calls     int
	sessions  int
	sent      []string
	sessionID string
	// stale is a session id the backend no longer knows
	stale string
}

func (f *fakeConversation) CreateSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	if f.sessionID != "" {
		return f.sessionID, nil
	}
	return "thread-1", nil
}

func (f *fakeConversation) Send(ctx context.Context, sessionID, author, message string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.stale != "" && sessionID == f.stale {
		return "", fmt.Errorf("lookup %s: %w", sessionID, repositories.ErrSessionNotFound)
	}
	if call <= f.failures {
		return "", errors.New("backend unavailable")
	}

	f.mu.Lock()
	f.sent = append(f.sent, message)
	f.mu.Unlock()
	return "Odpoveď: " + message, nil
}

func (f *fakeConversation) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type memoryIDStore struct {
	mu    sync.Mutex
	id    string
	saves int
	err   error
}

func (s *memoryIDStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.err
}

func (s *memoryIDStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.id = id
	return nil
}

// fakeTTS records spoken texts; the text "slow" blocks until release is closed or
// the context is cancelled
type fakeTTS struct {
	mu      sync.Mutex
	spoken  []string
	files   map[string]string
	fail    bool
	release chan struct{}
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, onBoundary func(repositories.WordBoundary)) error {
	if text == "slow" {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.NewTTSServiceError("synthesize", ctx.Err())
		}
	}
	if f.fail {
		return domain.NewTTSServiceError("synthesize", errors.New("engine down"))
	}
	if onBoundary != nil {
		onBoundary(repositories.WordBoundary{Text: text, WordLength: len([]rune(text))})
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeTTS) SynthesizeToFile(ctx context.Context, text, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[string]string)
	}
	f.files[path] = text
	return nil
}

func (f *fakeTTS) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(eventType domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// eventually polls cond until it holds or the deadline passes
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
