// Package speech schedules replies for synthesis through a bounded priority queue
// drained by a single worker.
package speech

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Priorities used by the pipeline. Lower values are spoken first.
const (
	PriorityUrgent = 0
	PriorityNormal = 5
)

// Speaker synthesizes and plays one utterance
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to Speaker
type SpeakerFunc func(ctx context.Context, text string) error

func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

type request struct {
	text     string
	priority int
	seq      uint64
}

type requestHeap []request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x interface{}) { *h = append(*h, x.(request)) }
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a bounded priority queue of utterances. Add never blocks; a worker is
// started on demand and drains the queue until it is empty.
type Queue struct {
	speaker Speaker
	maxSize int
	logger  *zap.Logger

	mu         sync.Mutex
	items      requestHeap
	seq        uint64
	processing bool
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool

	// OnDrop is called with the text of every rejected Add, outside the lock.
	OnDrop func(text string)
}

// NewQueue creates a queue holding at most maxSize waiting utterances
func NewQueue(speaker Speaker, maxSize int, logger *zap.Logger) *Queue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Queue{
		speaker: speaker,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Add queues text at priority. It returns false without blocking when the queue is
// full or closed.
func (q *Queue) Add(text string, priority int) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= q.maxSize {
		queued, closed := len(q.items), q.closed
		q.mu.Unlock()
		q.logger.Warn("Speech queue rejected utterance",
			zap.Int("queued", queued),
			zap.Bool("closed", closed),
			zap.Int("priority", priority))
		if q.OnDrop != nil {
			q.OnDrop(text)
		}
		return false
	}

	q.seq++
	heap.Push(&q.items, request{text: text, priority: priority, seq: q.seq})
	if !q.processing {
		q.startLocked()
	}
	q.mu.Unlock()
	return true
}

func (q *Queue) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	q.processing = true
	q.cancel = cancel
	q.done = done
	go q.drain(ctx, done)
}

func (q *Queue) drain(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		q.mu.Lock()
		if ctx.Err() != nil || len(q.items) == 0 {
			q.finishLocked(ctx)
			q.mu.Unlock()
			return
		}
		next := heap.Pop(&q.items).(request)
		q.mu.Unlock()

		err := q.speaker.Speak(ctx, next.text)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			q.logger.Debug("Utterance cancelled", zap.Int("priority", next.priority))
		default:
			q.logger.Error("Failed to speak utterance",
				zap.Int("priority", next.priority),
				zap.Error(err))
		}
	}
}

// finishLocked retires the current worker; if items arrived after a flush cancelled it,
// a fresh worker takes over.
func (q *Queue) finishLocked(ctx context.Context) {
	q.processing = false
	q.cancel()
	if ctx.Err() != nil && len(q.items) > 0 && !q.closed {
		q.startLocked()
	}
}

// Flush cancels the utterance being spoken, discards everything still queued and waits
// for the worker to stop.
func (q *Queue) Flush() {
	q.mu.Lock()
	dropped := len(q.items)
	q.items = q.items[:0]
	var done chan struct{}
	if q.processing {
		q.cancel()
		done = q.done
	}
	q.mu.Unlock()

	if done != nil {
		<-done
	}
	q.logger.Info("Speech queue flushed", zap.Int("dropped", dropped))
}

// Close rejects further Adds and flushes the queue
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Flush()
}

// Wait blocks until the queue is empty and no utterance is being spoken
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.processing {
			q.mu.Unlock()
			return nil
		}
		done := q.done
		q.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len returns the number of utterances waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Processing reports whether the worker is running
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}
