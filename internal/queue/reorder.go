package queue

import (
	"context"

	"go.uber.org/zap"
)

type sequenced[T any] struct {
	seq   uint64
	value T
	skip  bool
}

// Reorderer collects values produced out of order by parallel workers and releases
// them to out strictly by sequence number. A skipped sequence number only advances
// the cursor. Sequence numbers start at 1 and must each be reported exactly once.
type Reorderer[T any] struct {
	in     chan sequenced[T]
	out    *StageQueue[T]
	next   uint64
	logger *zap.Logger
}

// NewReorderer creates a reorderer feeding out
func NewReorderer[T any](out *StageQueue[T], logger *zap.Logger) *Reorderer[T] {
	return &Reorderer[T]{
		in:     make(chan sequenced[T], out.Cap()),
		out:    out,
		next:   1,
		logger: logger,
	}
}

// Emit reports the value for seq
func (r *Reorderer[T]) Emit(seq uint64, value T) {
	r.in <- sequenced[T]{seq: seq, value: value}
}

// Skip reports that seq produced nothing
func (r *Reorderer[T]) Skip(seq uint64) {
	r.in <- sequenced[T]{seq: seq, skip: true}
}

// CloseInput signals that no more sequence numbers will be reported.
// Call it after every producer has returned.
func (r *Reorderer[T]) CloseInput() {
	close(r.in)
}

// Run releases values in order until the input is closed, then closes out
func (r *Reorderer[T]) Run(ctx context.Context) {
	defer r.out.Close()

	pending := make(map[uint64]sequenced[T])
	for item := range r.in {
		if item.seq < r.next {
			r.logger.Warn("Dropping stale sequence number",
				zap.String("queue", r.out.Name()),
				zap.Uint64("seq", item.seq),
				zap.Uint64("next", r.next))
			continue
		}
		pending[item.seq] = item

		for {
			ready, ok := pending[r.next]
			if !ok {
				break
			}
			delete(pending, r.next)
			r.next++
			if ready.skip {
				continue
			}
			if err := r.out.Put(ctx, ready.value); err != nil {
				r.logger.Warn("Failed to release ordered item",
					zap.String("queue", r.out.Name()),
					zap.Uint64("seq", ready.seq),
					zap.Error(err))
			}
		}
	}

	if len(pending) > 0 {
		r.logger.Warn("Reorderer closed with gaps",
			zap.String("queue", r.out.Name()),
			zap.Uint64("next", r.next),
			zap.Int("pending", len(pending)))
	}
}
