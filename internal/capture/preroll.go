package capture

import (
	"math"
	"time"

	"github.com/satriahrh/elena/assistant/domain"
)

// BlockCount returns how many blocks of blockSize samples at sampleRate cover d,
// rounded up and never less than one.
func BlockCount(d time.Duration, blockSize, sampleRate int) int {
	if blockSize <= 0 || sampleRate <= 0 || d <= 0 {
		return 1
	}
	blockDuration := float64(blockSize) / float64(sampleRate)
	// the epsilon keeps exact multiples from rounding up on float noise
	n := int(math.Ceil(d.Seconds()/blockDuration - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// PreRollStore keeps the most recent audio blocks in a fixed ring.
// It does no locking of its own; Machine guards it with its lock.
type PreRollStore struct {
	blocks []domain.AudioBlock
	start  int
	size   int
}

// NewPreRollStore creates a store holding at most capacity blocks (minimum 1)
func NewPreRollStore(capacity int) *PreRollStore {
	if capacity < 1 {
		capacity = 1
	}
	return &PreRollStore{blocks: make([]domain.AudioBlock, capacity)}
}

// Push appends block, evicting the oldest one when the store is full
func (s *PreRollStore) Push(block domain.AudioBlock) {
	capacity := len(s.blocks)
	if s.size < capacity {
		s.blocks[(s.start+s.size)%capacity] = block
		s.size++
		return
	}
	s.blocks[s.start] = block
	s.start = (s.start + 1) % capacity
}

// Snapshot returns an independent copy of the stored blocks, oldest first
func (s *PreRollStore) Snapshot() []domain.AudioBlock {
	out := make([]domain.AudioBlock, s.size)
	for i := 0; i < s.size; i++ {
		block := s.blocks[(s.start+i)%len(s.blocks)]
		out[i] = append(domain.AudioBlock(nil), block...)
	}
	return out
}

// Len returns the number of stored blocks
func (s *PreRollStore) Len() int {
	return s.size
}

// Cap returns the store capacity
func (s *PreRollStore) Cap() int {
	return len(s.blocks)
}
