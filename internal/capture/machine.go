package capture

import (
	"sync"
	"time"

	"github.com/satriahrh/elena/assistant/domain"
)

// Config sizes the pre-roll and post-roll windows
type Config struct {
	SampleRate int
	BlockSize  int
	PreRoll    time.Duration
	PostRoll   time.Duration
}

// Session is one press-to-release capture handed out on finalization.
// It is owned by the receiver; the machine keeps no reference to it.
type Session struct {
	Frames     []domain.AudioBlock
	PressedAt  time.Time
	ReleasedAt time.Time
}

// Machine is the push-to-talk capture state machine. Process is called from the audio
// callback, Press and Release from the key listener; all three share one lock that is
// only held for bounded in-memory work.
type Machine struct {
	mu             sync.Mutex
	preRoll        *PreRollStore
	postRollBlocks int
	state          domain.CaptureState
	session        *Session
	remaining      int
	now            func() time.Time
}

// NewMachine creates an idle machine sized from config
func NewMachine(config Config) *Machine {
	return &Machine{
		preRoll:        NewPreRollStore(BlockCount(config.PreRoll, config.BlockSize, config.SampleRate)),
		postRollBlocks: BlockCount(config.PostRoll, config.BlockSize, config.SampleRate),
		state:          domain.CaptureIdle,
		now:            time.Now,
	}
}

// Press handles a key-down edge. It reports whether a new session started;
// a press outside Idle is ignored.
func (m *Machine) Press() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.CaptureIdle {
		return false
	}
	m.session = &Session{
		Frames:    m.preRoll.Snapshot(),
		PressedAt: m.now(),
	}
	m.state = domain.CaptureRecording
	return true
}

// Release handles a key-up edge. It reports whether the machine entered PostRoll;
// a release outside Recording is ignored. A session that captured nothing at all is
// abandoned here and the machine returns to Idle.
func (m *Machine) Release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.CaptureRecording {
		return false
	}
	if len(m.session.Frames) == 0 {
		m.reset()
		return false
	}
	m.session.ReleasedAt = m.now()
	m.remaining = m.postRollBlocks
	m.state = domain.CapturePostRoll
	return true
}

// Process handles one audio block. The block always enters the pre-roll store; while a
// session is active it is appended to it as well. When the post-roll countdown reaches
// zero the finished session is returned and the machine is Idle again.
func (m *Machine) Process(block domain.AudioBlock) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preRoll.Push(block)

	switch m.state {
	case domain.CaptureRecording:
		m.session.Frames = append(m.session.Frames, block)
	case domain.CapturePostRoll:
		m.session.Frames = append(m.session.Frames, block)
		m.remaining--
		if m.remaining <= 0 {
			return m.finalizeLocked()
		}
	}
	return nil, false
}

func (m *Machine) finalizeLocked() (*Session, bool) {
	session := m.session
	m.reset()
	if len(session.Frames) == 0 {
		return nil, false
	}
	return session, true
}

func (m *Machine) reset() {
	m.session = nil
	m.remaining = 0
	m.state = domain.CaptureIdle
}

// State returns the current capture state
func (m *Machine) State() domain.CaptureState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PreRollBlocks returns the pre-roll store capacity in blocks
func (m *Machine) PreRollBlocks() int {
	return m.preRoll.Cap()
}

// PostRollBlocks returns how many blocks are appended after a release
func (m *Machine) PostRollBlocks() int {
	return m.postRollBlocks
}
