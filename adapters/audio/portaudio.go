package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// ErrNoInputDevice is returned when no capture device matches the configuration
var ErrNoInputDevice = errors.New("no matching input device")

const (
	minReadRetry = 10 * time.Millisecond
	maxReadRetry = time.Second
)

var _ repositories.AudioInput = (*PortAudioInput)(nil)
var _ repositories.AudioOutput = (*PortAudioPlayer)(nil)

// PortAudioInput opens microphone streams through PortAudio
type PortAudioInput struct {
	logger *zap.Logger
	// OnOverflow is called for every block the driver flagged as overflowed
	OnOverflow func()
	// OnReadError is called for every failed read; the stream retries after a backoff
	OnReadError func()
}

// NewPortAudioInput initializes PortAudio. Close must be called to release it.
func NewPortAudioInput(logger *zap.Logger) (*PortAudioInput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioInput{logger: logger}, nil
}

// Close terminates PortAudio
func (p *PortAudioInput) Close() error {
	return portaudio.Terminate()
}

// Open opens a blocking input stream; a reader goroutine started by Start hands every
// block to onBlock
func (p *PortAudioInput) Open(config repositories.AudioStreamConfig, onBlock func(domain.AudioBlock)) (repositories.AudioStream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	var fallback *portaudio.DeviceInfo
	if config.Device == "" {
		fallback, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
	}
	device, err := SelectInputDevice(devices, config.Device, fallback)
	if err != nil {
		return nil, err
	}

	channels := config.Channels
	if channels < 1 {
		channels = 1
	}
	if channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}

	buf := make([]float32, config.BlockSize*channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.BlockSize,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}

	p.logger.Info("Audio input opened",
		zap.String("device", device.Name),
		zap.Int("sample_rate", config.SampleRate),
		zap.Int("channels", channels),
		zap.Int("block_size", config.BlockSize))

	return &inputStream{
		stream:     stream,
		buf:        buf,
		channels:   channels,
		device:     device.Name,
		onBlock:    onBlock,
		onOverflow: p.OnOverflow,
		onError:    p.OnReadError,
		retry:      minReadRetry,
		logger:     p.logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// SelectInputDevice picks the first input-capable device whose name contains name,
// ignoring case. An empty name selects fallback.
func SelectInputDevice(devices []*portaudio.DeviceInfo, name string, fallback *portaudio.DeviceInfo) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if fallback == nil || fallback.MaxInputChannels < 1 {
			return nil, ErrNoInputDevice
		}
		return fallback, nil
	}

	want := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoInputDevice, name)
}

// blockingStream is the part of *portaudio.Stream the reader uses
type blockingStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

type inputStream struct {
	stream     blockingStream
	buf        []float32
	channels   int
	device     string
	onBlock    func(domain.AudioBlock)
	onOverflow func()
	onError    func()
	retry      time.Duration
	logger     *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

func (s *inputStream) Start() error {
	var err error
	s.startOnce.Do(func() {
		if err = s.stream.Start(); err != nil {
			err = fmt.Errorf("failed to start input stream: %w", err)
			return
		}
		s.started = true
		go s.read()
	})
	return err
}

// read delivers blocks until Close. Failed reads are retried with a doubling backoff
// that resets on the next good block.
func (s *inputStream) read() {
	defer close(s.done)
	backoff := s.retry
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := s.stream.Read()
		switch {
		case err == nil:
		case errors.Is(err, portaudio.InputOverflowed):
			s.logger.Warn("Audio input overflow", zap.String("device", s.device))
			if s.onOverflow != nil {
				s.onOverflow()
			}
		default:
			select {
			case <-s.stop:
				return
			default:
			}
			s.logger.Error("Audio input read failed, retrying",
				zap.String("device", s.device),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if s.onError != nil {
				s.onError()
			}
			select {
			case <-s.stop:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxReadRetry {
				backoff = maxReadRetry
			}
			continue
		}

		backoff = s.retry
		s.onBlock(Downmix(s.buf, s.channels))
	}
}

func (s *inputStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.started {
			if stopErr := s.stream.Stop(); stopErr != nil {
				err = fmt.Errorf("failed to stop input stream: %w", stopErr)
			}
			<-s.done
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close input stream: %w", closeErr)
		}
	})
	return err
}

func (s *inputStream) DeviceName() string {
	return s.device
}

// Downmix copies the first channel of an interleaved buffer into a new block
func Downmix(interleaved []float32, channels int) domain.AudioBlock {
	if channels <= 1 {
		block := make(domain.AudioBlock, len(interleaved))
		copy(block, interleaved)
		return block
	}
	block := make(domain.AudioBlock, len(interleaved)/channels)
	for i := range block {
		block[i] = interleaved[i*channels]
	}
	return block
}

// PortAudioPlayer plays 16-bit mono PCM on the default output device
type PortAudioPlayer struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	started    bool
}

// NewPortAudioPlayer opens a blocking output stream at sampleRate
func NewPortAudioPlayer(sampleRate int) (*PortAudioPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buf := make([]int16, sampleRate/20)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioPlayer{
		stream:     stream,
		buf:        buf,
		sampleRate: sampleRate,
	}, nil
}

// Write plays pcm and returns once it has been handed to the device
func (p *PortAudioPlayer) Write(ctx context.Context, pcm []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		if err := p.stream.Start(); err != nil {
			return fmt.Errorf("failed to start output stream: %w", err)
		}
		p.started = true
	}

	for len(pcm) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(p.buf, pcm)
		for i := n; i < len(p.buf); i++ {
			p.buf[i] = 0
		}
		pcm = pcm[n:]

		if err := p.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}
	return nil
}

// SampleRate returns the rate the stream was opened with
func (p *PortAudioPlayer) SampleRate() int {
	return p.sampleRate
}

// Close stops the stream and terminates PortAudio
func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.stream.Stop()
		p.started = false
	}
	err := p.stream.Close()
	portaudio.Terminate()
	return err
}
