package repositories

import (
	"context"

	"github.com/satriahrh/elena/assistant/domain"
)

// AudioStreamConfig selects the capture format
type AudioStreamConfig struct {
	SampleRate int
	Channels   int
	BlockSize  int
	// Device is a case-insensitive substring of the device name; empty selects the default input.
	Device string
}

// AudioInput opens callback-driven capture streams
type AudioInput interface {
	// Open prepares a stream that calls onBlock once per captured block, on the driver's
	// own goroutine. onBlock must not block.
	Open(config AudioStreamConfig, onBlock func(domain.AudioBlock)) (AudioStream, error)
}

// AudioStream is an opened capture stream
type AudioStream interface {
	Start() error
	// Close stops the stream. onBlock is not called after Close returns.
	Close() error
	DeviceName() string
}

// AudioOutput plays signed 16-bit mono PCM
type AudioOutput interface {
	Write(ctx context.Context, pcm []int16) error
	SampleRate() int
}
