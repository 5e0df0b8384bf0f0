// Package hotkey turns a global key binding into push-to-talk press and release edges.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.design/x/hotkey"
)

// ErrInvalidCombo is returned when a key combination cannot be parsed
var ErrInvalidCombo = errors.New("invalid key combination")

// ErrRegister is returned when the operating system refuses the binding
var ErrRegister = errors.New("failed to register key combination")

// backend abstracts golang.design/x/hotkey so tests can drive edges by hand
type backend interface {
	Register() error
	Unregister() error
	Keydown() <-chan hotkey.Event
	Keyup() <-chan hotkey.Event
}

// PushToTalk listens for a global key and reports press and release edges
type PushToTalk struct {
	combo  string
	logger *zap.Logger

	newBackend func() backend

	mu      sync.Mutex
	backend backend
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPushToTalk creates a new PushToTalk for combo, e.g. "f12" or "ctrl+shift+space".
// Nothing is registered until Start.
func NewPushToTalk(combo string, logger *zap.Logger) (*PushToTalk, error) {
	mods, key, err := ParseCombo(combo)
	if err != nil {
		return nil, err
	}
	return &PushToTalk{
		combo:  combo,
		logger: logger,
		newBackend: func() backend {
			return hotkey.New(mods, key)
		},
	}, nil
}

// Start registers the binding and calls onPress and onRelease from a listener goroutine
// until ctx is cancelled or Stop is called
func (p *PushToTalk) Start(ctx context.Context, onPress, onRelease func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend != nil {
		return nil
	}

	b := p.newBackend()
	if err := b.Register(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrRegister, p.combo, err)
	}
	p.backend = b

	listenCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done

	p.logger.Info("Push-to-talk key registered", zap.String("key", p.combo))

	go func() {
		defer close(done)
		keydown, keyup := b.Keydown(), b.Keyup()
		for {
			select {
			case <-listenCtx.Done():
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				p.logger.Debug("Push-to-talk pressed", zap.String("key", p.combo))
				onPress()
			case _, ok := <-keyup:
				if !ok {
					return
				}
				p.logger.Debug("Push-to-talk released", zap.String("key", p.combo))
				onRelease()
			}
		}
	}()

	return nil
}

// Stop unregisters the binding and waits for the listener to exit
func (p *PushToTalk) Stop() {
	p.mu.Lock()
	b, cancel, done := p.backend, p.cancel, p.done
	p.backend, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	if b == nil {
		return
	}
	cancel()
	if err := b.Unregister(); err != nil {
		p.logger.Warn("Failed to unregister push-to-talk key", zap.String("key", p.combo), zap.Error(err))
	}
	<-done
	p.logger.Info("Push-to-talk key unregistered", zap.String("key", p.combo))
}

// Combo returns the configured key combination
func (p *PushToTalk) Combo() string {
	return p.combo
}

var modifiers = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
}

var keys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"tab":    hotkey.KeyTab,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// ParseCombo parses "mod+mod+key" into hotkey modifiers and key. Modifiers are optional,
// so a bare function key is a valid push-to-talk binding.
func ParseCombo(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	normalized := strings.ToLower(strings.TrimSpace(combo))
	if normalized == "" {
		return nil, 0, fmt.Errorf("%w: empty", ErrInvalidCombo)
	}

	parts := strings.Split(normalized, "+")
	keyPart := strings.TrimSpace(parts[len(parts)-1])
	key, ok := keys[keyPart]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", ErrInvalidCombo, keyPart)
	}

	var mods []hotkey.Modifier
	seen := map[hotkey.Modifier]bool{}
	for _, part := range parts[:len(parts)-1] {
		mod, ok := modifiers[strings.TrimSpace(part)]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", ErrInvalidCombo, part)
		}
		if seen[mod] {
			continue
		}
		seen[mod] = true
		mods = append(mods, mod)
	}
	return mods, key, nil
}
