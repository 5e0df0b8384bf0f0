package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadSettle = 100 * time.Millisecond

// Watcher reloads the configuration file when it changes and hands every valid
// result to OnChange
type Watcher struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	onChange func(*Config)
}

// NewWatcher creates a new Watcher for the file at path. The parent directory is
// watched so editors that replace the file are seen too.
func NewWatcher(path string, logger *zap.Logger, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     abs,
		logger:   logger,
		watcher:  w,
		onChange: onChange,
	}, nil
}

// Run delivers reloads until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				settle = time.After(reloadSettle)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))

		case <-settle:
			settle = nil
			config, err := Load(w.path)
			if err != nil {
				w.logger.Error("Failed to reload config, keeping current settings",
					zap.String("path", w.path),
					zap.Error(err))
				continue
			}
			w.logger.Info("Config reloaded", zap.String("path", w.path))
			w.onChange(config)
		}
	}
}
