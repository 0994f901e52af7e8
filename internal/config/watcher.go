package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"nvrd/internal/logging"
)

// Watcher hot-reloads the mutable settings subset (retention, disk floor)
// whenever the config file on disk changes, grounded on the ConfigWatcher
// pattern in the mediamtx-camera-service-go reference: watch the containing
// directory, re-parse on every write or create event for the file, invoke a
// callback. Events are not debounced: each one triggers its own reload.
type Watcher struct {
	loader     *Loader
	configPath string
	onReload   func(*Config)
	logger     *logging.Logger

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWatcher creates a Watcher for configPath. onReload is invoked with the
// freshly parsed Config after every observed change.
func NewWatcher(loader *Loader, configPath string, logger *logging.Logger, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		loader:     loader,
		configPath: configPath,
		onReload:   onReload,
		logger:     logger,
		fsw:        fsw,
	}, nil
}

// Start begins watching the config file's directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := w.loader.Load(w.configPath)
			if err != nil {
				w.logger.With().WithError(err).Warn("config reload failed, keeping previous settings")
				continue
			}
			w.logger.With().Info("configuration reloaded")
			w.onReload(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.With().WithError(err).Warn("config watcher error")
		}
	}
}
