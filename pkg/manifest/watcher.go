package manifest

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadCallback is called after the manifest has been reloaded.
type ReloadCallback func()

// Watcher reloads the manifest when its file changes on disk. Events
// are debounced because editors and generators write in bursts.
type Watcher struct {
	loader             *Loader
	watcher            *fsnotify.Watcher
	stabilityThreshold time.Duration
	onReload           ReloadCallback
	logger             zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher over the loader's manifest file.
func NewWatcher(loader *Loader, stabilityThreshold time.Duration, onReload ReloadCallback, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if stabilityThreshold == 0 {
		stabilityThreshold = 500 * time.Millisecond
	}

	return &Watcher{
		loader:             loader,
		watcher:            fsWatcher,
		stabilityThreshold: stabilityThreshold,
		onReload:           onReload,
		logger:             logger.With().Str("component", "manifest-watcher").Logger(),
		done:               make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than
// the file itself so atomic rename-over-writes are still observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.loader.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch manifest directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.loader.path).Msg("Manifest watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.loader.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	if err := w.loader.Load(); err != nil {
		// Keep serving the last good manifest on a bad write.
		w.logger.Error().Err(err).Msg("Manifest reload failed, keeping previous manifest")
		return
	}

	w.logger.Info().Msg("Manifest reloaded")
	if w.onReload != nil {
		w.onReload()
	}
}
