package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the YAML overlay when it changes on disk and applies the
// new log level to a zap.AtomicLevel. Other settings need a restart.
type Watcher struct {
	path     string
	level    zap.AtomicLevel
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	callbacks []func(*Config)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  sync.Once
}

// NewWatcher starts watching path. The parent directory is watched rather
// than the file so editors that replace the file on save are still seen.
func NewWatcher(path string, level zap.AtomicLevel, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(path, level, logger, defaultDebounce)
}

func newWatcher(path string, level zap.AtomicLevel, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher needs a file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     abs,
		level:    level,
		logger:   logger.Named("config"),
		debounce: debounce,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.watchLoop()

	w.logger.Info("Watching configuration file", zap.String("path", abs))
	return w, nil
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("Invalid configuration after reload", zap.Error(err))
		return
	}

	if newLevel := cfg.Level(); newLevel != w.level.Level() {
		w.logger.Info("Log level changed",
			zap.Stringer("from", w.level.Level()),
			zap.Stringer("to", newLevel),
		)
		w.level.SetLevel(newLevel)
	}

	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}
