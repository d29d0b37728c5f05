package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"unshub/pkg/logging"
)

// debounceInterval is the time to wait after the last file change before
// reloading, so editors that write in several steps trigger one reload.
const debounceInterval = 500 * time.Millisecond

// Watcher monitors the configuration directory and reloads config.yaml when
// it changes. A reload that fails to parse or validate keeps the previous
// configuration in effect.
type Watcher struct {
	mu sync.Mutex

	configPath string
	onChange   func(Config)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for the given configuration directory. The
// onChange callback receives every successfully loaded configuration.
func NewWatcher(configPath string, onChange func(Config)) *Watcher {
	return &Watcher{
		configPath: configPath,
		onChange:   onChange,
	}
}

// Start begins watching the configuration directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.configPath); err != nil {
		watcher.Close()
		return err
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	// Capture channels before releasing the lock to avoid racing Stop().
	eventsCh := watcher.Events
	errorsCh := watcher.Errors
	go w.processEvents(eventsCh, errorsCh)

	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != configFileName {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("ConfigWatcher", "Configuration file changed: %s", event.Name)
	w.triggerReloadDebounced()
}

func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	callback := w.onChange
	path := w.configPath
	w.mu.Unlock()

	if !running || callback == nil {
		return
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		logging.Error("ConfigWatcher", err, "Ignoring configuration change, previous config stays active")
		return
	}
	callback(cfg)
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("ConfigWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
