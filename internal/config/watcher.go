package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadOps are the fsnotify operations that can change the file content.
// Editors that save via rename show up as Create or Rename on the path.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// snapshot is one successfully loaded version of the file.
type snapshot struct {
	cfg  *Config
	hash [sha256.Size]byte
}

// Watcher reloads a config file when it changes on disk and hands every new
// valid config to a callback. It watches the parent directory, so atomic
// replacements are seen as well as in-place writes.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, new *Config)

	fsw *fsnotify.Watcher

	mu   sync.Mutex
	last snapshot

	quit     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last file event before the
// file is read again. Default: 200ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads path once and starts watching it. A file that does not
// load is an error here; later invalid edits are logged and skipped.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		debounce: 200 * time.Millisecond,
		onChange: onChange,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.last, err = w.read(); err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("config: create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.fsw.Add(dir); err != nil {
		_ = w.fsw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", dir, err)
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends the watch and waits for the event loop to exit. Extra calls are
// no-ops.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		_ = w.fsw.Close()
		<-w.exited
	})
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	return filepath.Clean(ev.Name) == w.path && ev.Op&reloadOps != 0
}

func (w *Watcher) loop() {
	defer close(w.exited)

	// A stopped timer with a drained channel stands in for "nothing pending".
	pending := time.NewTimer(time.Hour)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				pending.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "path", w.path, "error", err)
		case <-pending.C:
			w.reload()
		}
	}
}

// reload reads the file and publishes it when the bytes changed and the
// content is valid.
func (w *Watcher) reload() {
	next, err := w.read()
	if err != nil {
		slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	prev := w.last
	if next.hash == prev.hash {
		w.mu.Unlock()
		return
	}
	w.last = next
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
}

func (w *Watcher) read() (snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, hash: sha256.Sum256(data)}, nil
}
