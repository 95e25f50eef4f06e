package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/chattts/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
discord:
  token: abc
`

const watcherUpdatedYAML = `
server:
  log_level: debug
discord:
  token: abc
playback:
  rate_limit: 2
  burst: 4
`

const watcherInvalidYAML = `
server:
  log_level: bananas
discord:
  token: abc
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

type change struct{ old, new *config.Config }

func newTestWatcher(t *testing.T, content string) (string, *config.Watcher, chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chattts.yaml")
	writeFile(t, path, content)

	changes := make(chan change, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- change{old, new}
	}, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, changes
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	_, w, _ := newTestWatcher(t, watcherValidYAML)
	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chattts.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path, w, changes := newTestWatcher(t, watcherValidYAML)
	writeFile(t, path, watcherUpdatedYAML)

	select {
	case c := <-changes:
		if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
			t.Errorf("change old=%q new=%q", c.old.Server.LogLevel, c.new.Server.LogLevel)
		}
		d := config.Diff(c.old, c.new)
		if !d.LogLevelChanged || !d.RateLimitChanged {
			t.Errorf("diff = %+v", d)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Error("Current() not updated")
	}
}

func TestWatcher_DetectsRenameReplace(t *testing.T) {
	t.Parallel()

	path, _, changes := newTestWatcher(t, watcherValidYAML)
	tmp := path + ".tmp"
	writeFile(t, tmp, watcherUpdatedYAML)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.new.Server.LogLevel != config.LogDebug {
			t.Errorf("new log level = %q", c.new.Server.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change after rename")
	}
}

func TestWatcher_IgnoresInvalidAndIdentical(t *testing.T) {
	t.Parallel()

	path, w, changes := newTestWatcher(t, watcherValidYAML)

	writeFile(t, path, watcherInvalidYAML)
	time.Sleep(150 * time.Millisecond)
	writeFile(t, path, watcherValidYAML)
	time.Sleep(150 * time.Millisecond)

	select {
	case c := <-changes:
		t.Fatalf("unexpected change callback: %+v", c.new.Server)
	default:
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Error("invalid config replaced the current one")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, w, _ := newTestWatcher(t, watcherValidYAML)
	w.Stop()
	w.Stop()
}
