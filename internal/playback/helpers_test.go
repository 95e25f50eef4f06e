package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chattts/pkg/audio/mock"
)

// fakeSynth writes the text into a per-utterance file so tests can read the
// play order from the recorded paths.
type fakeSynth struct {
	mu    sync.Mutex
	fail  map[string]error
	delay map[string]time.Duration
	calls []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, guildID, text, dir string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err := f.fail[text]
	delay := f.delay[text]
	f.mu.Unlock()

	path := artifact(dir, guildID, text)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return path, ctx.Err()
		}
	}
	if err != nil {
		// Leave a partial file behind, as a misbehaving engine would.
		_ = os.WriteFile(path, []byte("partial"), 0o644)
		return path, err
	}
	return path, os.WriteFile(path, []byte(text), 0o644)
}

func (f *fakeSynth) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func artifact(dir, guildID, text string) string {
	return filepath.Join(dir, fmt.Sprintf("tts_%s_%s.mp3", guildID, text))
}

func utter(guildID, text string) Utterance {
	return Utterance{ID: text, GuildID: guildID, Text: text, EnqueuedAt: time.Now()}
}

func waitSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("session did not become idle: %v", err)
	}
}

func waitPlaying(t *testing.T, c *mock.Connection) string {
	t.Helper()
	select {
	case p := <-c.Playing():
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Play")
		return ""
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("artifact left behind: %s", e.Name())
	}
}
