package gtranslate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/chattts/pkg/provider/tts"
	"github.com/MrWong99/chattts/pkg/provider/tts/gtranslate"
)

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "short", text: "안녕하세요", max: 100, want: []string{"안녕하세요"}},
		{name: "split at space", text: "aaa bbb ccc", max: 7, want: []string{"aaa bbb", "ccc"}},
		{name: "hard cut", text: "abcdefghij", max: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "blank", text: "   ", max: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := gtranslate.Chunk(tt.text, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Chunk(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestChunk_RespectsLimit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("가나다라 ", 80)
	for _, c := range gtranslate.Chunk(text, gtranslate.MaxChunkRunes) {
		if n := utf8.RuneCountInString(c); n > gtranslate.MaxChunkRunes {
			t.Errorf("chunk has %d runes, want <= %d", n, gtranslate.MaxChunkRunes)
		}
	}
}

func TestGenerate_ConcatenatesChunks(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if tl := r.URL.Query().Get("tl"); tl != "ko" {
			t.Errorf("tl = %q, want ko", tl)
		}
		_, _ = w.Write([]byte("[" + r.URL.Query().Get("idx") + "]"))
	}))
	t.Cleanup(srv.Close)

	e := gtranslate.New(gtranslate.WithEndpoint(srv.URL), gtranslate.WithHTTPClient(srv.Client()))
	dst := filepath.Join(t.TempDir(), "tts_1.mp3")

	text := strings.Repeat("말 ", 120) // 240 runes, three chunks
	if err := e.Generate(context.Background(), text, dst); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[0][1][2]" {
		t.Errorf("content = %q, want %q", data, "[0][1][2]")
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
}

func TestGenerate_FailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	e := gtranslate.New(gtranslate.WithEndpoint(srv.URL), gtranslate.WithHTTPClient(srv.Client()))
	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := e.Generate(context.Background(), "안녕", dst)
	if !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("dst should not exist: %v", err)
	}
}

func TestGenerate_EmptyBodyRemovesFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	e := gtranslate.New(gtranslate.WithEndpoint(srv.URL), gtranslate.WithHTTPClient(srv.Client()))
	dst := filepath.Join(t.TempDir(), "tts_1.mp3")

	if err := e.Generate(context.Background(), "안녕", dst); !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("dst should not exist: %v", err)
	}
}
