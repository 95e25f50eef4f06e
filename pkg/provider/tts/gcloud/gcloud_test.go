package gcloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

func TestNew_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	for _, creds := range []string{"", "   ", "not json"} {
		_, err := New(context.Background(), []byte(creds))
		if !errors.Is(err, tts.ErrConfiguration) {
			t.Errorf("New(%q) err = %v, want ErrConfiguration", creds, err)
		}
	}
}

func newTestEngine(t *testing.T, h http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	e, err := New(context.Background(), nil, WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestGenerate_WritesDecodedAudio(t *testing.T) {
	t.Parallel()

	var got synthesizeRequest
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte("ID3-audio")),
		})
	})
	e.SetVoice("ko-KR-Neural2-C")
	e.SetRate(1.5)
	e.SetPitch(-3)

	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	if err := e.Generate(context.Background(), "안녕하세요", dst); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "ID3-audio" {
		t.Errorf("file content = %q, want %q", data, "ID3-audio")
	}

	if got.Input.Text != "안녕하세요" {
		t.Errorf("text = %q", got.Input.Text)
	}
	if got.Voice.LanguageCode != "ko-KR" || got.Voice.Name != "ko-KR-Neural2-C" {
		t.Errorf("voice = %+v", got.Voice)
	}
	if got.AudioConfig.AudioEncoding != "MP3" || got.AudioConfig.SpeakingRate != 1.5 || got.AudioConfig.Pitch != -3 {
		t.Errorf("audioConfig = %+v", got.AudioConfig)
	}
}

func TestGenerate_DefaultParameters(t *testing.T) {
	t.Parallel()

	var got synthesizeRequest
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(synthesizeResponse{AudioContent: base64.StdEncoding.EncodeToString([]byte("x"))})
	})

	if err := e.Generate(context.Background(), "hi", filepath.Join(t.TempDir(), "a.mp3")); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Voice.Name != tts.DefaultNeuralVoice || got.AudioConfig.SpeakingRate != 1.0 || got.AudioConfig.Pitch != 0 {
		t.Errorf("request = %+v, want defaults", got)
	}
}

func TestGenerate_ServerErrorLeavesNoFile(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	err := e.Generate(context.Background(), "hi", dst)
	if !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Errorf("dst exists after failure: %v", statErr)
	}
}

func TestGenerate_EmptyAudioIsFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"audioContent":""}`))
	})

	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	if err := e.Generate(context.Background(), "hi", dst); !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Errorf("dst exists after failure: %v", statErr)
	}
}
