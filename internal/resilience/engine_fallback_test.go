package resilience

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/chattts/pkg/provider/tts"
	ttsmock "github.com/MrWong99/chattts/pkg/provider/tts/mock"
)

func TestEngineFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Engine{Audio: []byte("primary")}
	secondary := &ttsmock.Engine{Audio: []byte("secondary")}
	fb := NewEngineFallback(primary, "cloud_neural", FallbackConfig{})
	fb.AddFallback("edge", secondary)

	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	served, err := fb.GenerateNamed(context.Background(), "안녕", dst)
	if err != nil {
		t.Fatalf("GenerateNamed: %v", err)
	}
	if served != "cloud_neural" {
		t.Errorf("served = %q", served)
	}
	if data, _ := os.ReadFile(dst); string(data) != "primary" {
		t.Errorf("content = %q, want primary", data)
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times", len(secondary.Calls()))
	}
}

func TestEngineFallback_Failover(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Engine{GenerateErr: tts.ErrSynthesis}
	secondary := &ttsmock.Engine{Audio: []byte("secondary"), OutFormat: tts.FormatWAV}
	fb := NewEngineFallback(primary, "cloud_neural", FallbackConfig{})
	fb.AddFallback("local", secondary)

	dst := filepath.Join(t.TempDir(), "tts_1.mp3")
	if err := fb.Generate(context.Background(), "안녕", dst); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "secondary" {
		t.Errorf("content = %q, want secondary", data)
	}
	if fb.Format() != tts.FormatMP3 {
		t.Errorf("Format = %q, want primary's mp3", fb.Format())
	}
}

func TestEngineFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewEngineFallback(&ttsmock.Engine{GenerateErr: tts.ErrSynthesis}, "a", FallbackConfig{})
	fb.AddFallback("b", &ttsmock.Engine{GenerateErr: errors.New("down")})

	err := fb.Generate(context.Background(), "x", filepath.Join(t.TempDir(), "x.mp3"))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestEngineFallback_TunesPrimaryOnly(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Engine{}
	secondary := &ttsmock.Engine{}
	fb := NewEngineFallback(primary, "a", FallbackConfig{})
	fb.AddFallback("b", secondary)

	fb.SetVoice("ko-KR-Neural2-B")
	fb.SetRate(1.25)
	fb.SetPitch(5)

	want := tts.Params{Voice: "ko-KR-Neural2-B", Rate: 1.25, Pitch: 5}
	if got := primary.Params(); got != want {
		t.Errorf("primary params = %+v, want %+v", got, want)
	}
	if got := secondary.Params(); got != (tts.Params{}) {
		t.Errorf("secondary params = %+v, want untouched", got)
	}
}
