package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// fakePiper writes a shell script that behaves like piper: it copies stdin to
// the --output_file path and records its arguments next to it.
func fakePiper(t *testing.T, body string) (bin, model string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "piper")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	model = filepath.Join(dir, "ko.onnx")
	if err := os.WriteFile(model, []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}
	return bin, model
}

const copyStdin = `out=""
echo "$@" > "$(dirname "$0")/args"
while [ $# -gt 0 ]; do
  case "$1" in
    --output_file) out="$2"; shift ;;
  esac
  shift
done
cat > "$out"`

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	bin, model := fakePiper(t, "exit 0")

	if _, err := New(""); !errors.Is(err, tts.ErrConfiguration) {
		t.Errorf("empty model: err = %v, want ErrConfiguration", err)
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing.onnx"), WithBinary(bin)); !errors.Is(err, tts.ErrConfiguration) {
		t.Errorf("missing model: err = %v, want ErrConfiguration", err)
	}
	if _, err := New(model, WithBinary(filepath.Join(t.TempDir(), "no-such-piper"))); !errors.Is(err, tts.ErrConfiguration) {
		t.Errorf("missing binary: err = %v, want ErrConfiguration", err)
	}
	if _, err := New(model, WithBinary(bin)); err != nil {
		t.Errorf("valid: err = %v", err)
	}
}

func TestGenerate_WritesOutput(t *testing.T) {
	t.Parallel()

	bin, model := fakePiper(t, copyStdin)
	e, err := New(model, WithBinary(bin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.SetRate(2.0)

	dst := filepath.Join(t.TempDir(), "tts_1.wav")
	if err := e.Generate(context.Background(), "안녕하세요", dst); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "안녕하세요" {
		t.Errorf("output = %q", data)
	}

	args, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "args"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(args), "--length_scale 0.500") {
		t.Errorf("args = %q, want length_scale 0.500", args)
	}
	if e.Format() != tts.FormatWAV {
		t.Errorf("Format = %q, want wav", e.Format())
	}
}

func TestGenerate_ProcessFailure(t *testing.T) {
	t.Parallel()

	bin, model := fakePiper(t, `echo "bad model" >&2; exit 3`)
	e, err := New(model, WithBinary(bin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "tts_1.wav")
	err = e.Generate(context.Background(), "x", dst)
	if !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if !strings.Contains(err.Error(), "bad model") {
		t.Errorf("err = %v, want stderr included", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Errorf("dst exists after failure")
	}
}

func TestArgs_DefaultRateOmitsLengthScale(t *testing.T) {
	t.Parallel()

	e := &Engine{binary: "piper", model: "m.onnx", rate: 1.0}
	got := strings.Join(e.args("out.wav"), " ")
	if got != "--model m.onnx --output_file out.wav" {
		t.Errorf("args = %q", got)
	}
}
