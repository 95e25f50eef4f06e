// Package piper provides an offline tts.Engine that runs the piper speech
// synthesiser as a subprocess. Output is WAV.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

const defaultBinary = "piper"

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithBinary sets the piper executable name or path.
func WithBinary(bin string) Option {
	return func(e *Engine) {
		if bin != "" {
			e.binary = bin
		}
	}
}

// Engine implements tts.Engine by invoking piper once per utterance.
type Engine struct {
	binary string
	model  string

	mu   sync.Mutex
	rate float64
}

// New creates an Engine for the given voice model (.onnx). The binary must be
// resolvable and the model must exist, otherwise tts.ErrConfiguration is
// returned.
func New(model string, opts ...Option) (*Engine, error) {
	e := &Engine{binary: defaultBinary, model: model, rate: 1.0}
	for _, o := range opts {
		o(e)
	}

	if model == "" {
		return nil, fmt.Errorf("%w: piper: model must not be empty", tts.ErrConfiguration)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("%w: piper: model: %w", tts.ErrConfiguration, err)
	}
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: piper: %w", tts.ErrConfiguration, err)
	}
	e.binary = path
	return e, nil
}

// SetRate implements tts.Tunable. piper has a length scale rather than a
// speed, so the rate is inverted when the process is started.
func (e *Engine) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = rate
}

// SetVoice implements tts.Tunable. The voice is fixed by the model.
func (e *Engine) SetVoice(string) {}

// SetPitch implements tts.Tunable. piper has no pitch control.
func (e *Engine) SetPitch(float64) {}

// Format implements tts.Engine.
func (e *Engine) Format() tts.Format { return tts.FormatWAV }

func (e *Engine) args(dst string) []string {
	e.mu.Lock()
	rate := e.rate
	e.mu.Unlock()

	args := []string{"--model", e.model, "--output_file", dst}
	if rate != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1/rate, 'f', 3, 64))
	}
	return args
}

// Generate implements tts.Engine.
func (e *Engine) Generate(ctx context.Context, text, dst string) error {
	cmd := exec.CommandContext(ctx, e.binary, e.args(dst)...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return fmt.Errorf("%w: piper: %w", tts.ErrSynthesis, err)
	}

	fi, err := os.Stat(dst)
	if err != nil || fi.Size() == 0 {
		_ = os.Remove(dst)
		if err == nil {
			err = errors.New("empty output")
		}
		return fmt.Errorf("%w: piper: %w", tts.ErrSynthesis, err)
	}
	return nil
}

var (
	_ tts.Engine  = (*Engine)(nil)
	_ tts.Tunable = (*Engine)(nil)
)
