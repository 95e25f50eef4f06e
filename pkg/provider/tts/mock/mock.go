// Package mock provides a test double for the tts.Engine interface.
//
// Engine writes a fixed payload to the destination path and records every
// call, so consumers can assert on the text they synthesised and on the
// parameters that were applied through tts.Tunable.
//
// Example:
//
//	e := &mock.Engine{Audio: []byte("ID3")}
//	err := e.Generate(ctx, "안녕", "/tmp/out.mp3")
//	// e.Calls()[0].Text == "안녕"
package mock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Text is the text passed to Generate.
	Text string
	// Dst is the destination path passed to Generate.
	Dst string
	// Params is a snapshot of the tunable parameters at call time.
	Params tts.Params
}

// Engine is a mock implementation of tts.Engine and tts.Tunable.
type Engine struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is written to dst on success. When nil a short placeholder is used.
	Audio []byte

	// GenerateErr, if non-nil, is returned from Generate and no file is written.
	GenerateErr error

	// FailTexts makes Generate fail only for the listed texts.
	FailTexts map[string]error

	// Delay blocks Generate for the given duration or until ctx is done.
	Delay time.Duration

	// IgnoreCancel makes Generate sit out the full Delay and write dst even
	// after ctx ended, like a blocking engine call that cannot be aborted.
	IgnoreCancel bool

	// OutFormat is returned by Format. Defaults to tts.FormatMP3.
	OutFormat tts.Format

	// --- Call records ---

	calls  []GenerateCall
	params tts.Params
}

// Generate implements tts.Engine.
func (e *Engine) Generate(ctx context.Context, text, dst string) error {
	e.mu.Lock()
	e.calls = append(e.calls, GenerateCall{Text: text, Dst: dst, Params: e.params})
	delay := e.Delay
	err := e.GenerateErr
	if ferr, ok := e.FailTexts[text]; ok {
		err = ferr
	}
	audio := e.Audio
	ignoreCancel := e.IgnoreCancel
	e.mu.Unlock()

	if delay > 0 && ignoreCancel {
		time.Sleep(delay)
	} else if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", tts.ErrSynthesis, ctx.Err())
		}
	}
	if err != nil {
		return err
	}
	if audio == nil {
		audio = []byte("mock-audio")
	}
	return os.WriteFile(dst, audio, 0o644)
}

// Format implements tts.Engine.
func (e *Engine) Format() tts.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.OutFormat == "" {
		return tts.FormatMP3
	}
	return e.OutFormat
}

// SetVoice implements tts.Tunable.
func (e *Engine) SetVoice(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Voice = name
}

// SetRate implements tts.Tunable.
func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Rate = rate
}

// SetPitch implements tts.Tunable.
func (e *Engine) SetPitch(pitch float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Pitch = pitch
}

// Params returns the parameters last applied through tts.Tunable.
func (e *Engine) Params() tts.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Calls returns a copy of all recorded Generate calls.
func (e *Engine) Calls() []GenerateCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]GenerateCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// Reset clears all recorded calls. Configurable fields are not changed.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

var (
	_ tts.Engine  = (*Engine)(nil)
	_ tts.Tunable = (*Engine)(nil)
)
