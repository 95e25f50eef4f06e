// Package tts defines the Engine interface for speech-synthesis backends and
// the tagged [Kind] variant that selects one.
//
// An engine turns a single piece of text into an audio file on disk. Engines
// are single-shot: nothing but the mutable voice, rate, and pitch knobs
// (see [Tunable]) carries over between calls. Calls may block for a long time
// (network round trips, subprocesses), so callers are expected to run them off
// their scheduling goroutine.
//
// Concrete engines live in sub-packages (gcloud, gtranslate, piper, edge).
package tts

import (
	"context"
	"errors"
)

var (
	// ErrConfiguration reports missing or malformed engine configuration, such
	// as absent credentials. It is raised at construction time only.
	ErrConfiguration = errors.New("tts: invalid engine configuration")

	// ErrSynthesis reports that an engine could not produce audio for a text.
	ErrSynthesis = errors.New("tts: synthesis failed")

	// ErrInvalidParam reports a voice parameter outside its allowed range.
	ErrInvalidParam = errors.New("tts: parameter out of range")

	// ErrDisabled is returned when an engine is requested for [KindDisabled].
	ErrDisabled = errors.New("tts: engine disabled")
)

// Format is the container format an engine writes.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// Ext returns the file extension for f, without a leading dot.
func (f Format) Ext() string {
	if f == "" {
		return string(FormatMP3)
	}
	return string(f)
}

// Engine is the abstraction over any speech-synthesis backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Generate synthesises text and writes the resulting audio to dst,
	// replacing any existing file. On failure it returns an error wrapping
	// [ErrSynthesis] and leaves no partial file behind.
	Generate(ctx context.Context, text, dst string) error

	// Format reports the container format Generate writes.
	Format() Format
}

// Tunable is implemented by engines whose voice parameters can change
// between calls. Values are validated by the caller.
type Tunable interface {
	SetVoice(name string)
	SetRate(rate float64)
	SetPitch(pitch float64)
}
