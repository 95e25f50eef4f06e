package resilience

import (
	"context"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// EngineFallback implements [tts.Engine] with failover across several
// synthesis backends, each behind its own circuit breaker.
//
// Voice parameters are applied to the primary only; fallbacks speak with their
// own defaults, since voice names are not portable between backends.
type EngineFallback struct {
	group *FallbackGroup[tts.Engine]
}

var (
	_ tts.Engine  = (*EngineFallback)(nil)
	_ tts.Tunable = (*EngineFallback)(nil)
)

// NewEngineFallback creates an [EngineFallback] preferring primary.
func NewEngineFallback(primary tts.Engine, primaryName string, cfg FallbackConfig) *EngineFallback {
	return &EngineFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another engine, tried after those already added.
func (f *EngineFallback) AddFallback(name string, e tts.Engine) {
	f.group.AddFallback(name, e)
}

// Generate synthesises text with the first healthy engine.
func (f *EngineFallback) Generate(ctx context.Context, text, dst string) error {
	_, err := f.GenerateNamed(ctx, text, dst)
	return err
}

// GenerateNamed is Generate that also reports which engine produced the audio.
func (f *EngineFallback) GenerateNamed(ctx context.Context, text, dst string) (string, error) {
	return f.group.Execute(ctx, func(ctx context.Context, e tts.Engine) error {
		return e.Generate(ctx, text, dst)
	})
}

// Format reports the primary engine's format. Fallbacks may write a different
// container, so consumers should sniff the file rather than trust its
// extension.
func (f *EngineFallback) Format() tts.Format {
	return f.group.Primary().Format()
}

// SetVoice implements tts.Tunable.
func (f *EngineFallback) SetVoice(name string) {
	if t, ok := f.group.Primary().(tts.Tunable); ok {
		t.SetVoice(name)
	}
}

// SetRate implements tts.Tunable.
func (f *EngineFallback) SetRate(rate float64) {
	if t, ok := f.group.Primary().(tts.Tunable); ok {
		t.SetRate(rate)
	}
}

// SetPitch implements tts.Tunable.
func (f *EngineFallback) SetPitch(pitch float64) {
	if t, ok := f.group.Primary().(tts.Tunable); ok {
		t.SetPitch(pitch)
	}
}

// States reports the breaker state of each engine.
func (f *EngineFallback) States() map[string]State {
	return f.group.States()
}
