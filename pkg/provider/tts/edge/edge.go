// Package edge provides a tts.Engine backed by Microsoft Edge's read-aloud
// service through edge-tts-go. The service streams MP3 chunks which are
// written to the destination file unchanged.
package edge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// fetchFunc returns the complete MP3 stream for text spoken by voice.
type fetchFunc func(ctx context.Context, text, voice string) ([]byte, error)

// Engine implements tts.Engine for Edge voices.
type Engine struct {
	fetch fetchFunc

	mu    sync.Mutex
	voice string
}

// New creates an Engine speaking with voice, or tts.DefaultEdgeVoice when
// voice is empty.
func New(voice string) *Engine {
	if voice == "" {
		voice = tts.DefaultEdgeVoice
	}
	return &Engine{fetch: stream, voice: voice}
}

// SetVoice implements tts.Tunable.
func (e *Engine) SetVoice(name string) {
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = name
}

// SetRate implements tts.Tunable. Edge voices are spoken at their natural rate.
func (e *Engine) SetRate(float64) {}

// SetPitch implements tts.Tunable. Edge voices are spoken at their natural pitch.
func (e *Engine) SetPitch(float64) {}

// Voice returns the current voice name.
func (e *Engine) Voice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

// Format implements tts.Engine.
func (e *Engine) Format() tts.Format { return tts.FormatMP3 }

// Generate implements tts.Engine.
func (e *Engine) Generate(ctx context.Context, text, dst string) error {
	audio, err := e.fetch(ctx, text, e.Voice())
	if err != nil {
		return fmt.Errorf("%w: edge: %w", tts.ErrSynthesis, err)
	}
	return tts.WriteAudio(ctx, dst, bytes.NewReader(audio))
}

func stream(ctx context.Context, text, voice string) ([]byte, error) {
	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return nil, fmt.Errorf("create communicate: %w", err)
	}
	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	var buf bytes.Buffer
	for msg := range ch {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if t, ok := msg["type"].(string); ok && t == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}
	if buf.Len() == 0 {
		return nil, errors.New("no audio received")
	}
	return buf.Bytes(), nil
}

var (
	_ tts.Engine  = (*Engine)(nil)
	_ tts.Tunable = (*Engine)(nil)
)
