package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// ErrEngineNotRegistered is returned by [Registry.CreateEngine] when no
// factory exists for the requested kind.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// EngineFactory builds a fresh engine of one kind from the engine settings.
// Factories should fail with tts.ErrConfiguration when their settings are
// unusable.
type EngineFactory func(ctx context.Context, cfg EnginesConfig) (tts.Engine, error)

// Registry maps engine kinds to their factories. It is safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	engines map[tts.Kind]EngineFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{engines: make(map[tts.Kind]EngineFactory)}
}

// RegisterEngine registers factory for kind, replacing any previous one.
func (r *Registry) RegisterEngine(kind tts.Kind, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[kind] = factory
}

// CreateEngine builds an engine of kind.
func (r *Registry) CreateEngine(ctx context.Context, kind tts.Kind, cfg EnginesConfig) (tts.Engine, error) {
	if kind == tts.KindDisabled {
		return nil, tts.ErrDisabled
	}
	r.mu.RLock()
	factory, ok := r.engines[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotRegistered, kind)
	}
	return factory(ctx, cfg)
}

// Kinds returns the registered kinds in [tts.Kinds] order.
func (r *Registry) Kinds() []tts.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tts.Kind, 0, len(r.engines))
	for _, k := range tts.Kinds {
		if _, ok := r.engines[k]; ok {
			out = append(out, k)
		}
	}
	return slices.Clip(out)
}
