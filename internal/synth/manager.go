package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/chattts/internal/config"
	"github.com/MrWong99/chattts/internal/guildconfig"
	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/internal/resilience"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// ConfigSource looks up the settings of a guild. *guildconfig.Store
// satisfies it.
type ConfigSource interface {
	Get(guildID string) (guildconfig.GuildConfig, bool)
}

// EngineFactory builds engines by kind. *config.Registry satisfies it.
type EngineFactory interface {
	CreateEngine(ctx context.Context, kind tts.Kind, cfg config.EnginesConfig) (tts.Engine, error)
}

// Option configures a [Manager].
type Option func(*Manager)

// WithMetrics sets the metrics recorder. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

type guildEngine struct {
	kind   tts.Kind
	engine tts.Engine
}

// Manager turns text into an artifact file for a guild. It keeps one engine
// per guild so the guild's voice knobs never leak into another guild's
// requests.
type Manager struct {
	store   ConfigSource
	factory EngineFactory
	engines config.EnginesConfig
	pool    *Pool
	metrics *observe.Metrics

	mu    sync.Mutex
	cache map[string]*guildEngine
}

// NewManager creates a Manager. A nil pool gets one sized from
// engines.Workers.
func NewManager(store ConfigSource, factory EngineFactory, engines config.EnginesConfig, pool *Pool, opts ...Option) *Manager {
	if pool == nil {
		pool = NewPool(engines.Workers)
	}
	m := &Manager{
		store:   store,
		factory: factory,
		engines: engines,
		pool:    pool,
		cache:   make(map[string]*guildEngine),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// ArtifactPath is the file an utterance of guildID is synthesised into.
// Paths are unique per guild, and a guild plays one utterance at a time.
func ArtifactPath(dir, guildID string, f tts.Format) string {
	return filepath.Join(dir, "tts_"+guildID+"."+f.Ext())
}

// Synthesize writes text spoken with the guild's current engine and
// parameters into dir and returns the artifact path.
//
// The path is returned even when synthesis fails so the caller can remove
// whatever is left. An empty path means nothing was attempted: the guild has
// no configuration or its engine could not be built.
func (m *Manager) Synthesize(ctx context.Context, guildID, text, dir string) (string, error) {
	cfg, ok := m.store.Get(guildID)
	if !ok || cfg.Engine == tts.KindDisabled {
		return "", fmt.Errorf("synth: guild %s: %w", guildID, tts.ErrDisabled)
	}

	eng, err := m.engineFor(ctx, cfg)
	if err != nil {
		return "", err
	}
	path := ArtifactPath(dir, guildID, eng.Format())

	ctx, span := observe.StartGuildSpan(observe.WithGuild(ctx, guildID), "synth.generate",
		observe.Attr("engine", cfg.Engine.String()))
	defer span.End()

	start := time.Now()
	err = m.pool.Do(ctx, func(ctx context.Context) error {
		return eng.Generate(ctx, text, path)
	})
	m.metrics.RecordSynthesis(ctx, cfg.Engine.String(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return path, fmt.Errorf("synth: generate: %w", err)
	}
	return path, nil
}

// Check builds a throwaway engine of kind so configuration problems such as
// missing credentials surface when a guild selects it.
func (m *Manager) Check(ctx context.Context, kind tts.Kind) error {
	if _, err := m.factory.CreateEngine(ctx, kind, m.engines); err != nil {
		return fmt.Errorf("synth: engine %s: %w", kind, err)
	}
	return nil
}

// Forget drops the cached engine of guildID. The next Synthesize builds a
// fresh one.
func (m *Manager) Forget(guildID string) {
	m.mu.Lock()
	delete(m.cache, guildID)
	m.mu.Unlock()
}

// Breakers reports the breaker state of each backend of guildID's engine.
// It returns nil when the guild has no cached engine or no fallback.
func (m *Manager) Breakers(guildID string) map[string]resilience.State {
	m.mu.Lock()
	ge := m.cache[guildID]
	m.mu.Unlock()
	if ge == nil {
		return nil
	}
	if fb, ok := ge.engine.(*resilience.EngineFallback); ok {
		return fb.States()
	}
	return nil
}

func (m *Manager) engineFor(ctx context.Context, cfg guildconfig.GuildConfig) (tts.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ge := m.cache[cfg.GuildID]
	if ge == nil || ge.kind != cfg.Engine {
		eng, err := m.build(ctx, cfg.Engine)
		if err != nil {
			return nil, err
		}
		ge = &guildEngine{kind: cfg.Engine, engine: eng}
		m.cache[cfg.GuildID] = ge
	}

	if t, ok := ge.engine.(tts.Tunable); ok {
		t.SetVoice(cfg.Params.Voice)
		if cfg.Params.Rate > 0 {
			t.SetRate(cfg.Params.Rate)
		}
		t.SetPitch(cfg.Params.Pitch)
	}
	return ge.engine, nil
}

// build creates the engine for kind, wrapped with the configured fallback.
// Must be called with m.mu held.
func (m *Manager) build(ctx context.Context, kind tts.Kind) (tts.Engine, error) {
	primary, err := m.factory.CreateEngine(ctx, kind, m.engines)
	if err != nil {
		return nil, fmt.Errorf("synth: engine %s: %w", kind, err)
	}

	fbKind := m.engines.Fallback
	if fbKind == "" || fbKind == kind {
		return primary, nil
	}
	secondary, err := m.factory.CreateEngine(ctx, fbKind, m.engines)
	if err != nil {
		if !errors.Is(err, tts.ErrDisabled) {
			slog.Warn("synth: fallback engine unavailable", "kind", fbKind, "error", err)
		}
		return primary, nil
	}

	fb := resilience.NewEngineFallback(primary, kind.String(), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  m.engines.Breaker.MaxFailures,
			ResetTimeout: m.engines.Breaker.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				m.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	})
	fb.AddFallback(fbKind.String(), secondary)
	return fb, nil
}
