package guildconfig

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// Store is the in-memory configuration set backed by a [Persister].
// It is safe for concurrent use. Mutations are serialised, and each one is
// persisted before the call returns; if persisting fails the in-memory change
// is undone.
type Store struct {
	persister Persister
	now       func() time.Time

	mu      sync.RWMutex
	configs map[string]GuildConfig
}

// Open creates a Store and loads the current snapshot from p.
func Open(ctx context.Context, p Persister) (*Store, error) {
	configs, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("guildconfig: load: %w", err)
	}
	if configs == nil {
		configs = make(map[string]GuildConfig)
	}
	slog.Info("guildconfig: loaded", "guilds", len(configs))
	return &Store{persister: p, now: time.Now, configs: configs}, nil
}

// Get returns the configuration of guildID, or false when TTS is inactive
// for that guild.
func (s *Store) Get(guildID string) (GuildConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[guildID]
	return cfg, ok
}

// Len returns the number of configured guilds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// SetActive binds guildID to textChannelID with the given engine kind,
// creating the entry if needed.
//
// Rate and pitch of an existing entry are kept. The voice is kept only when
// the kind is unchanged, because voice names are engine specific; otherwise
// the kind's default voice is used. A new entry starts from kind.Defaults().
func (s *Store) SetActive(ctx context.Context, guildID, textChannelID string, kind tts.Kind) (GuildConfig, error) {
	if !kind.IsValid() || kind == tts.KindDisabled {
		return GuildConfig{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	var result GuildConfig
	err := s.mutate(ctx, func(configs map[string]GuildConfig) bool {
		params := kind.Defaults()
		if prev, ok := configs[guildID]; ok {
			params.Rate = prev.Params.Rate
			params.Pitch = prev.Params.Pitch
			if prev.Engine == kind {
				params.Voice = prev.Params.Voice
			}
		}
		result = GuildConfig{
			GuildID:       guildID,
			TextChannelID: textChannelID,
			Engine:        kind,
			Params:        params,
			UpdatedAt:     s.now().UTC(),
		}
		configs[guildID] = result
		return true
	})
	if err != nil {
		return GuildConfig{}, err
	}
	return result, nil
}

// SetDisabled removes the entry for guildID. It reports whether an entry
// existed.
func (s *Store) SetDisabled(ctx context.Context, guildID string) (bool, error) {
	var existed bool
	err := s.mutate(ctx, func(configs map[string]GuildConfig) bool {
		if _, existed = configs[guildID]; !existed {
			return false
		}
		delete(configs, guildID)
		return true
	})
	return existed, err
}

// UpdateVoice sets the voice of an existing entry. It reports false and does
// nothing when guildID has no entry.
func (s *Store) UpdateVoice(ctx context.Context, guildID, voice string) (bool, error) {
	return s.update(ctx, guildID, func(p *tts.Params) { p.Voice = voice })
}

// UpdateRate sets the speaking rate of an existing entry. Out-of-range values
// fail with tts.ErrInvalidParam before anything is touched.
func (s *Store) UpdateRate(ctx context.Context, guildID string, rate float64) (bool, error) {
	if err := tts.ValidateRate(rate); err != nil {
		return false, err
	}
	return s.update(ctx, guildID, func(p *tts.Params) { p.Rate = rate })
}

// UpdatePitch sets the pitch of an existing entry. Out-of-range values fail
// with tts.ErrInvalidParam before anything is touched.
func (s *Store) UpdatePitch(ctx context.Context, guildID string, pitch float64) (bool, error) {
	if err := tts.ValidatePitch(pitch); err != nil {
		return false, err
	}
	return s.update(ctx, guildID, func(p *tts.Params) { p.Pitch = pitch })
}

func (s *Store) update(ctx context.Context, guildID string, fn func(*tts.Params)) (bool, error) {
	var found bool
	err := s.mutate(ctx, func(configs map[string]GuildConfig) bool {
		cfg, ok := configs[guildID]
		if !ok {
			return false
		}
		found = true
		fn(&cfg.Params)
		cfg.UpdatedAt = s.now().UTC()
		configs[guildID] = cfg
		return true
	})
	return found, err
}

// mutate applies fn to a copy of the configuration set and, when fn reports a
// change, saves the copy and swaps it in. The lock is held across the save so
// snapshots reach the persister in mutation order.
func (s *Store) mutate(ctx context.Context, fn func(map[string]GuildConfig) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.configs)
	if next == nil {
		next = make(map[string]GuildConfig)
	}
	if !fn(next) {
		return nil
	}
	if err := s.persister.Save(ctx, next); err != nil {
		return fmt.Errorf("guildconfig: save: %w", err)
	}
	s.configs = next
	return nil
}

// Ping checks the persister when it supports health checks.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.persister.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
