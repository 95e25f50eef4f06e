// Package guildconfig stores per-guild TTS settings: the text channel that is
// read aloud, the selected engine kind, and the engine's voice parameters.
//
// A guild without an entry has TTS switched off. The [Store] keeps the full
// set in memory and writes the whole snapshot through a [Persister] on every
// mutation, so a mutation that returned without error survives a crash.
package guildconfig

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// ErrInvalidKind is returned by [Store.SetActive] for an engine kind that is
// unknown or [tts.KindDisabled].
var ErrInvalidKind = errors.New("guildconfig: invalid engine kind")

// GuildConfig is the TTS configuration of one guild.
type GuildConfig struct {
	GuildID       string     `yaml:"guild_id" json:"guild_id"`
	TextChannelID string     `yaml:"text_channel_id" json:"text_channel_id"`
	Engine        tts.Kind   `yaml:"engine" json:"engine"`
	Params        tts.Params `yaml:"params" json:"params"`
	UpdatedAt     time.Time  `yaml:"updated_at" json:"updated_at"`
}

// Persister loads and saves the complete configuration set. Both calls are
// synchronous; Save replaces whatever was stored before.
type Persister interface {
	Load(ctx context.Context) (map[string]GuildConfig, error)
	Save(ctx context.Context, configs map[string]GuildConfig) error
}

// Pinger is implemented by persisters that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
