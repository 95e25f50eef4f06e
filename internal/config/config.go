// Package config provides the configuration schema, loader, hot-reload
// watcher, and engine factory registry for chattts.
package config

import (
	"time"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where guild settings are persisted.
type StorageBackend string

const (
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageFile, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure. It is loaded from YAML with
// [Load] or [LoadFromReader]; secrets may come from the environment instead.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Engines  EnginesConfig  `yaml:"engines"`
	Playback PlaybackConfig `yaml:"playback"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig holds the ops HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr serves /metrics, /healthz and /readyz. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, also writes logs to a rotating file.
	LogFile string `yaml:"log_file"`

	LogMaxSizeMB  int `yaml:"log_max_size_mb"`
	LogMaxBackups int `yaml:"log_max_backups"`
	LogMaxAgeDays int `yaml:"log_max_age_days"`
}

// DiscordConfig holds the bot credentials and command settings.
type DiscordConfig struct {
	// Token is the bot token. Usually supplied via DISCORD_BOT_TOKEN.
	Token string `yaml:"token"`

	// AdminRole is the role name allowed to run configuration commands.
	// Empty allows everyone; Manage Server always passes.
	AdminRole string `yaml:"admin_role"`

	// CommandGuildID registers slash commands for one guild only, which
	// takes effect immediately. Empty registers them globally.
	CommandGuildID string `yaml:"command_guild_id"`
}

// EnginesConfig configures every synthesis engine kind.
type EnginesConfig struct {
	CloudNeural CloudNeuralConfig `yaml:"cloud_neural"`
	BasicCloud  BasicCloudConfig  `yaml:"basic_cloud"`
	Local       LocalConfig       `yaml:"local"`
	Edge        EdgeConfig        `yaml:"edge"`

	// Fallback names an engine tried when a guild's engine fails. Empty
	// disables failover.
	Fallback tts.Kind `yaml:"fallback"`

	Breaker BreakerConfig `yaml:"breaker"`

	// Workers bounds concurrent synthesis calls across all guilds.
	Workers int `yaml:"workers"`
}

// CloudNeuralConfig configures Google Cloud Text-to-Speech.
type CloudNeuralConfig struct {
	// CredentialsFile is a service-account JSON file.
	CredentialsFile string `yaml:"credentials_file"`

	// CredentialsJSON is the service-account document itself. Usually
	// supplied via GOOGLE_CLOUD_CREDENTIALS_JSON and never logged.
	CredentialsJSON string `yaml:"credentials_json"`

	LanguageCode string `yaml:"language_code"`
}

// BasicCloudConfig configures the Google Translate TTS endpoint.
type BasicCloudConfig struct {
	Language string `yaml:"language"`
}

// LocalConfig configures the piper subprocess engine.
type LocalConfig struct {
	Binary string `yaml:"binary"`
	Model  string `yaml:"model"`
}

// EdgeConfig configures Microsoft Edge read-aloud voices.
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// BreakerConfig tunes the circuit breaker in front of each engine.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PlaybackConfig tunes message intake and the playback loop.
type PlaybackConfig struct {
	// TempDir holds per-guild artifacts. Default: the OS temp dir.
	TempDir string `yaml:"temp_dir"`

	// MaxMessageLength truncates messages to this many runes. Default: 100.
	MaxMessageLength int `yaml:"max_message_length"`

	// RateLimit is the sustained messages per second accepted per guild.
	// 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the number of messages accepted at once per guild.
	Burst int `yaml:"burst"`
}

// StorageConfig selects the guild settings persister.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Path is the YAML file or SQLite database.
	Path string `yaml:"path"`

	// PostgresDSN is used by the postgres backend. Usually supplied via
	// CHATTTS_POSTGRES_DSN.
	PostgresDSN string `yaml:"postgres_dsn"`
}
