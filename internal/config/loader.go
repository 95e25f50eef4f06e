package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// Environment variables that override the file.
const (
	EnvDiscordToken      = "DISCORD_BOT_TOKEN"
	EnvGoogleCredentials = "GOOGLE_CLOUD_CREDENTIALS_JSON"
	EnvPostgresDSN       = "CHATTTS_POSTGRES_DSN"
	EnvCredentialsFile   = "GOOGLE_APPLICATION_CREDENTIALS"
)

// DefaultMaxMessageLen is the rune limit applied to chat messages.
const DefaultMaxMessageLen = 100

const (
	defaultRateLimit      = 1.0
	defaultBurst          = 5
	defaultWorkers        = 4
	defaultBreakerFails   = 3
	defaultBreakerTimeout = 30 * time.Second
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	slog.Debug("config: loaded environment file", "path", path)
	return nil
}

// Load reads the YAML configuration file at path, overlays the environment,
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, fills defaults, overlays the process
// environment, and validates the result. An empty document is allowed.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	Overlay(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Engines.CloudNeural.LanguageCode == "" {
		cfg.Engines.CloudNeural.LanguageCode = "ko-KR"
	}
	if cfg.Engines.BasicCloud.Language == "" {
		cfg.Engines.BasicCloud.Language = "ko"
	}
	if cfg.Engines.Local.Binary == "" {
		cfg.Engines.Local.Binary = "piper"
	}
	if cfg.Engines.Edge.Voice == "" {
		cfg.Engines.Edge.Voice = tts.DefaultEdgeVoice
	}
	if cfg.Engines.Workers == 0 {
		cfg.Engines.Workers = defaultWorkers
	}
	if cfg.Engines.Breaker.MaxFailures == 0 {
		cfg.Engines.Breaker.MaxFailures = defaultBreakerFails
	}
	if cfg.Engines.Breaker.ResetTimeout == 0 {
		cfg.Engines.Breaker.ResetTimeout = defaultBreakerTimeout
	}
	if cfg.Playback.TempDir == "" {
		cfg.Playback.TempDir = os.TempDir()
	}
	if cfg.Playback.MaxMessageLength == 0 {
		cfg.Playback.MaxMessageLength = DefaultMaxMessageLen
	}
	if cfg.Playback.RateLimit == 0 && cfg.Playback.Burst == 0 {
		cfg.Playback.RateLimit = defaultRateLimit
		cfg.Playback.Burst = defaultBurst
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case StorageFile:
			cfg.Storage.Path = "data/guilds.yaml"
		case StorageSQLite:
			cfg.Storage.Path = "data/chattts.db"
		}
	}
}

// Overlay copies secrets from the environment into cfg. Non-empty variables
// win over the file.
func Overlay(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&cfg.Discord.Token, EnvDiscordToken)
	set(&cfg.Engines.CloudNeural.CredentialsJSON, EnvGoogleCredentials)
	set(&cfg.Storage.PostgresDSN, EnvPostgresDSN)
	if cfg.Engines.CloudNeural.CredentialsFile == "" {
		set(&cfg.Engines.CloudNeural.CredentialsFile, EnvCredentialsFile)
	}
}

// Validate checks cfg for a coherent set of values and returns every
// problem joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if strings.TrimSpace(cfg.Discord.Token) == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}

	if fb := cfg.Engines.Fallback; fb != "" && (!fb.IsValid() || fb == tts.KindDisabled) {
		errs = append(errs, fmt.Errorf("engines.fallback %q is invalid; valid values: %s", fb, kindList()))
	}
	if cfg.Engines.Workers < 0 {
		errs = append(errs, fmt.Errorf("engines.workers %d must not be negative", cfg.Engines.Workers))
	}
	if cfg.Engines.Breaker.MaxFailures < 0 || cfg.Engines.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("engines.breaker values must not be negative"))
	}
	if cfg.Engines.CloudNeural.CredentialsFile == "" && cfg.Engines.CloudNeural.CredentialsJSON == "" {
		slog.Warn("config: no Google Cloud credentials configured; the cloud_neural engine will be unavailable")
	}
	if cfg.Engines.Local.Model == "" {
		slog.Debug("config: engines.local.model is empty; the local engine will be unavailable")
	}

	if cfg.Playback.MaxMessageLength < 1 {
		errs = append(errs, fmt.Errorf("playback.max_message_length %d must be at least 1", cfg.Playback.MaxMessageLength))
	}
	if cfg.Playback.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("playback.rate_limit %.2f must not be negative", cfg.Playback.RateLimit))
	}
	if cfg.Playback.RateLimit > 0 && cfg.Playback.Burst < 1 {
		errs = append(errs, fmt.Errorf("playback.burst %d must be at least 1 when rate_limit is set", cfg.Playback.Burst))
	}

	switch cfg.Storage.Backend {
	case StorageFile, StorageSQLite:
		if cfg.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for backend %q", cfg.Storage.Backend))
		}
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres_dsn is required for backend postgres (or set %s)", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, sqlite, postgres", cfg.Storage.Backend))
	}

	return errors.Join(errs...)
}

func kindList() string {
	names := make([]string, len(tts.Kinds))
	for i, k := range tts.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
