package guildconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of a [FileStore].
type fileDocument struct {
	Guilds map[string]GuildConfig `yaml:"guilds"`
}

// FileStore persists the configuration set as a YAML document. Saves go to a
// temporary file in the same directory which is then renamed over the target,
// so readers never observe a half-written document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var (
	_ Persister = (*FileStore)(nil)
	_ Pinger    = (*FileStore)(nil)
)

// NewFileStore returns a FileStore writing to path. The file is created on
// the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements [Persister]. A missing file yields an empty set.
func (f *FileStore) Load(_ context.Context) (map[string]GuildConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]GuildConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guildconfig: read %s: %w", f.path, err)
	}

	var doc fileDocument
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("guildconfig: parse %s: %w", f.path, err)
		}
	}
	out := make(map[string]GuildConfig, len(doc.Guilds))
	for id, cfg := range doc.Guilds {
		cfg.GuildID = id
		out[id] = cfg
	}
	return out, nil
}

// Save implements [Persister].
func (f *FileStore) Save(_ context.Context, configs map[string]GuildConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(fileDocument{Guilds: configs})
	if err != nil {
		return fmt.Errorf("guildconfig: marshal: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("guildconfig: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("guildconfig: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("guildconfig: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("guildconfig: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("guildconfig: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("guildconfig: rename: %w", err)
	}
	return nil
}

// Ping implements [Pinger] by checking that the target directory exists.
func (f *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(f.path)
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("guildconfig: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("guildconfig: %s is not a directory", dir)
	}
	return nil
}
