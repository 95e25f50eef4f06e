package guildconfig

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/chattts/pkg/provider/tts"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS guild_configs (
    guild_id        TEXT PRIMARY KEY,
    text_channel_id TEXT NOT NULL,
    engine          TEXT NOT NULL,
    voice           TEXT NOT NULL DEFAULT '',
    rate            REAL NOT NULL DEFAULT 1.0,
    pitch           REAL NOT NULL DEFAULT 0.0,
    updated_at      TEXT NOT NULL
)`

// SQLiteStore persists the configuration set in a single SQLite table.
// Each save replaces the table contents inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Persister = (*SQLiteStore)(nil)
	_ Pinger    = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("guildconfig: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("guildconfig: open sqlite: %w", err)
	}
	// modernc's driver serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("guildconfig: migrate sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements [Persister].
func (s *SQLiteStore) Load(ctx context.Context) (map[string]GuildConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, text_channel_id, engine, voice, rate, pitch, updated_at FROM guild_configs`)
	if err != nil {
		return nil, fmt.Errorf("guildconfig: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]GuildConfig)
	for rows.Next() {
		var (
			cfg     GuildConfig
			engine  string
			updated string
		)
		if err := rows.Scan(&cfg.GuildID, &cfg.TextChannelID, &engine,
			&cfg.Params.Voice, &cfg.Params.Rate, &cfg.Params.Pitch, &updated); err != nil {
			return nil, fmt.Errorf("guildconfig: scan: %w", err)
		}
		cfg.Engine = tts.Kind(engine)
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			cfg.UpdatedAt = t
		}
		out[cfg.GuildID] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("guildconfig: rows: %w", err)
	}
	return out, nil
}

// Save implements [Persister].
func (s *SQLiteStore) Save(ctx context.Context, configs map[string]GuildConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("guildconfig: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM guild_configs`); err != nil {
		return fmt.Errorf("guildconfig: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO guild_configs (guild_id, text_channel_id, engine, voice, rate, pitch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("guildconfig: prepare: %w", err)
	}
	defer stmt.Close()

	for id, cfg := range configs {
		if _, err := stmt.ExecContext(ctx, id, cfg.TextChannelID, string(cfg.Engine),
			cfg.Params.Voice, cfg.Params.Rate, cfg.Params.Pitch,
			cfg.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("guildconfig: insert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("guildconfig: commit: %w", err)
	}
	return nil
}

// Ping implements [Pinger].
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
