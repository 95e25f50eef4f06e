package guildconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// PostgresSchema is the DDL for the guild_configs table. Apply it with
// [PostgresStore.Migrate] or during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS guild_configs (
    guild_id        TEXT PRIMARY KEY,
    text_channel_id TEXT NOT NULL,
    engine          TEXT NOT NULL,
    voice           TEXT NOT NULL DEFAULT '',
    rate            DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    pitch           DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists the configuration set in PostgreSQL. A save
// replaces the table contents in a single transaction.
type PostgresStore struct {
	db DB
}

var (
	_ Persister = (*PostgresStore)(nil)
	_ Pinger    = (*PostgresStore)(nil)
)

// NewPostgresStore creates a [PostgresStore] on db. Call
// [PostgresStore.Migrate] before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres dials dsn and returns a store owning the connection along
// with a function that closes it.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, func(context.Context) error, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("guildconfig: connect postgres: %w", err)
	}
	return NewPostgresStore(conn), conn.Close, nil
}

// Migrate executes [PostgresSchema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("guildconfig: migrate: %w", err)
	}
	return nil
}

// Load implements [Persister].
func (s *PostgresStore) Load(ctx context.Context) (map[string]GuildConfig, error) {
	const query = `
		SELECT guild_id, text_channel_id, engine, voice, rate, pitch, updated_at
		FROM guild_configs`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("guildconfig: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]GuildConfig)
	for rows.Next() {
		var (
			cfg    GuildConfig
			engine string
		)
		if err := rows.Scan(&cfg.GuildID, &cfg.TextChannelID, &engine,
			&cfg.Params.Voice, &cfg.Params.Rate, &cfg.Params.Pitch, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("guildconfig: scan: %w", err)
		}
		cfg.Engine = tts.Kind(engine)
		out[cfg.GuildID] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("guildconfig: rows: %w", err)
	}
	return out, nil
}

// Save implements [Persister].
func (s *PostgresStore) Save(ctx context.Context, configs map[string]GuildConfig) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("guildconfig: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM guild_configs`); err != nil {
		return fmt.Errorf("guildconfig: clear: %w", err)
	}

	const insert = `
		INSERT INTO guild_configs (guild_id, text_channel_id, engine, voice, rate, pitch, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for id, cfg := range configs {
		updated := cfg.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err = tx.Exec(ctx, insert, id, cfg.TextChannelID, string(cfg.Engine),
			cfg.Params.Voice, cfg.Params.Rate, cfg.Params.Pitch, updated); err != nil {
			return fmt.Errorf("guildconfig: insert %s: %w", id, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("guildconfig: commit: %w", err)
	}
	return nil
}

// Ping checks the connection when the underlying DB supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
