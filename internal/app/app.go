// Package app wires the chattts subsystems into a running bot.
//
// New builds everything from the config: the guild configuration store, the
// synthesis engine manager, the playback registry and dispatcher, the Discord
// bot with its slash commands, and the ops HTTP server. Run blocks until the
// context ends; Shutdown tears everything down in reverse order.
//
// Tests inject doubles through the With* options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chattts/internal/config"
	"github.com/MrWong99/chattts/internal/discord"
	"github.com/MrWong99/chattts/internal/discord/commands"
	"github.com/MrWong99/chattts/internal/guildconfig"
	"github.com/MrWong99/chattts/internal/health"
	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/internal/playback"
	"github.com/MrWong99/chattts/internal/synth"
	"github.com/MrWong99/chattts/pkg/audio"
)

// Bot is the Discord side of the application. *discord.Bot implements it.
type Bot interface {
	Platform() audio.Platform
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	Directory() discord.Directory
	Ready() bool
	OnMessage(handler discord.MessageHandler)
	Run(ctx context.Context) error
	Close() error
}

var _ Bot = (*discord.Bot)(nil)

// App owns every subsystem and its lifetime.
type App struct {
	cfg        *config.Config
	configPath string
	level      *slog.LevelVar

	metrics        *observe.Metrics
	metricsHandler http.Handler

	persister  guildconfig.Persister
	store      *guildconfig.Store
	engines    *synth.Manager
	sessions   *playback.Registry
	dispatcher *playback.Dispatcher
	bot        Bot
	health     *health.Handler

	server  *http.Server
	watcher *config.Watcher

	// closers run last during Shutdown, in order.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithBot injects the Discord bot instead of connecting a real one.
func WithBot(b Bot) Option {
	return func(a *App) { a.bot = b }
}

// WithPersister injects the guild configuration persister instead of opening
// the configured storage backend.
func WithPersister(p guildconfig.Persister) Option {
	return func(a *App) { a.persister = p }
}

// WithMetrics injects the instruments and the /metrics handler instead of
// initialising the OpenTelemetry SDK. A nil handler leaves /metrics
// unregistered.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

// WithLevelVar shares the logger's level so config reloads can change it.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New creates an App. Engine factories come from reg, which main populates.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(observe.ParseLevel(string(cfg.Server.LogLevel)))
	}

	if err := a.initTelemetry(ctx); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initTempDir(); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init temp dir: %w", err)
	}

	a.engines = synth.NewManager(a.store, reg, cfg.Engines, nil, synth.WithMetrics(a.metrics))
	a.sessions = playback.NewRegistry(a.engines, cfg.Playback.TempDir, playback.WithRegistryMetrics(a.metrics))

	if err := a.initBot(ctx); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init bot: %w", err)
	}

	a.dispatcher = playback.NewDispatcher(playback.DispatcherConfig{
		Store:            a.store,
		Registry:         a.sessions,
		Platform:         a.bot.Platform(),
		Metrics:          a.metrics,
		MaxMessageLength: cfg.Playback.MaxMessageLength,
		RateLimit:        cfg.Playback.RateLimit,
		Burst:            cfg.Playback.Burst,
	})
	a.bot.OnMessage(a.dispatcher)

	commands.RegisterAll(a.bot.Router(), commands.Deps{
		Store:    a.store,
		Sessions: a.sessions,
		Engines:  guildEngines{Manager: a.engines, dispatcher: a.dispatcher},
		Perms:    a.bot.Permissions(),
		Channels: a.bot.Directory(),
		Kinds:    reg.Kinds(),
	})

	a.health = health.New(
		health.Gateway("discord", a.bot.Ready),
		health.Ping("guild_store", a.store),
	)
	a.initServer()

	slog.Info("app: initialised",
		"guilds", a.store.Len(),
		"engines", reg.Kinds(),
		"storage", cfg.Storage.Backend,
		"workers", cfg.Engines.Workers,
	)
	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, tel.Shutdown)
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	a.metricsHandler = tel.MetricsHandler
	return nil
}

// initStore opens the configured persister and loads the guild configs.
func (a *App) initStore(ctx context.Context) error {
	if a.persister == nil {
		p, closer, err := openPersister(ctx, a.cfg.Storage)
		if err != nil {
			return err
		}
		a.persister = p
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	store, err := guildconfig.Open(ctx, a.persister)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func openPersister(ctx context.Context, sc config.StorageConfig) (guildconfig.Persister, func(context.Context) error, error) {
	switch sc.Backend {
	case config.StorageSQLite:
		s, err := guildconfig.OpenSQLite(ctx, sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.StoragePostgres:
		s, closeFn, err := guildconfig.ConnectPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = closeFn(ctx)
			return nil, nil, err
		}
		return s, closeFn, nil
	default:
		return guildconfig.NewFileStore(sc.Path), nil, nil
	}
}

// initTempDir creates the artifact directory and removes artifacts left by
// a previous run.
func (a *App) initTempDir() error {
	dir := a.cfg.Playback.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stale, err := filepath.Glob(filepath.Join(dir, "tts_*"))
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("app: failed to remove stale artifact", "path", p, "err", err)
		}
	}
	if len(stale) > 0 {
		slog.Debug("app: removed stale artifacts", "count", len(stale))
	}
	return nil
}

func (a *App) initBot(ctx context.Context) error {
	if a.bot != nil {
		return nil
	}
	b, err := discord.New(ctx, discord.Config{
		Token:          a.cfg.Discord.Token,
		CommandGuildID: a.cfg.Discord.CommandGuildID,
		AdminRole:      a.cfg.Discord.AdminRole,
		Metrics:        a.metrics,
	})
	if err != nil {
		return err
	}
	a.bot = b
	return nil
}

func (a *App) initServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Store returns the guild configuration store.
func (a *App) Store() *guildconfig.Store { return a.store }

// Sessions returns the playback registry.
func (a *App) Sessions() *playback.Registry { return a.sessions }

// Dispatcher returns the chat message dispatcher.
func (a *App) Dispatcher() *playback.Dispatcher { return a.dispatcher }

// Health returns the health handler.
func (a *App) Health() *health.Handler { return a.health }

// Run starts the ops server and config watcher, then runs the bot until ctx
// is cancelled. A cancelled context is not an error.
func (a *App) Run(ctx context.Context) error {
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			slog.Warn("app: config hot reload disabled", "path", a.configPath, "err", err)
		} else {
			a.watcher = w
		}
	}

	var ln net.Listener
	if a.server != nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			slog.Info("app: ops server listening", "addr", ln.Addr().String())
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		err := a.bot.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// onConfigChange applies the hot-reloadable part of a config change.
func (a *App) onConfigChange(old, cur *config.Config) {
	d := config.Diff(old, cur)
	if d.LogLevelChanged {
		a.level.Set(observe.ParseLevel(string(d.NewLogLevel)))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.RateLimitChanged {
		a.dispatcher.SetRateLimit(cur.Playback.RateLimit, cur.Playback.Burst)
		slog.Info("app: rate limit changed", "rate", cur.Playback.RateLimit, "burst", cur.Playback.Burst)
	}
	if d.MaxMessageLengthChanged {
		a.dispatcher.SetMaxMessageLength(cur.Playback.MaxMessageLength)
		slog.Info("app: max message length changed", "runes", cur.Playback.MaxMessageLength)
	}
	if d.AdminRoleChanged {
		a.bot.Permissions().SetRole(cur.Discord.AdminRole)
		slog.Info("app: admin role changed")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes require a restart", "settings", d.RestartRequired)
	}
}

// Shutdown stops the watcher, closes the bot, drains playback sessions and
// runs the remaining closers. If ctx ends first the remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.bot != nil {
			if err := a.bot.Close(); err != nil {
				slog.Warn("app: bot close error", "err", err)
			}
		}
		if a.sessions != nil {
			if err := a.sessions.Close(ctx); err != nil {
				slog.Warn("app: playback sessions did not drain", "err", err)
				shutdownErr = err
			}
		}
		if err := a.closeAll(ctx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll(ctx context.Context) error {
	for i, closer := range a.closers {
		if err := ctx.Err(); err != nil {
			slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return err
		}
		if err := closer(ctx); err != nil {
			slog.Warn("app: closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}

// guildEngines drops both the cached engine and the intake limiter of a guild
// when it is disabled.
type guildEngines struct {
	*synth.Manager
	dispatcher *playback.Dispatcher
}

func (g guildEngines) Forget(guildID string) {
	g.Manager.Forget(guildID)
	g.dispatcher.Forget(guildID)
}
