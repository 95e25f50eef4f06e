package app

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/chattts/internal/config"
	"github.com/MrWong99/chattts/internal/discord"
	discordmock "github.com/MrWong99/chattts/internal/discord/mock"
	"github.com/MrWong99/chattts/internal/guildconfig"
	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/internal/playback"
	"github.com/MrWong99/chattts/pkg/audio"
	audiomock "github.com/MrWong99/chattts/pkg/audio/mock"
	"github.com/MrWong99/chattts/pkg/provider/tts"
	ttsmock "github.com/MrWong99/chattts/pkg/provider/tts/mock"
)

type fakeBot struct {
	platform *audiomock.Platform
	router   *discord.CommandRouter
	perms    *discord.PermissionChecker
	dir      *discordmock.Directory

	mu      sync.Mutex
	ready   bool
	handler discord.MessageHandler
	closed  int
}

func newFakeBot(m *observe.Metrics) *fakeBot {
	return &fakeBot{
		platform: &audiomock.Platform{},
		router:   discord.NewCommandRouter(m),
		perms:    discord.NewPermissionChecker(""),
		dir:      &discordmock.Directory{Names: map[string]string{"text-1": "일반"}},
	}
}

func (b *fakeBot) Platform() audio.Platform                { return b.platform }
func (b *fakeBot) Router() *discord.CommandRouter          { return b.router }
func (b *fakeBot) Permissions() *discord.PermissionChecker { return b.perms }
func (b *fakeBot) Directory() discord.Directory            { return b.dir }

func (b *fakeBot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBot) OnMessage(h discord.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *fakeBot) messageHandler() discord.MessageHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler
}

func (b *fakeBot) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBot) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBot) setReady(r bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = r
}

func (b *fakeBot) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

type memPersister struct {
	mu      sync.Mutex
	configs map[string]guildconfig.GuildConfig
	loadErr error
}

func (p *memPersister) Load(context.Context) (map[string]guildconfig.GuildConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.configs), p.loadErr
}

func (p *memPersister) Save(_ context.Context, configs map[string]guildconfig.GuildConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = maps.Clone(configs)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Discord:  config.DiscordConfig{Token: "test-token"},
		Playback: config.PlaybackConfig{TempDir: t.TempDir()},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type harness struct {
	app    *App
	bot    *fakeBot
	engine *ttsmock.Engine
	store  *memPersister
}

func newHarness(t *testing.T, cfg *config.Config, seed ...guildconfig.GuildConfig) *harness {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h := &harness{
		bot:    newFakeBot(m),
		engine: &ttsmock.Engine{Audio: []byte("ID3")},
		store:  &memPersister{configs: make(map[string]guildconfig.GuildConfig)},
	}
	for _, c := range seed {
		h.store.configs[c.GuildID] = c
	}

	reg := config.NewRegistry()
	reg.RegisterEngine(tts.KindEdge, func(context.Context, config.EnginesConfig) (tts.Engine, error) {
		return h.engine, nil
	})

	a, err := New(context.Background(), cfg, reg,
		WithBot(h.bot),
		WithPersister(h.store),
		WithMetrics(m, nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return h
}

func edgeGuild(id string) guildconfig.GuildConfig {
	return guildconfig.GuildConfig{
		GuildID:       id,
		TextChannelID: "text-1",
		Engine:        tts.KindEdge,
		Params:        tts.KindEdge.Defaults(),
	}
}

func TestNew_WiresSubsystems(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(t), edgeGuild("g1"))

	if n := h.app.Store().Len(); n != 1 {
		t.Errorf("store.Len() = %d, want 1", n)
	}
	if h.bot.messageHandler() == nil {
		t.Fatal("bot has no message handler")
	}
	if h.bot.messageHandler() != h.app.Dispatcher() {
		t.Error("message handler is not the dispatcher")
	}
	if n := len(h.bot.router.ApplicationCommands()); n != 7 {
		t.Errorf("registered commands = %d, want 7", n)
	}
}

func TestNew_StoreLoadFailure(t *testing.T) {
	t.Parallel()

	m, _ := observe.NewMetrics(noop.NewMeterProvider())
	_, err := New(context.Background(), testConfig(t), config.NewRegistry(),
		WithBot(newFakeBot(m)),
		WithPersister(&memPersister{loadErr: errors.New("corrupt")}),
		WithMetrics(m, nil),
	)
	if err == nil || !strings.Contains(err.Error(), "init store") {
		t.Fatalf("New err = %v, want init store error", err)
	}
}

func TestNew_RemovesStaleArtifacts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	stale := filepath.Join(cfg.Playback.TempDir, "tts_g1.mp3")
	keep := filepath.Join(cfg.Playback.TempDir, "notes.txt")
	for _, p := range []string{stale, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	newHarness(t, cfg)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale artifact still present: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestApp_MessageIsSpoken(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	h := newHarness(t, cfg, edgeGuild("g1"))

	res, err := h.bot.messageHandler().OnMessage(context.Background(), playback.Message{
		GuildID:              "g1",
		ChannelID:            "text-1",
		AuthorID:             "u1",
		Text:                 "안녕하세요 https://example.com",
		AuthorVoiceChannelID: "voice-1",
	})
	if err != nil || res != playback.ResultQueued {
		t.Fatalf("OnMessage = %v, %v; want queued", res, err)
	}

	conns := h.bot.platform.Created()
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
	select {
	case path := <-conns[0].Playing():
		if want := filepath.Join(cfg.Playback.TempDir, "tts_g1.mp3"); path != want {
			t.Errorf("played %q, want %q", path, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("nothing played")
	}

	s := h.app.Sessions().Get("g1")
	if s == nil {
		t.Fatal("no session for g1")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	calls := h.engine.Calls()
	if len(calls) != 1 || calls[0].Text != "안녕하세요 링크" {
		t.Errorf("synthesised = %+v, want normalised text", calls)
	}
}

func TestApp_SetupCommandPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(t))
	resp := &discordmock.InteractionResponder{}
	h.bot.router.Handle(context.Background(), resp, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "g2",
			ChannelID: "text-1",
			Member:    &discordgo.Member{User: &discordgo.User{ID: "u1"}},
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "setup",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{{
					Name:  "engine",
					Type:  discordgo.ApplicationCommandOptionString,
					Value: "edge",
				}},
			},
		},
	})

	if got := resp.LastContent(); !strings.HasPrefix(got, "✅ 설정 완료!") {
		t.Errorf("reply = %q", got)
	}
	h.store.mu.Lock()
	_, ok := h.store.configs["g2"]
	h.store.mu.Unlock()
	if !ok {
		t.Error("setup was not persisted")
	}
}

func TestApp_Health(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(t))
	if _, ok := h.app.Health().Evaluate(context.Background()); ok {
		t.Error("ready with gateway down")
	}
	h.bot.setReady(true)
	status, ok := h.app.Health().Evaluate(context.Background())
	if !ok {
		t.Errorf("not ready with gateway up: %v", status)
	}
}

func TestApp_OnConfigChange(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	cfg := testConfig(t)
	m, _ := observe.NewMetrics(noop.NewMeterProvider())
	bot := newFakeBot(m)
	a, err := New(context.Background(), cfg, config.NewRegistry(),
		WithBot(bot),
		WithPersister(&memPersister{}),
		WithMetrics(m, nil),
		WithLevelVar(lv),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Discord.AdminRole = "role-admin"
	next.Playback.RateLimit = 10
	next.Engines.Workers = cfg.Engines.Workers + 1

	a.onConfigChange(cfg, &next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	plain := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{}}}
	if bot.perms.CanConfigure(plain) {
		t.Error("admin role was not applied")
	}
}

func TestApp_RunUntilCancelled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	if err := h.app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if n := h.bot.closeCount(); n != 1 {
		t.Errorf("bot closed %d times, want 1", n)
	}
}

func TestOpenPersister(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name       string
		sc         config.StorageConfig
		wantCloser bool
	}{
		{name: "file", sc: config.StorageConfig{Backend: config.StorageFile, Path: filepath.Join(dir, "g.yaml")}},
		{name: "sqlite", sc: config.StorageConfig{Backend: config.StorageSQLite, Path: filepath.Join(dir, "g.db")}, wantCloser: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, closer, err := openPersister(context.Background(), tt.sc)
			if err != nil {
				t.Fatalf("openPersister: %v", err)
			}
			if (closer != nil) != tt.wantCloser {
				t.Errorf("closer present = %v, want %v", closer != nil, tt.wantCloser)
			}
			if closer != nil {
				defer closer(context.Background())
			}
			store, err := guildconfig.Open(context.Background(), p)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, err := store.SetActive(context.Background(), "g1", "c1", tts.KindEdge); err != nil {
				t.Fatalf("SetActive: %v", err)
			}
		})
	}
}
