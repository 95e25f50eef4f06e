// Package discord is the Discord bot layer of chattts. It owns the
// discordgo.Session lifecycle, routes slash commands to their handlers,
// checks who may change guild settings, and bridges chat messages into the
// playback dispatcher.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/pkg/audio"
	discordaudio "github.com/MrWong99/chattts/pkg/audio/discord"
)

// Config holds the bot settings.
type Config struct {
	// Token is the bot token without the "Bot " prefix. Never logged.
	Token string

	// CommandGuildID registers slash commands in one guild only, which takes
	// effect immediately. Empty registers them globally.
	CommandGuildID string

	// AdminRole is the role allowed to change TTS settings. Empty allows
	// everyone.
	AdminRole string

	Metrics *observe.Metrics
}

// Bot owns the Discord gateway connection.
type Bot struct {
	session  *discordgo.Session
	platform *discordaudio.Platform
	router   *CommandRouter
	perms    *PermissionChecker
	guildID  string
	ready    atomic.Bool

	mu        sync.Mutex
	bridge    *MessageBridge
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot and opens the gateway connection.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates
	// Handlers run on the gateway goroutine in arrival order. None of them
	// may block: slow work is handed to the message lanes or a goroutine.
	session.SyncEvents = true

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session),
		router:   NewCommandRouter(cfg.Metrics),
		perms:    NewPermissionChecker(cfg.AdminRole),
		guildID:  cfg.CommandGuildID,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.ready.Store(true)
		slog.Info("discord: gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		b.ready.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.ready.Store(false)
		slog.Warn("discord: gateway disconnected")
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		go b.router.Handle(context.Background(), s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.mu.Lock()
		bridge := b.bridge
		b.mu.Unlock()
		if bridge != nil {
			bridge.Submit(m)
		}
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Platform returns the voice transport.
func (b *Bot) Platform() audio.Platform { return b.platform }

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter { return b.router }

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker { return b.perms }

// Directory resolves voice states and channel names from the gateway cache.
func (b *Bot) Directory() Directory { return StateDirectory{State: b.session.State} }

// Sender returns the channel message sender.
func (b *Bot) Sender() MessageSender { return b.session }

// Ready reports whether the gateway connection is up.
func (b *Bot) Ready() bool { return b.ready.Load() }

// OnMessage routes guild chat messages to handler.
func (b *Bot) OnMessage(handler MessageHandler) {
	bridge := NewMessageBridge(handler, b.Directory(), b.Sender())
	b.mu.Lock()
	b.bridge = bridge
	b.mu.Unlock()
}

// Run registers the slash commands and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID
	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord: commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close removes guild-scoped commands and closes the gateway connection.
// Global commands are left registered; Discord takes up to an hour to
// propagate their removal.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && b.session.State.User != nil {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}
		b.ready.Store(false)
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		if b.bridge != nil {
			b.bridge.Close()
		}
		slog.Info("discord: bot closed")
	})
	return closeErr
}
