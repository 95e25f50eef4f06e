package discord

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/observe"
)

// HandlerFunc handles one slash command invocation.
type HandlerFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate)

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches slash command interactions by command name.
type CommandRouter struct {
	metrics *observe.Metrics

	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandRouter creates an empty router. A nil metrics uses
// observe.DefaultMetrics.
func NewCommandRouter(metrics *observe.Metrics) *CommandRouter {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &CommandRouter{
		metrics:  metrics,
		commands: make(map[string]commandEntry),
	}
}

// RegisterCommand registers cmd and its handler, replacing any command of
// the same name.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// ApplicationCommands returns the registered definitions sorted by name.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, e := range r.commands {
		cmds = append(cmds, e.command)
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return cmds
}

// Handle dispatches an interaction. Only application commands are routed;
// other interaction types are ignored.
func (r *CommandRouter) Handle(ctx context.Context, resp Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	ctx = observe.WithGuild(ctx, i.GuildID)
	if !ok {
		slog.Warn("discord: unknown command", "command", name)
		r.metrics.RecordCommand(ctx, name, "unknown")
		RespondEphemeral(resp, i, "알 수 없는 명령어입니다.")
		return
	}

	ctx, span := observe.StartGuildSpan(ctx, "discord.command", observe.Attr("command", name))
	defer span.End()
	entry.handler(ctx, resp, i)
	r.metrics.RecordCommand(ctx, name, "handled")
}
