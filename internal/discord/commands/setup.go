package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// SetupCommands handles /setup and /disable.
type SetupCommands struct {
	deps Deps
}

// NewSetupCommands creates a SetupCommands handler.
func NewSetupCommands(deps Deps) *SetupCommands {
	if len(deps.Kinds) == 0 {
		deps.Kinds = tts.Kinds
	}
	return &SetupCommands{deps: deps}
}

// Register registers /setup and /disable with the router.
func (sc *SetupCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand(sc.SetupDefinition(), sc.handleSetup)
	router.RegisterCommand(sc.DisableDefinition(), sc.handleDisable)
}

// SetupDefinition returns the /setup ApplicationCommand.
func (sc *SetupCommands) SetupDefinition() *discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(sc.deps.Kinds))
	for _, k := range sc.deps.Kinds {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  k.Description(),
			Value: k.String(),
		})
	}
	return &discordgo.ApplicationCommand{
		Name:        "setup",
		Description: "TTS를 사용할 채널과 엔진을 설정합니다.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "engine",
				Description: "사용할 TTS 엔진",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
				Choices:     choices,
			},
		},
	}
}

// DisableDefinition returns the /disable ApplicationCommand.
func (sc *SetupCommands) DisableDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "disable",
		Description: "이 서버의 TTS를 끕니다.",
	}
}

// handleSetup binds the invoking text channel and engine kind to the guild.
func (sc *SetupCommands) handleSetup(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := guildOf(r, i)
	if !ok || !authorize(sc.deps.Perms, r, i) {
		return
	}

	kind := tts.Kind(stringOption(i, "engine"))
	if !kind.IsValid() || kind == tts.KindDisabled || !slices.Contains(sc.deps.Kinds, kind) {
		discord.RespondEphemeral(r, i, fmt.Sprintf("❌ 알 수 없는 엔진입니다: %s", kind))
		return
	}

	// Building the engine can take a while (credential parsing, binary
	// probing), longer than Discord's three-second reply window.
	discord.DeferReply(r, i)

	if err := sc.deps.Engines.Check(ctx, kind); err != nil {
		slog.Warn("commands: engine unavailable", "guild_id", guildID, "engine", kind, "err", err)
		msg := fmt.Sprintf("❌ %s 엔진을 사용할 수 없습니다. 관리자에게 문의해주세요.", kind.Label())
		if errors.Is(err, tts.ErrConfiguration) {
			msg += "\n- 엔진 자격 증명이 설정되지 않았습니다."
		}
		discord.FollowUp(r, i, msg)
		return
	}

	cfg, err := sc.deps.Store.SetActive(ctx, guildID, i.ChannelID, kind)
	if err != nil {
		logSaveError("setup", guildID, err)
		discord.FollowUp(r, i, msgSaveFailed)
		return
	}
	slog.Info("commands: tts configured", "guild_id", guildID, "channel_id", cfg.TextChannelID, "engine", cfg.Engine)

	discord.FollowUp(r, i, fmt.Sprintf("✅ 설정 완료!\n- 대상 채널: **%s**\n- 엔진: **%s**",
		sc.channelName(i.ChannelID), kind.Label()))
}

// handleDisable removes the guild's configuration and leaves voice.
func (sc *SetupCommands) handleDisable(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := guildOf(r, i)
	if !ok || !authorize(sc.deps.Perms, r, i) {
		return
	}

	existed, err := sc.deps.Store.SetDisabled(ctx, guildID)
	if err != nil {
		logSaveError("disable", guildID, err)
		discord.Respond(r, i, msgSaveFailed)
		return
	}
	if !existed {
		discord.Respond(r, i, "ℹ️ 이 서버에는 TTS가 설정되어 있지 않습니다.")
		return
	}

	if sc.deps.Sessions != nil {
		sc.deps.Sessions.Remove(guildID)
	}
	sc.deps.Engines.Forget(guildID)
	slog.Info("commands: tts disabled", "guild_id", guildID)

	discord.Respond(r, i, "✅ TTS가 비활성화되었습니다.")
}

func (sc *SetupCommands) channelName(channelID string) string {
	if sc.deps.Channels == nil {
		return channelID
	}
	return sc.deps.Channels.ChannelName(channelID)
}
