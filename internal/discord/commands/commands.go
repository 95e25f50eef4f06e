// Package commands implements the chattts slash commands.
//
// Each command group is a small struct built from [Deps] with a Register
// method that adds its definitions and handlers to a discord.CommandRouter.
// Replies are posted publicly in the channel; permission failures are
// ephemeral.
package commands

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord"
	"github.com/MrWong99/chattts/internal/guildconfig"
	"github.com/MrWong99/chattts/internal/playback"
	"github.com/MrWong99/chattts/internal/resilience"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

const (
	msgNotConfigured = "❌ 먼저 `/setup` 명령어로 TTS를 설정해주세요."
	msgNoPermission  = "❌ 이 명령어를 사용할 권한이 없습니다."
	msgGuildOnly     = "❌ 이 명령어는 서버에서만 사용할 수 있습니다."
	msgSaveFailed    = "❌ 설정을 저장하지 못했습니다. 잠시 후 다시 시도해주세요."
)

// Store is the guild configuration store used by the commands.
// *guildconfig.Store implements it.
type Store interface {
	Get(guildID string) (guildconfig.GuildConfig, bool)
	SetActive(ctx context.Context, guildID, textChannelID string, kind tts.Kind) (guildconfig.GuildConfig, error)
	SetDisabled(ctx context.Context, guildID string) (bool, error)
	UpdateVoice(ctx context.Context, guildID, voice string) (bool, error)
	UpdateRate(ctx context.Context, guildID string, rate float64) (bool, error)
	UpdatePitch(ctx context.Context, guildID string, pitch float64) (bool, error)
}

// Sessions controls live playback sessions. *playback.Registry implements it.
type Sessions interface {
	Remove(guildID string) bool
	Skip(guildID string) bool
	Stats(guildID string) (playback.Stats, bool)
	Current(guildID string) (playback.Utterance, bool)
}

// Engines resolves synthesis engines. *synth.Manager implements it.
type Engines interface {
	Check(ctx context.Context, kind tts.Kind) error
	Forget(guildID string)
	Breakers(guildID string) map[string]resilience.State
}

// ChannelNamer resolves channel names for replies.
type ChannelNamer interface {
	ChannelName(channelID string) string
}

// Deps bundles what the command groups need.
type Deps struct {
	Store    Store
	Sessions Sessions
	Engines  Engines
	Perms    *discord.PermissionChecker
	Channels ChannelNamer

	// Kinds are the engine kinds offered by /setup. Empty means tts.Kinds.
	Kinds []tts.Kind
}

// RegisterAll registers every command group with router.
func RegisterAll(router *discord.CommandRouter, deps Deps) {
	NewSetupCommands(deps).Register(router)
	NewVoiceCommands(deps).Register(router)
	NewPlaybackCommands(deps).Register(router)
}

// guildOf returns the guild of i, replying with an error when the command
// was used outside a guild.
func guildOf(r discord.Responder, i *discordgo.InteractionCreate) (string, bool) {
	if i.GuildID == "" {
		discord.RespondEphemeral(r, i, msgGuildOnly)
		return "", false
	}
	return i.GuildID, true
}

// authorize checks configuration permissions and replies on failure.
func authorize(perms *discord.PermissionChecker, r discord.Responder, i *discordgo.InteractionCreate) bool {
	if perms != nil && !perms.CanConfigure(i) {
		discord.RespondEphemeral(r, i, msgNoPermission)
		return false
	}
	return true
}

func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	if o := option(i, name); o != nil {
		return o.StringValue()
	}
	return ""
}

func floatOption(i *discordgo.InteractionCreate, name string) (float64, bool) {
	o := option(i, name)
	if o == nil {
		return 0, false
	}
	return o.FloatValue(), true
}

// formatNumber prints v the way users typed it, keeping one decimal for
// whole numbers ("1.0", "0.25", "-3.5").
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func logSaveError(cmd, guildID string, err error) {
	slog.Error("commands: store update failed", "command", cmd, "guild_id", guildID, "err", err)
}
