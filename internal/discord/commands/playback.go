package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord"
	"github.com/MrWong99/chattts/internal/resilience"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// PlaybackCommands handles /ttsstatus and /skip.
type PlaybackCommands struct {
	deps Deps
}

// NewPlaybackCommands creates a PlaybackCommands handler.
func NewPlaybackCommands(deps Deps) *PlaybackCommands {
	return &PlaybackCommands{deps: deps}
}

// Register registers /ttsstatus and /skip with the router.
func (pc *PlaybackCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "ttsstatus",
		Description: "현재 TTS 설정과 대기열 상태를 보여줍니다.",
	}, pc.handleStatus)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "skip",
		Description: "지금 읽고 있는 메시지를 건너뜁니다.",
	}, pc.handleSkip)
}

func (pc *PlaybackCommands) handleStatus(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := guildOf(r, i)
	if !ok {
		return
	}
	cfg, ok := pc.deps.Store.Get(guildID)
	if !ok {
		discord.Respond(r, i, msgNotConfigured)
		return
	}

	channel := cfg.TextChannelID
	if pc.deps.Channels != nil {
		channel = pc.deps.Channels.ChannelName(cfg.TextChannelID)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "대상 채널", Value: channel, Inline: true},
		{Name: "엔진", Value: cfg.Engine.Label(), Inline: true},
	}
	if cfg.Engine == tts.KindCloudNeural {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "음성", Value: tts.NeuralVoiceLabel(cfg.Params.Voice)},
			&discordgo.MessageEmbedField{Name: "속도", Value: fmt.Sprintf("%s (%s)", formatNumber(cfg.Params.Rate), SpeedLabel(cfg.Params.Rate)), Inline: true},
			&discordgo.MessageEmbedField{Name: "피치", Value: fmt.Sprintf("%s (%s)", formatNumber(cfg.Params.Pitch), PitchLabel(cfg.Params.Pitch)), Inline: true},
		)
	} else if cfg.Params.Voice != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "음성", Value: cfg.Params.Voice})
	}

	queue := "재생 중이 아님"
	if pc.deps.Sessions != nil {
		if st, ok := pc.deps.Sessions.Stats(guildID); ok {
			queue = fmt.Sprintf("대기 %d개 · 재생 %d개 · 실패 %d개",
				st.Pending, st.Played, st.SynthFailed+st.PlaybackFailed)
		}
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "대기열", Value: queue})
	if pc.deps.Sessions != nil {
		if u, ok := pc.deps.Sessions.Current(guildID); ok {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:  "읽는 중",
				Value: fmt.Sprintf("<@%s> %s", u.AuthorID, preview(u.Text, previewRunes)),
			})
		}
	}
	if pc.deps.Engines != nil {
		if health := breakerSummary(pc.deps.Engines.Breakers(guildID)); health != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "엔진 상태", Value: health})
		}
	}

	discord.RespondEmbed(r, i, &discordgo.MessageEmbed{
		Title:  "🔊 TTS 상태",
		Color:  0x5865F2,
		Fields: fields,
	})
}

// previewRunes caps the utterance text shown by /ttsstatus.
const previewRunes = 60

// preview shortens s to at most n runes, marking the cut with an ellipsis.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// breakerSummary lists each backend with its breaker state, ordered by name.
// It is empty when the engine has no fallback chain.
func breakerSummary(states map[string]resilience.State) string {
	if len(states) == 0 {
		return ""
	}
	parts := make([]string, 0, len(states))
	for _, name := range slices.Sorted(maps.Keys(states)) {
		parts = append(parts, name+": "+breakerLabel(states[name]))
	}
	return strings.Join(parts, " · ")
}

func breakerLabel(s resilience.State) string {
	switch s {
	case resilience.StateClosed:
		return "정상"
	case resilience.StateOpen:
		return "차단됨"
	case resilience.StateHalfOpen:
		return "복구 확인 중"
	default:
		return s.String()
	}
}

func (pc *PlaybackCommands) handleSkip(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := guildOf(r, i)
	if !ok {
		return
	}
	if pc.deps.Sessions == nil || !pc.deps.Sessions.Skip(guildID) {
		discord.Respond(r, i, "ℹ️ 지금 읽고 있는 메시지가 없습니다.")
		return
	}
	discord.Respond(r, i, "⏭️ 현재 메시지를 건너뛰었습니다.")
}
