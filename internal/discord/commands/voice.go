package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

const (
	msgWrongEngine = "❌ 이 명령어는 Google Cloud TTS 엔진을 사용하는 서버에서만 사용할 수 있습니다.\n" +
		"`/setup` 명령어에서 'Google Cloud TTS'를 선택해주세요."

	msgSpeedRange = "❌ 속도는 0.25 ~ 4.0 사이의 값이어야 합니다.\n" +
		"- 0.25 = 매우 느림\n- 1.0 = 보통\n- 2.0 = 빠름\n- 4.0 = 매우 빠름"

	msgPitchRange = "❌ 피치는 -20.0 ~ 20.0 사이의 값이어야 합니다.\n" +
		"- -20.0 = 매우 낮음\n- 0.0 = 기본\n- 20.0 = 매우 높음"
)

// VoiceCommands handles the Google Cloud TTS tuning commands /gcvoice,
// /gcspeed and /gcpitch.
type VoiceCommands struct {
	deps Deps
}

// NewVoiceCommands creates a VoiceCommands handler.
func NewVoiceCommands(deps Deps) *VoiceCommands {
	return &VoiceCommands{deps: deps}
}

// Register registers the tuning commands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	for _, def := range vc.Definitions() {
		switch def.Name {
		case "gcvoice":
			router.RegisterCommand(def, vc.handleVoice)
		case "gcspeed":
			router.RegisterCommand(def, vc.handleSpeed)
		case "gcpitch":
			router.RegisterCommand(def, vc.handlePitch)
		}
	}
}

// Definitions returns the tuning ApplicationCommands. Numeric options carry
// no Discord-side bounds so out-of-range input reaches the handler and gets
// the explanatory reply.
func (vc *VoiceCommands) Definitions() []*discordgo.ApplicationCommand {
	voices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(tts.NeuralVoices))
	for _, v := range tts.NeuralVoices {
		voices = append(voices, &discordgo.ApplicationCommandOptionChoice{Name: v.Label, Value: v.Name})
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "gcvoice",
			Description: "Google Cloud TTS 음성을 변경합니다.",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:        "voice",
				Description: "사용할 음성",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
				Choices:     voices,
			}},
		},
		{
			Name:        "gcspeed",
			Description: "Google Cloud TTS 속도를 변경합니다 (0.25 ~ 4.0).",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:        "speed",
				Description: "말하기 속도 (0.25=매우 느림, 1.0=보통, 2.0=빠름, 4.0=매우 빠름)",
				Type:        discordgo.ApplicationCommandOptionNumber,
				Required:    true,
			}},
		},
		{
			Name:        "gcpitch",
			Description: "Google Cloud TTS 피치를 변경합니다 (-20.0 ~ 20.0).",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:        "pitch",
				Description: "음성 피치 (-20.0=매우 낮음, 0.0=기본, 20.0=매우 높음)",
				Type:        discordgo.ApplicationCommandOptionNumber,
				Required:    true,
			}},
		},
	}
}

// precheck verifies permissions, that the guild is configured, and that it
// uses the cloud neural engine.
func (vc *VoiceCommands) precheck(r discord.Responder, i *discordgo.InteractionCreate) (string, bool) {
	guildID, ok := guildOf(r, i)
	if !ok || !authorize(vc.deps.Perms, r, i) {
		return "", false
	}
	cfg, ok := vc.deps.Store.Get(guildID)
	if !ok {
		discord.Respond(r, i, msgNotConfigured)
		return "", false
	}
	if cfg.Engine != tts.KindCloudNeural {
		discord.Respond(r, i, msgWrongEngine)
		return "", false
	}
	return guildID, true
}

// apply runs a store update and reports whether the reply should be the
// success message.
func (vc *VoiceCommands) apply(r discord.Responder, i *discordgo.InteractionCreate, cmd, guildID string, update func() (bool, error)) bool {
	found, err := update()
	if err != nil {
		logSaveError(cmd, guildID, err)
		discord.Respond(r, i, msgSaveFailed)
		return false
	}
	if !found {
		// Disabled between precheck and update.
		discord.Respond(r, i, msgNotConfigured)
		return false
	}
	return true
}

func (vc *VoiceCommands) handleVoice(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := vc.precheck(r, i)
	if !ok {
		return
	}
	voice := stringOption(i, "voice")
	if !slices.ContainsFunc(tts.NeuralVoices, func(v tts.Voice) bool { return v.Name == voice }) {
		discord.Respond(r, i, fmt.Sprintf("❌ 알 수 없는 음성입니다: %s", voice))
		return
	}

	if !vc.apply(r, i, "gcvoice", guildID, func() (bool, error) {
		return vc.deps.Store.UpdateVoice(ctx, guildID, voice)
	}) {
		return
	}
	discord.Respond(r, i, fmt.Sprintf("✅ Google Cloud TTS 음성이 변경되었습니다!\n- 새 음성: **%s**",
		tts.NeuralVoiceLabel(voice)))
}

func (vc *VoiceCommands) handleSpeed(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := vc.precheck(r, i)
	if !ok {
		return
	}
	speed, ok := floatOption(i, "speed")
	if !ok || tts.ValidateRate(speed) != nil {
		discord.Respond(r, i, msgSpeedRange)
		return
	}

	if !vc.apply(r, i, "gcspeed", guildID, func() (bool, error) {
		return vc.deps.Store.UpdateRate(ctx, guildID, speed)
	}) {
		return
	}
	discord.Respond(r, i, fmt.Sprintf("✅ Google Cloud TTS 속도가 변경되었습니다!\n- 새 속도: **%s** (%s)",
		formatNumber(speed), SpeedLabel(speed)))
}

func (vc *VoiceCommands) handlePitch(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := vc.precheck(r, i)
	if !ok {
		return
	}
	pitch, ok := floatOption(i, "pitch")
	if !ok || tts.ValidatePitch(pitch) != nil {
		discord.Respond(r, i, msgPitchRange)
		return
	}

	if !vc.apply(r, i, "gcpitch", guildID, func() (bool, error) {
		return vc.deps.Store.UpdatePitch(ctx, guildID, pitch)
	}) {
		return
	}
	discord.Respond(r, i, fmt.Sprintf("✅ Google Cloud TTS 피치가 변경되었습니다!\n- 새 피치: **%s** (%s)",
		formatNumber(pitch), PitchLabel(pitch)))
}

// SpeedLabel describes a speaking rate in words.
func SpeedLabel(speed float64) string {
	switch {
	case speed < 0.75:
		return "매우 느림"
	case speed < 1.0:
		return "느림"
	case speed > 1.5:
		return "매우 빠름"
	case speed > 1.0:
		return "빠름"
	default:
		return "보통"
	}
}

// PitchLabel describes a pitch offset in words.
func PitchLabel(pitch float64) string {
	switch {
	case pitch < -10:
		return "매우 낮음"
	case pitch < 0:
		return "낮음"
	case pitch > 10:
		return "매우 높음"
	case pitch > 0:
		return "높음"
	default:
		return "기본"
	}
}
