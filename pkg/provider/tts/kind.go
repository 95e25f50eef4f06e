package tts

import "fmt"

// Kind selects a synthesis backend. The zero value is invalid.
type Kind string

const (
	// KindCloudNeural is Google Cloud Text-to-Speech with Neural2 voices.
	KindCloudNeural Kind = "cloud_neural"

	// KindBasicCloud is the free Google Translate speech endpoint.
	KindBasicCloud Kind = "basic_cloud"

	// KindLocal is an offline engine running on the host.
	KindLocal Kind = "local"

	// KindEdge is Microsoft Edge's read-aloud service.
	KindEdge Kind = "edge"

	// KindDisabled means TTS is off for the guild.
	KindDisabled Kind = "disabled"
)

// Kinds lists the selectable engine kinds in display order.
var Kinds = []Kind{KindCloudNeural, KindEdge, KindBasicCloud, KindLocal}

// IsValid reports whether k is a recognised kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindCloudNeural, KindBasicCloud, KindLocal, KindEdge, KindDisabled:
		return true
	}
	return false
}

// String returns the configuration name of k.
func (k Kind) String() string { return string(k) }

// Label is the name shown to Discord users.
func (k Kind) Label() string {
	switch k {
	case KindCloudNeural:
		return "Google Cloud TTS"
	case KindBasicCloud:
		return "Google TTS"
	case KindLocal:
		return "Local TTS"
	case KindEdge:
		return "Edge TTS"
	case KindDisabled:
		return "사용 안 함"
	default:
		return string(k)
	}
}

// Description is the choice label offered by the setup command.
func (k Kind) Description() string {
	switch k {
	case KindCloudNeural:
		return "Google Cloud TTS (Neural2, 음성/속도/피치 조절)"
	case KindBasicCloud:
		return "Google TTS (무료, 기본 음성)"
	case KindLocal:
		return "Local TTS (기계음, 속도 최우선)"
	case KindEdge:
		return "Edge TTS (고품질, 약간 느림)"
	default:
		return k.Label()
	}
}

// Params are the per-guild voice knobs. Voice is engine specific and may be
// empty for engines with a fixed voice.
type Params struct {
	Voice string  `yaml:"voice" json:"voice"`
	Rate  float64 `yaml:"rate" json:"rate"`
	Pitch float64 `yaml:"pitch" json:"pitch"`
}

const (
	DefaultNeuralVoice = "ko-KR-Neural2-A"
	DefaultEdgeVoice   = "ko-KR-SunHiNeural"

	MinRate  = 0.25
	MaxRate  = 4.0
	MinPitch = -20.0
	MaxPitch = 20.0
)

// Defaults returns the parameters a guild starts with when it first selects k.
func (k Kind) Defaults() Params {
	switch k {
	case KindCloudNeural:
		return Params{Voice: DefaultNeuralVoice, Rate: 1.0, Pitch: 0.0}
	case KindEdge:
		return Params{Voice: DefaultEdgeVoice, Rate: 1.0, Pitch: 0.0}
	default:
		return Params{Rate: 1.0}
	}
}

// ValidateRate checks rate against [MinRate, MaxRate].
func ValidateRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: rate %.2f not in [%.2f, %.2f]", ErrInvalidParam, rate, MinRate, MaxRate)
	}
	return nil
}

// ValidatePitch checks pitch against [MinPitch, MaxPitch].
func ValidatePitch(pitch float64) error {
	if pitch < MinPitch || pitch > MaxPitch {
		return fmt.Errorf("%w: pitch %.1f not in [%.1f, %.1f]", ErrInvalidParam, pitch, MinPitch, MaxPitch)
	}
	return nil
}

// Voice is a selectable voice for an engine.
type Voice struct {
	Name  string
	Label string
}

// NeuralVoices are the Korean Neural2 voices offered for [KindCloudNeural].
var NeuralVoices = []Voice{
	{Name: "ko-KR-Neural2-A", Label: "여성 음성 1 (Neural2-A)"},
	{Name: "ko-KR-Neural2-B", Label: "여성 음성 2 (Neural2-B)"},
	{Name: "ko-KR-Neural2-C", Label: "남성 음성 1 (Neural2-C)"},
}

// NeuralVoiceLabel returns the display label of a Neural2 voice, or name when
// the voice is not in [NeuralVoices].
func NeuralVoiceLabel(name string) string {
	for _, v := range NeuralVoices {
		if v.Name == name {
			return v.Label
		}
	}
	return name
}
