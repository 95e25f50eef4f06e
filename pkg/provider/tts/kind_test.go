package tts_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

func TestKind_IsValid(t *testing.T) {
	t.Parallel()

	for _, k := range []tts.Kind{tts.KindCloudNeural, tts.KindBasicCloud, tts.KindLocal, tts.KindEdge, tts.KindDisabled} {
		if !k.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", k)
		}
	}
	for _, k := range []tts.Kind{"", "google", "CLOUD_NEURAL"} {
		if k.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", k)
		}
	}
}

func TestKind_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind tts.Kind
		want tts.Params
	}{
		{tts.KindCloudNeural, tts.Params{Voice: "ko-KR-Neural2-A", Rate: 1.0}},
		{tts.KindEdge, tts.Params{Voice: "ko-KR-SunHiNeural", Rate: 1.0}},
		{tts.KindBasicCloud, tts.Params{Rate: 1.0}},
		{tts.KindLocal, tts.Params{Rate: 1.0}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			if got := tt.kind.Defaults(); got != tt.want {
				t.Errorf("Defaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate    float64
		wantErr bool
	}{
		{0.25, false},
		{1.0, false},
		{4.0, false},
		{0.24, true},
		{4.01, true},
		{0, true},
	}
	for _, tt := range tests {
		err := tts.ValidateRate(tt.rate)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRate(%v) err = %v, wantErr %v", tt.rate, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, tts.ErrInvalidParam) {
			t.Errorf("ValidateRate(%v) err = %v, want ErrInvalidParam", tt.rate, err)
		}
	}
}

func TestValidatePitch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pitch   float64
		wantErr bool
	}{
		{-20, false},
		{0, false},
		{20, false},
		{-20.5, true},
		{25, true},
	}
	for _, tt := range tests {
		err := tts.ValidatePitch(tt.pitch)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePitch(%v) err = %v, wantErr %v", tt.pitch, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, tts.ErrInvalidParam) {
			t.Errorf("ValidatePitch(%v) err = %v, want ErrInvalidParam", tt.pitch, err)
		}
	}
}

func TestNeuralVoiceLabel(t *testing.T) {
	t.Parallel()

	if got := tts.NeuralVoiceLabel("ko-KR-Neural2-C"); got != "남성 음성 1 (Neural2-C)" {
		t.Errorf("NeuralVoiceLabel(C) = %q", got)
	}
	if got := tts.NeuralVoiceLabel("custom"); got != "custom" {
		t.Errorf("NeuralVoiceLabel(custom) = %q, want passthrough", got)
	}
}

func TestFormat_Ext(t *testing.T) {
	t.Parallel()

	if got := tts.FormatWAV.Ext(); got != "wav" {
		t.Errorf("FormatWAV.Ext() = %q", got)
	}
	if got := tts.Format("").Ext(); got != "mp3" {
		t.Errorf("empty Ext() = %q, want mp3", got)
	}
}
