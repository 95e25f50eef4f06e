package discord

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/chattts/pkg/audio"
)

const (
	frameDurationMs = 20
	samplesPerFrame = 48000 * frameDurationMs / 1000
)

// voiceFormat is the PCM layout Discord voice accepts: 48 kHz stereo.
var voiceFormat = audio.Format{SampleRate: 48000, Channels: 2}

// frameBytes is the PCM size of one 20 ms voice frame.
var frameBytes = voiceFormat.FrameBytes(frameDurationMs)

// frameEncoder turns 20 ms PCM frames into Opus packets. A fresh encoder is
// used for every artifact; samples is reused between frames.
type frameEncoder struct {
	enc     *gopus.Encoder
	samples []int16
}

func newFrameEncoder() (*frameEncoder, error) {
	enc, err := gopus.NewEncoder(voiceFormat.SampleRate, voiceFormat.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encoder: %w", err)
	}
	return &frameEncoder{
		enc:     enc,
		samples: make([]int16, samplesPerFrame*voiceFormat.Channels),
	}, nil
}

// encode converts one frame of little-endian PCM. Short final frames are
// zero-padded by audio.Frames, so frame is always frameBytes long.
func (e *frameEncoder) encode(frame []byte) ([]byte, error) {
	for i := range e.samples {
		e.samples[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	packet, err := e.enc.Encode(e.samples, samplesPerFrame, len(frame))
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return packet, nil
}
