package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by [Decode] for content that is neither
// MP3 nor 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported artifact format")

// DecodeFile reads the artifact at path and returns its PCM samples.
func DecodeFile(path string) ([]byte, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open artifact: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads an MP3 or WAV stream and returns 16-bit little-endian PCM.
// The container is detected from the content, not from a file name, since a
// fallback engine may write a different format than the primary.
func Decode(r io.Reader) ([]byte, Format, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(12)
	if err != nil && len(head) < 4 {
		return nil, Format{}, fmt.Errorf("%w: artifact too short", ErrUnsupportedFormat)
	}

	if bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && string(head[8:12]) == "WAVE" {
		return decodeWAV(br)
	}
	return decodeMP3(br)
}

func decodeMP3(r io.Reader) ([]byte, Format, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: mp3: %w", ErrUnsupportedFormat, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	// go-mp3 always yields 16-bit stereo.
	return pcm, Format{SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// decodeWAV reads a canonical RIFF/WAVE stream with a PCM fmt chunk.
func decodeWAV(r io.Reader) ([]byte, Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Format{}, fmt.Errorf("audio: wav header: %w", err)
	}

	var (
		format  Format
		haveFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, Format{}, fmt.Errorf("%w: wav: no data chunk", ErrUnsupportedFormat)
		}
		id := string(hdr[:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("%w: wav: short fmt chunk", ErrUnsupportedFormat)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, Format{}, fmt.Errorf("audio: wav fmt: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:])
			bits := binary.LittleEndian.Uint16(body[14:])
			if audioFormat != 1 || bits != 16 {
				return nil, Format{}, fmt.Errorf("%w: wav: format %d, %d bits", ErrUnsupportedFormat, audioFormat, bits)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: wav: data before fmt", ErrUnsupportedFormat)
			}
			// Streaming writers leave the size at 0 or 0xFFFFFFFF; read to EOF then.
			var pcm []byte
			var err error
			if size == 0 || size == 0xFFFFFFFF {
				pcm, err = io.ReadAll(r)
			} else {
				pcm = make([]byte, size)
				var n int
				n, err = io.ReadFull(r, pcm)
				pcm = pcm[:n]
				if errors.Is(err, io.ErrUnexpectedEOF) {
					err = nil
				}
			}
			if err != nil {
				return nil, Format{}, fmt.Errorf("audio: wav data: %w", err)
			}
			return pcm, format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, Format{}, fmt.Errorf("audio: wav skip %q: %w", id, err)
			}
		}
	}
}
