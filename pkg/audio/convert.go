package audio

import "log/slog"

// Convert returns pcm (in format from) as 16-bit PCM in format to. It
// resamples first and then converts channels, so a stereo-to-mono conversion
// never resamples twice the data it needs to. Trailing bytes that do not form
// a whole sample frame are dropped.
//
// Only mono and stereo are supported; other channel counts are returned
// resampled but otherwise unchanged.
func Convert(pcm []byte, from, to Format) []byte {
	if from.Channels <= 0 || from.SampleRate <= 0 {
		return nil
	}
	frameSize := from.Channels * 2
	pcm = pcm[:len(pcm)/frameSize*frameSize]

	if from == to {
		return pcm
	}

	if from.SampleRate != to.SampleRate {
		pcm = Resample16(pcm, from.Channels, from.SampleRate, to.SampleRate)
	}

	switch {
	case from.Channels == to.Channels:
	case from.Channels == 1 && to.Channels == 2:
		pcm = MonoToStereo(pcm)
	case from.Channels == 2 && to.Channels == 1:
		pcm = StereoToMono(pcm)
	default:
		slog.Warn("audio: unsupported channel conversion", "from", from.String(), "to", to.String())
	}
	return pcm
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

// Resample16 resamples interleaved 16-bit PCM with the given channel count
// from srcRate to dstRate by linear interpolation. Equal or invalid rates
// return pcm unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			s0 := float64(sample(pcm, idx*channels+ch))
			s1 := float64(sample(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0+(s1-s0)*frac))
		}
	}
	return out
}

// MonoToStereo duplicates each mono sample into a left/right pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sample(pcm, i)
		putSample(out, i*2, s)
		putSample(out, i*2+1, s)
	}
	return out
}

// StereoToMono averages each left/right pair.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := range n {
		avg := (int32(sample(pcm, i*2)) + int32(sample(pcm, i*2+1))) / 2
		putSample(out, i, int16(avg))
	}
	return out
}

// Frames splits pcm into chunks of exactly size bytes. The last chunk is
// zero-padded.
func Frames(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		end := off + size
		if end <= len(pcm) {
			out = append(out, pcm[off:end])
			continue
		}
		last := make([]byte, size)
		copy(last, pcm[off:])
		out = append(out, last)
	}
	return out
}
