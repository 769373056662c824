package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size. The pipeline
// consumes mono 16 kHz PCM, so decoded audio is downmixed by a factor of 3.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960

	targetSampleRate = 16000
	// decimation is the sample-rate ratio between Discord audio and the
	// pipeline's target rate.
	decimation = opusSampleRate / targetSampleRate // 3
)

// opusDecoder wraps a gopus Opus decoder for a single participant stream.
// Each participant gets its own decoder to maintain decoder state correctly
// across consecutive frames.
type opusDecoder struct {
	dec *gopus.Decoder
}

// newOpusDecoder creates a new Opus decoder configured for Discord audio.
func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes an Opus packet into interleaved stereo PCM int16 samples.
func (d *opusDecoder) decode(opus []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("discord: opus decode: %w", err)
	}
	return pcm, nil
}

// downmixTo16kMono converts interleaved 48 kHz stereo samples to mono 16 kHz
// little-endian bytes. Channels are averaged, then every third mono sample is
// kept.
func downmixTo16kMono(stereo []int16) []byte {
	monoLen := len(stereo) / 2 / decimation
	out := make([]byte, monoLen*2)
	for i := 0; i < monoLen; i++ {
		idx := i * decimation * 2
		s := int16((int32(stereo[idx]) + int32(stereo[idx+1])) / 2)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
