package audio

import "time"

// Frame represents a single fixed-size block of captured audio flowing into
// the pipeline. Frames are produced by a platform [Source], classified by VAD,
// and accumulated into speech segments.
type Frame struct {
	// PCM audio data, 16-bit signed little-endian mono.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 48000 for Discord decode output).
	SampleRate int

	// Timestamp marks when this frame was captured.
	Timestamp time.Time
}

// Duration returns the play time of the frame derived from its sample count.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Segment is a run of consecutive frames accepted as speech-bearing. It is
// produced by the [Segmenter] when a closed accumulation passes the speech
// fraction threshold, consumed once by the transcription provider, and not
// retained afterwards.
type Segment struct {
	// PCM is the concatenated frame data, same format as [Frame.Data].
	PCM []byte

	// SampleRate in Hz of the concatenated audio.
	SampleRate int

	// Duration is the total play time of the segment.
	Duration time.Duration

	// SpeechFraction is the fraction of frames the VAD classified as speech,
	// in [0.0, 1.0].
	SpeechFraction float64

	// Start marks when the first frame of the segment was captured.
	Start time.Time
}
