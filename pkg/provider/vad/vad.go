// Package vad defines the Detector interface for voice-activity detection
// backends.
//
// A detector classifies a single raw PCM frame as speech or non-speech. It is
// synchronous by design: IsSpeech returns immediately, making it suitable for
// the low-latency segmentation stage that gates transcription input.
//
// Implementations must be safe for concurrent use across sessions.
package vad

// Detector classifies audio frames as speech-bearing or not.
type Detector interface {
	// IsSpeech reports whether the frame contains speech. frame is raw
	// 16-bit signed little-endian mono PCM at sampleRate Hz. Returns an
	// error if the frame size is invalid or the backend fails; callers
	// should treat an errored frame as non-speech.
	//
	// This method is called once per frame on the pipeline hot path; it
	// must not block.
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}
