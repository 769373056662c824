// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Hearsay consumes transcription as a batch capability: the segmenter hands
// over one complete speech segment at a time and the session loop suspends on
// the call. Backends that are internally streaming (or remote APIs like the
// OpenAI Whisper endpoint) are wrapped behind this interface by their adapter
// packages.
//
// Implementations must be safe for concurrent use; multiple meeting sessions
// may transcribe simultaneously.
package stt

import (
	"context"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// Transcriber converts an accepted speech segment into text.
type Transcriber interface {
	// Transcribe returns the recognised text for seg. An empty string with a
	// nil error means the backend recognised nothing; the caller treats this
	// as "no transcript" rather than a failure. A non-nil error is a
	// transient collaborator failure; the session continues.
	//
	// The call blocks until the backend responds; ctx cancellation must be
	// honoured promptly.
	Transcribe(ctx context.Context, seg *audio.Segment) (string, error)
}
