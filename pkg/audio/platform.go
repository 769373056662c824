// Package audio defines the types and interfaces for meeting audio capture
// and segmentation within Hearsay.
//
// The two capture abstractions are:
//
//   - [Platform] joins a meeting (or voice channel) and returns a [Source].
//   - [Source] is an active audio feed delivering [Frame] values until closed.
//
// Implementations of these interfaces live in platform-specific adapter
// packages (e.g., audio/discord). The interfaces are intentionally narrow so
// the session loop stays decoupled from provider details.
//
// [Segmenter] sits between a Source and the transcription provider: it
// buffers frames, gates them through an injected VAD capability, and emits
// accepted speech segments.
package audio

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupported is returned by [Registry.Join] when no adapter is registered
// for the requested platform kind.
var ErrUnsupported = errors.New("audio: platform not supported")

// Source is an active audio feed from a joined meeting.
//
// Implementations must be safe for concurrent use. The Frames channel is
// closed when the source ends or Close is called.
type Source interface {
	// Frames returns the read-only channel delivering captured audio frames.
	// The channel is closed when the feed ends.
	Frames() <-chan Frame

	// Close releases the capture resources and closes the Frames channel.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Platform joins meetings on one conferencing service and opens their audio.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Join connects to the meeting identified by meetingRef and returns an
	// active [Source]. The supplied ctx governs the join attempt only; once
	// joined, the Source lives until [Source.Close] is called.
	Join(ctx context.Context, meetingRef string) (Source, error)
}

// Kind is the closed set of meeting platforms the control protocol accepts.
type Kind string

const (
	KindZoom    Kind = "zoom"
	KindTeams   Kind = "teams"
	KindMeet    Kind = "meet"
	KindDiscord Kind = "discord"

	// KindSystem is the default capture source (local system audio). It is
	// also the fallback for unrecognised platform strings.
	KindSystem Kind = "system"
)

// ParseKind maps a wire-protocol platform string to a [Kind]. Matching is
// case-insensitive; unrecognised values fall back to [KindSystem].
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindZoom:
		return KindZoom
	case KindTeams:
		return KindTeams
	case KindMeet:
		return KindMeet
	case KindDiscord:
		return KindDiscord
	default:
		return KindSystem
	}
}

// Registry maps platform kinds to their [Platform] adapters. Kinds without a
// registered adapter fail with [ErrUnsupported] so the caller can fall back
// to the default source.
//
// Registry is not safe for concurrent mutation; register all adapters during
// startup, before serving sessions.
type Registry struct {
	platforms map[Kind]Platform
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{platforms: make(map[Kind]Platform)}
}

// Register installs p as the adapter for kind, replacing any previous adapter.
func (r *Registry) Register(kind Kind, p Platform) {
	r.platforms[kind] = p
}

// Join resolves kind and delegates to the registered adapter. Unregistered
// kinds (including recognised ones without an adapter configured) return
// [ErrUnsupported].
func (r *Registry) Join(ctx context.Context, kind Kind, meetingRef string) (Source, error) {
	p, ok := r.platforms[kind]
	if !ok {
		return nil, ErrUnsupported
	}
	return p.Join(ctx, meetingRef)
}
