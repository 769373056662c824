// Package mock provides test doubles for the audio.Platform and audio.Source
// interfaces.
//
// Source is fed frames by the test via Push and closed via Close; Platform
// hands out a pre-configured Source and records every Join call.
package mock

import (
	"context"
	"sync"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

var (
	_ audio.Source   = (*Source)(nil)
	_ audio.Platform = (*Platform)(nil)
)

// Source is a scripted audio source. Tests push frames with Push and end the
// stream with Close.
type Source struct {
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool

	// CloseErr is returned by Close when non-nil.
	CloseErr error
}

// NewSource creates a Source with the given channel buffer size.
func NewSource(buffer int) *Source {
	return &Source{frames: make(chan audio.Frame, buffer)}
}

// Push delivers a frame to consumers. It reports false when the source is
// already closed.
func (s *Source) Push(f audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.frames <- f
	return true
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.Frame {
	return s.frames
}

// Close implements [audio.Source]. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return s.CloseErr
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Platform is a configurable test double for [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// JoinSource is returned by Join. When nil and JoinErr is nil, Join
	// returns a fresh empty Source.
	JoinSource audio.Source

	// JoinErr, if non-nil, is returned as the error from Join.
	JoinErr error

	// JoinCalls records the meeting references passed to Join in order.
	JoinCalls []string
}

// Join implements [audio.Platform].
func (p *Platform) Join(_ context.Context, meetingRef string) (audio.Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.JoinCalls = append(p.JoinCalls, meetingRef)
	if p.JoinErr != nil {
		return nil, p.JoinErr
	}
	if p.JoinSource != nil {
		return p.JoinSource, nil
	}
	return NewSource(16), nil
}

// CallCount returns how many times Join was invoked.
func (p *Platform) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.JoinCalls)
}
