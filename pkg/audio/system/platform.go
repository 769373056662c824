// Package system provides an [audio.Platform] implementation that captures
// the local default input device via PortAudio (gordonklaus/portaudio). It
// backs the "system" platform kind and is the capture source sessions fall
// back to when no conferencing adapter is registered for the requested
// platform.
//
// Unlike the conferencing adapters, Join ignores the meeting reference: local
// capture has no meeting identity, the microphone simply starts recording.
package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

const (
	// DefaultSampleRate is the capture rate handed to the pipeline. It
	// matches the native input rate of the transcription providers.
	DefaultSampleRate = 16000

	// defaultFramesPerBuffer is the samples per read, 30 ms at 16 kHz.
	defaultFramesPerBuffer = 480
)

// pa refcounts the process-wide PortAudio initialisation so concurrent
// sessions share one Initialize/Terminate pair.
var pa struct {
	mu   sync.Mutex
	refs int
}

func acquire() error {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	if pa.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
	}
	pa.refs++
	return nil
}

func release() {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	if pa.refs == 0 {
		return
	}
	pa.refs--
	if pa.refs == 0 {
		_ = portaudio.Terminate()
	}
}

// pcmStream is one open capture stream. Read blocks until a full buffer of
// samples is available; the returned slice is only valid until the next Read.
type pcmStream interface {
	Read() ([]int16, error)
	Close() error
}

// Platform implements [audio.Platform] over the default system input device.
//
// Platform is safe for concurrent use; each Join opens its own stream.
type Platform struct {
	sampleRate      int
	framesPerBuffer int

	// openStream opens a started capture stream. Defaults to PortAudio;
	// overridden in tests.
	openStream func(sampleRate, framesPerBuffer int) (pcmStream, error)
}

// Option configures a [Platform].
type Option func(*Platform)

// WithSampleRate sets the capture sample rate in Hz. Default 16000.
func WithSampleRate(hz int) Option {
	return func(p *Platform) {
		if hz > 0 {
			p.sampleRate = hz
		}
	}
}

// WithFramesPerBuffer sets the samples delivered per capture read.
// Default 480 (30 ms at 16 kHz).
func WithFramesPerBuffer(n int) Option {
	return func(p *Platform) {
		if n > 0 {
			p.framesPerBuffer = n
		}
	}
}

// New creates a system capture Platform. No audio resources are touched
// until [Platform.Join]; construction never fails.
func New(opts ...Option) *Platform {
	p := &Platform{
		sampleRate:      DefaultSampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
		openStream:      openDefaultStream,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Join implements [audio.Platform]. The meeting reference is ignored; the
// returned [audio.Source] delivers microphone frames until closed.
func (p *Platform) Join(_ context.Context, _ string) (audio.Source, error) {
	stream, err := p.openStream(p.sampleRate, p.framesPerBuffer)
	if err != nil {
		return nil, fmt.Errorf("system: open capture stream: %w", err)
	}
	return newSource(stream, p.sampleRate), nil
}

// paStream adapts *portaudio.Stream to [pcmStream].
type paStream struct {
	stream *portaudio.Stream
	buf    []int16
}

func openDefaultStream(sampleRate, framesPerBuffer int) (pcmStream, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		release()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		release()
		return nil, err
	}
	return &paStream{stream: stream, buf: buf}, nil
}

func (s *paStream) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

func (s *paStream) Close() error {
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	release()
	return err
}
