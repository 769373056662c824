package system

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

const frameChannelBuffer = 64

// Source adapts an open capture stream to the [audio.Source] interface,
// converting each buffer of samples into a little-endian PCM [audio.Frame].
//
// Source is safe for concurrent use.
type Source struct {
	stream     pcmStream
	sampleRate int
	frames     chan audio.Frame

	done      chan struct{}
	closeOnce sync.Once
}

// newSource starts the capture loop for an already-open stream.
func newSource(stream pcmStream, sampleRate int) *Source {
	s := &Source{
		stream:     stream,
		sampleRate: sampleRate,
		frames:     make(chan audio.Frame, frameChannelBuffer),
		done:       make(chan struct{}),
	}
	go s.captureLoop()
	return s
}

// Frames implements [audio.Source]. The channel is closed when the capture
// stream ends or Close is called.
func (s *Source) Frames() <-chan audio.Frame {
	return s.frames
}

// Close implements [audio.Source]. It stops the capture stream and ends the
// capture loop. Calling Close more than once is safe and returns nil.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.stream.Close()
	})
	return err
}

// captureLoop reads sample buffers until the stream fails or Close is
// called, delivering each as a Frame.
func (s *Source) captureLoop() {
	defer close(s.frames)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		samples, err := s.stream.Read()
		if err != nil {
			select {
			case <-s.done:
				// Close tore down the stream; the read error is expected.
			default:
				slog.Warn("system: capture read failed", "error", err)
			}
			return
		}

		frame := audio.Frame{
			Data:       pcmBytes(samples),
			SampleRate: s.sampleRate,
			Timestamp:  time.Now(),
		}

		select {
		case s.frames <- frame:
		default:
			// Channel full. Drop the frame rather than block the capture
			// device read cadence.
		}
	}
}

// pcmBytes converts samples to 16-bit little-endian PCM bytes. The input
// slice is reused by the stream, so the output is always a fresh copy.
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
