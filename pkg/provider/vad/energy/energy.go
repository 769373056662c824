// Package energy provides an RMS-energy voice-activity detector.
//
// It classifies a frame as speech when the root-mean-square amplitude of its
// 16-bit PCM samples exceeds a configurable threshold. Deployments that need model-grade accuracy can
// substitute any other [vad.Detector] implementation.
package energy

import (
	"errors"
	"math"

	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// defaultRMSThreshold is the RMS level (in 16-bit PCM units, max 32767) below
// which a frame is considered silent. 300 corresponds to near-silence on most
// capture chains.
const defaultRMSThreshold = 300.0

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// ErrOddFrame is returned when the frame length is not a multiple of the
// 2-byte sample size.
var ErrOddFrame = errors.New("energy: frame length is not sample-aligned")

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithThreshold overrides the RMS speech threshold. Default: 300.
func WithThreshold(rms float64) Option {
	return func(d *Detector) {
		d.threshold = rms
	}
}

// Detector implements [vad.Detector] using RMS amplitude. It is stateless and
// safe for concurrent use.
type Detector struct {
	threshold float64
}

// New returns a Detector with the supplied options applied.
func New(opts ...Option) *Detector {
	d := &Detector{threshold: defaultRMSThreshold}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(frame []byte, _ int) (bool, error) {
	if len(frame)%2 != 0 {
		return false, ErrOddFrame
	}
	if len(frame) == 0 {
		return false, nil
	}
	return rms(frame) >= d.threshold, nil
}

// rms computes the root-mean-square amplitude of 16-bit little-endian PCM.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	var sum float64
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
