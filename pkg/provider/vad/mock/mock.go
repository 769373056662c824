// Package mock provides a test double for the vad.Detector interface.
//
// Use Detector in unit tests to script per-frame classifications without a
// real VAD backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
package mock

import (
	"sync"

	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// Call records a single invocation of IsSpeech.
type Call struct {
	// Frame is the PCM slice passed to IsSpeech.
	Frame []byte
	// SampleRate is the rate passed to IsSpeech.
	SampleRate int
}

// Detector is a mock implementation of vad.Detector.
//
// Results are consumed in order; once exhausted, Default is returned. Set Err
// to make every call fail.
type Detector struct {
	mu sync.Mutex

	// Results is the scripted sequence of classifications, consumed one per call.
	Results []bool

	// Default is returned once Results is exhausted.
	Default bool

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every invocation in order.
	Calls []Call

	next int
}

// IsSpeech implements vad.Detector.
func (d *Detector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Calls = append(d.Calls, Call{Frame: frame, SampleRate: sampleRate})
	if d.Err != nil {
		return false, d.Err
	}
	if d.next < len(d.Results) {
		r := d.Results[d.next]
		d.next++
		return r, nil
	}
	return d.Default, nil
}

// CallCount returns the number of IsSpeech invocations so far.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}
