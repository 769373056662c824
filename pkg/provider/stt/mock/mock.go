// Package mock provides a scripted stt.Transcriber for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber returns scripted transcripts in order. After the script is
// exhausted it returns Default. Err, when set, is returned by every call.
type Transcriber struct {
	mu      sync.Mutex
	Results []string
	Default string
	Err     error

	calls []*audio.Segment
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(_ context.Context, seg *audio.Segment) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, seg)
	if t.Err != nil {
		return "", t.Err
	}
	if n := len(t.calls); n <= len(t.Results) {
		return t.Results[n-1], nil
	}
	return t.Default, nil
}

// Calls returns the segments passed to Transcribe so far.
func (t *Transcriber) Calls() []*audio.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*audio.Segment(nil), t.calls...)
}

// CallCount returns how many times Transcribe was invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
