// Package meeting holds the per-session pipeline state: the bounded
// conversation window, the duplicate-question guard, and the session loop
// driving segments through transcription, detection and answer generation.
//
// Everything in this package is owned by exactly one session. Nothing here is
// shared across sessions, so none of it needs cross-session locking.
package meeting

import "time"

// Default capacities for the conversation window and its prompt context view.
const (
	DefaultWindowCapacity = 30
	DefaultContextLines   = 10
)

// TranscriptLine is one transcribed utterance in the conversation window.
// Lines are immutable after insertion.
type TranscriptLine struct {
	// Seq is the monotonic per-session sequence number, starting at 1.
	Seq uint64

	// Text is the transcript text.
	Text string

	// Timestamp is when the underlying audio segment started.
	Timestamp time.Time
}

// Window is the bounded, ordered transcript memory of one session. At
// capacity the oldest line is evicted before insertion. It provides the long
// memory (the full window) and the short prompt context (the last K lines).
//
// Lines are stored in a fixed-size ring so appends stay O(1) regardless of
// capacity. head is the index of the oldest stored line.
//
// Window is not safe for concurrent use; it is owned by one session loop.
type Window struct {
	buf     []TranscriptLine
	head    int
	size    int
	nextSeq uint64
}

// NewWindow creates a Window with the given capacity. Non-positive capacity
// falls back to [DefaultWindowCapacity].
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		buf:     make([]TranscriptLine, capacity),
		nextSeq: 1,
	}
}

// Append inserts text as the newest line, evicting the oldest line first when
// the window is full, and returns the stored line with its assigned sequence
// number.
func (w *Window) Append(text string, ts time.Time) TranscriptLine {
	line := TranscriptLine{
		Seq:       w.nextSeq,
		Text:      text,
		Timestamp: ts,
	}
	w.nextSeq++

	if w.size == len(w.buf) {
		// Full: the slot holding the oldest line becomes the newest.
		w.buf[w.head] = line
		w.head = (w.head + 1) % len(w.buf)
		return line
	}
	w.buf[(w.head+w.size)%len(w.buf)] = line
	w.size++
	return line
}

// Len returns the current number of lines in the window.
func (w *Window) Len() int {
	return w.size
}

// Recent returns a copy of the last min(k, Len) lines in insertion order.
// The window itself is not mutated.
func (w *Window) Recent(k int) []TranscriptLine {
	if k <= 0 {
		return []TranscriptLine{}
	}
	if k > w.size {
		k = w.size
	}
	out := make([]TranscriptLine, k)
	for i := range out {
		out[i] = w.buf[(w.head+w.size-k+i)%len(w.buf)]
	}
	return out
}
