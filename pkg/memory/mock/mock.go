// Package mock provides an in-memory test double for the meeting archive.
//
// MeetingStore records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.MeetingStore{}
//	store.RecentResult = []memory.Line{{Text: "hello"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("WriteLine"); got != 1 {
//	    t.Errorf("expected 1 WriteLine call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// MeetingStore is a configurable test double for [memory.MeetingStore].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil (empty slice returned).
type MeetingStore struct {
	mu sync.Mutex

	calls []Call

	// WriteLineErr is returned by [MeetingStore.WriteLine] when non-nil.
	WriteLineErr error

	// WriteAnswerErr is returned by [MeetingStore.WriteAnswer] when non-nil.
	WriteAnswerErr error

	// RecentResult is returned by [MeetingStore.Recent].
	// When nil, Recent returns an empty non-nil slice.
	RecentResult []memory.Line

	// RecentErr is returned by [MeetingStore.Recent] when non-nil.
	RecentErr error

	// SearchResult is returned by [MeetingStore.Search].
	// When nil, Search returns an empty non-nil slice.
	SearchResult []memory.Line

	// SearchErr is returned by [MeetingStore.Search] when non-nil.
	SearchErr error
}

var _ memory.MeetingStore = (*MeetingStore)(nil)

// WriteLine implements [memory.MeetingStore].
func (m *MeetingStore) WriteLine(_ context.Context, meetingID string, line memory.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "WriteLine", Args: []any{meetingID, line}})
	return m.WriteLineErr
}

// WriteAnswer implements [memory.MeetingStore].
func (m *MeetingStore) WriteAnswer(_ context.Context, meetingID string, answer memory.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "WriteAnswer", Args: []any{meetingID, answer}})
	return m.WriteAnswerErr
}

// Recent implements [memory.MeetingStore].
func (m *MeetingStore) Recent(_ context.Context, meetingID string, within time.Duration) ([]memory.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Recent", Args: []any{meetingID, within}})
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	if m.RecentResult == nil {
		return []memory.Line{}, nil
	}
	return append([]memory.Line(nil), m.RecentResult...), nil
}

// Search implements [memory.MeetingStore].
func (m *MeetingStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]memory.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{query, opts}})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResult == nil {
		return []memory.Line{}, nil
	}
	return append([]memory.Line(nil), m.SearchResult...), nil
}

// Calls returns a copy of all recorded calls in order.
func (m *MeetingStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times the named method was invoked.
func (m *MeetingStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls. Thread-safe.
func (m *MeetingStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
