// Package memory defines the durable archive interfaces for meeting
// transcripts and generated answers.
//
// The live pipeline keeps its working state in process (the rolling
// conversation window); the archive is the cold path that makes a meeting
// replayable after the fact. Implementations must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Line is a single transcribed utterance written to the meeting log.
type Line struct {
	// Speaker identifies who spoke, when the audio source can attribute it.
	// Empty when the source provides a single mixed stream.
	Speaker string

	// Text is the transcript text.
	Text string

	// Timestamp is when the underlying audio segment started.
	Timestamp time.Time

	// Duration is the length of the utterance.
	Duration time.Duration
}

// Answer is a generated answer record tied to the question that produced it.
type Answer struct {
	// Question is the detected question text.
	Question string

	// QuestionType classifies the question (e.g. "what", "how", "yes_no").
	QuestionType string

	// Text is the generated answer.
	Text string

	// Timestamp is when the answer was produced.
	Timestamp time.Time
}

// SearchOpts configures a full-text search over archived lines.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// MeetingID restricts the search to a single meeting.
	// An empty string searches across all meetings.
	MeetingID string

	// After filters lines recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters lines recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Speaker restricts results to a specific speaker.
	Speaker string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// MeetingStore is the durable archive for meeting transcripts and answers.
//
// Every method must be safe for concurrent use and must respect context
// cancellation.
type MeetingStore interface {
	// WriteLine appends a transcript line to the log for meetingID.
	WriteLine(ctx context.Context, meetingID string, line Line) error

	// WriteAnswer records a generated answer for meetingID.
	WriteAnswer(ctx context.Context, meetingID string, answer Answer) error

	// Recent returns all lines for meetingID recorded within the given
	// duration before now, ordered chronologically (oldest first).
	Recent(ctx context.Context, meetingID string, within time.Duration) ([]Line, error)

	// Search performs a full-text search over archived lines and applies the
	// optional filters from opts.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Line, error)
}
