package server_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hearsay-live/hearsay/internal/meeting"
	"github.com/hearsay-live/hearsay/internal/server"
)

// stubSender records sent messages and optionally fails every send.
type stubSender struct {
	mu      sync.Mutex
	sent    []any
	sendErr error
}

func (s *stubSender) Send(_ context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *stubSender) Sent() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.sent))
	copy(out, s.sent)
	return out
}

func testEvent() meeting.AnswerEvent {
	return meeting.AnswerEvent{
		Question:     "When does the meeting start?",
		QuestionType: "when",
		Answer:       "It starts at noon.",
		Timestamp:    time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}
}

func TestBroadcasterRegisterUnregister(t *testing.T) {
	bc := server.NewBroadcaster("meeting-1", nil)
	a, b := &stubSender{}, &stubSender{}

	bc.Register(a)
	bc.Register(b)
	bc.Register(a) // duplicate, ignored
	if bc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", bc.Len())
	}

	bc.Unregister(a)
	bc.Unregister(a) // already gone, ignored
	if bc.Len() != 1 {
		t.Fatalf("Len() after Unregister = %d, want 1", bc.Len())
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	bc := server.NewBroadcaster("meeting-1", nil)
	conns := []*stubSender{{}, {}, {}}
	for _, c := range conns {
		bc.Register(c)
	}

	bc.Broadcast(context.Background(), testEvent())

	for i, c := range conns {
		if got := len(c.Sent()); got != 1 {
			t.Errorf("conn %d received %d messages, want 1", i, got)
		}
	}
}

func TestBroadcastFailedSendDropsOnlyThatClient(t *testing.T) {
	bc := server.NewBroadcaster("meeting-1", nil)
	good1 := &stubSender{}
	bad := &stubSender{sendErr: errors.New("connection reset")}
	good2 := &stubSender{}
	bc.Register(good1)
	bc.Register(bad)
	bc.Register(good2)

	bc.Broadcast(context.Background(), testEvent())

	if got := len(good1.Sent()); got != 1 {
		t.Errorf("first healthy conn received %d messages, want 1", got)
	}
	if got := len(good2.Sent()); got != 1 {
		t.Errorf("second healthy conn received %d messages, want 1", got)
	}
	if bc.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after dropping the failed conn", bc.Len())
	}

	// The dropped client gets nothing on the next broadcast either.
	bad.sendErr = nil
	bc.Broadcast(context.Background(), testEvent())
	if got := len(bad.Sent()); got != 0 {
		t.Errorf("dropped conn received %d messages, want 0", got)
	}
}

func TestBroadcastMessageFormat(t *testing.T) {
	bc := server.NewBroadcaster("meeting-1", nil)
	c := &stubSender{}
	bc.Register(c)

	bc.Broadcast(context.Background(), testEvent())

	sent := c.Sent()
	if len(sent) != 1 {
		t.Fatalf("received %d messages, want 1", len(sent))
	}
	msg, ok := sent[0].(server.AnswerMessage)
	if !ok {
		t.Fatalf("message has type %T, want server.AnswerMessage", sent[0])
	}
	if msg.Type != "answer" {
		t.Errorf("Type = %q, want %q", msg.Type, "answer")
	}
	if msg.Question != "When does the meeting start?" {
		t.Errorf("Question = %q", msg.Question)
	}
	if msg.Answer != "It starts at noon." {
		t.Errorf("Answer = %q", msg.Answer)
	}
	if msg.Timestamp != "2026-03-14T15:09:26Z" {
		t.Errorf("Timestamp = %q, want RFC 3339 UTC", msg.Timestamp)
	}
}

func TestBroadcastWithNoClients(t *testing.T) {
	bc := server.NewBroadcaster("meeting-1", nil)
	// Must not panic or block.
	bc.Broadcast(context.Background(), testEvent())
}
