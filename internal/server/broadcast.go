// Package server exposes the WebSocket control protocol and the HTTP
// operational endpoints, and fans generated answers out to connected clients.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/internal/meeting"
	"github.com/hearsay-live/hearsay/internal/observe"
)

// AnswerMessage is the server-to-client answer frame.
type AnswerMessage struct {
	Type      string `json:"type"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

// Sender delivers one message to a single client. Implementations wrap the
// underlying transport; a returned error means the client is gone.
type Sender interface {
	Send(ctx context.Context, v any) error
}

// Broadcaster tracks the clients of one session and fans answers out to them.
// Register and Unregister are O(1); Broadcast iterates a snapshot of the set,
// so clients registered mid-broadcast are not guaranteed the in-flight event.
//
// Safe for concurrent use by the session loop and connection handlers.
type Broadcaster struct {
	metrics *observe.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	conns map[Sender]time.Time
}

// NewBroadcaster creates an empty Broadcaster. metrics may be nil; it then
// falls back to [observe.DefaultMetrics].
func NewBroadcaster(sessionID string, metrics *observe.Metrics) *Broadcaster {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Broadcaster{
		metrics: metrics,
		log:     slog.With("session_id", sessionID),
		conns:   make(map[Sender]time.Time),
	}
}

// Register adds conn to the client set.
func (b *Broadcaster) Register(conn Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[conn]; ok {
		return
	}
	b.conns[conn] = time.Now()
	b.metrics.ConnectedClients.Add(context.Background(), 1)
}

// Unregister removes conn from the client set. Unknown conns are ignored.
func (b *Broadcaster) Unregister(conn Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[conn]; !ok {
		return
	}
	delete(b.conns, conn)
	b.metrics.ConnectedClients.Add(context.Background(), -1)
}

// Len returns the current number of registered clients.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Broadcast sends ev to every client registered at call time. A failed send
// is logged and unregisters that client only; the remaining clients still
// receive the event.
func (b *Broadcaster) Broadcast(ctx context.Context, ev meeting.AnswerEvent) {
	msg := AnswerMessage{
		Type:      "answer",
		Question:  ev.Question,
		Answer:    ev.Answer,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}

	b.mu.Lock()
	snapshot := make([]Sender, 0, len(b.conns))
	for conn := range b.conns {
		snapshot = append(snapshot, conn)
	}
	b.mu.Unlock()

	for _, conn := range snapshot {
		if err := conn.Send(ctx, msg); err != nil {
			b.log.Warn("dropping client after failed send", "error", err)
			b.Unregister(conn)
			continue
		}
		b.metrics.AnswersBroadcast.Add(ctx, 1)
	}
}

var _ meeting.Broadcaster = (*Broadcaster)(nil)
