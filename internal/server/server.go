package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearsay-live/hearsay/internal/app"
	"github.com/hearsay-live/hearsay/internal/health"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/pkg/audio"
)

// sendTimeout bounds a single write to a client.
const sendTimeout = 5 * time.Second

// Client-to-server control messages.
type ControlMessage struct {
	Action    string `json:"action"`
	Platform  string `json:"platform,omitempty"`
	MeetingID string `json:"meeting_id,omitempty"`
}

// Server-to-client session lifecycle and error messages.
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Platform  string `json:"platform,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wsSender adapts a websocket connection to the [Sender] interface.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, v)
}

// connSession is the session a websocket connection controls.
type connSession struct {
	sessionID string
	bc        *Broadcaster
	sender    *wsSender
}

// Server handles the WebSocket control protocol and the operational HTTP
// endpoints. Each websocket connection may control one meeting session at a
// time; answers stream back over the same connection.
type Server struct {
	manager  *app.SessionManager
	metrics  *observe.Metrics
	checkers []health.Checker

	mu       sync.Mutex
	sessions map[*websocket.Conn]*connSession
}

// New creates a Server driving sessions through manager. The optional
// checkers are evaluated by the /readyz endpoint. metrics may be nil.
func New(manager *app.SessionManager, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		manager:  manager,
		metrics:  metrics,
		checkers: checkers,
		sessions: make(map[*websocket.Conn]*connSession),
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(s.checkers...).Register(mux)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx := r.Context()
	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// A dropped connection takes its session down with it.
	defer s.teardown(conn)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			slog.Debug("websocket read error", "error", err)
			return
		}

		var ctrl ControlMessage
		if err := json.Unmarshal(msg, &ctrl); err != nil {
			s.sendError(ctx, conn, "malformed control message")
			continue
		}

		switch ctrl.Action {
		case "start_meeting":
			s.handleStart(ctx, conn, ctrl)
		case "stop_meeting":
			s.handleStop(ctx, conn)
		default:
			s.sendError(ctx, conn, "unknown action "+ctrl.Action)
		}
	}
}

func (s *Server) handleStart(ctx context.Context, conn *websocket.Conn, ctrl ControlMessage) {
	s.mu.Lock()
	_, active := s.sessions[conn]
	s.mu.Unlock()
	if active {
		s.sendError(ctx, conn, "a meeting is already active on this connection")
		return
	}

	kind := audio.ParseKind(ctrl.Platform)
	bc := NewBroadcaster(ctrl.MeetingID, s.metrics)
	sender := &wsSender{conn: conn}
	bc.Register(sender)

	info, err := s.manager.Start(ctx, kind, ctrl.MeetingID, bc)
	if err != nil {
		bc.Unregister(sender)
		slog.Error("start meeting", "platform", kind, "meeting_id", ctrl.MeetingID, "error", err)
		s.sendError(ctx, conn, "could not start meeting: "+err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[conn] = &connSession{sessionID: info.SessionID, bc: bc, sender: sender}
	s.mu.Unlock()

	_ = wsjson.Write(ctx, conn, SessionMessage{
		Type:      "session_started",
		SessionID: info.SessionID,
		Platform:  string(info.Platform),
	})
}

func (s *Server) handleStop(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	cs, ok := s.sessions[conn]
	delete(s.sessions, conn)
	s.mu.Unlock()
	if !ok {
		s.sendError(ctx, conn, "no active meeting on this connection")
		return
	}

	cs.bc.Unregister(cs.sender)
	if err := s.manager.Stop(ctx, cs.sessionID); err != nil {
		slog.Warn("stop meeting", "session_id", cs.sessionID, "error", err)
	}

	_ = wsjson.Write(ctx, conn, SessionMessage{
		Type:      "session_stopped",
		SessionID: cs.sessionID,
	})
}

// teardown stops the session bound to conn, if any. Called when the
// connection goes away without a stop_meeting.
func (s *Server) teardown(conn *websocket.Conn) {
	s.mu.Lock()
	cs, ok := s.sessions[conn]
	delete(s.sessions, conn)
	s.mu.Unlock()
	if !ok {
		return
	}

	cs.bc.Unregister(cs.sender)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.manager.Stop(ctx, cs.sessionID); err != nil {
		slog.Warn("stop meeting on disconnect", "session_id", cs.sessionID, "error", err)
	}
}

func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, msg string) {
	_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: msg})
}
