package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hearsay-live/hearsay/internal/answer"
	"github.com/hearsay-live/hearsay/internal/app"
	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/health"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/server"
	"github.com/hearsay-live/hearsay/pkg/audio"
	audiomock "github.com/hearsay-live/hearsay/pkg/audio/mock"
	sttmock "github.com/hearsay-live/hearsay/pkg/provider/stt/mock"
)

// newTestServer wires a Server to a session manager backed by a mock
// platform. The returned source feeds audio into whichever session joins.
func newTestServer(t *testing.T, transcript string) (*httptest.Server, *audiomock.Source) {
	t.Helper()

	src := audiomock.NewSource(64)
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, &audiomock.Platform{JoinSource: src})

	manager := app.NewSessionManager(app.SessionManagerConfig{
		Platforms:   reg,
		Transcriber: &sttmock.Transcriber{Default: transcript},
		Generator:   answer.New(nil),
		Pipeline: config.PipelineConfig{
			Segmenter: config.SegmenterConfig{
				SampleRate: 16000,
				MaxSegment: config.Duration(30 * time.Millisecond),
			},
		},
	})

	srv := httptest.NewServer(server.New(manager, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, src
}

// questionFrame returns 30 ms of non-silent PCM at 16 kHz.
func questionFrame() audio.Frame {
	data := make([]byte, 960)
	for i := 0; i < len(data); i += 2 {
		data[i+1] = 0x10
	}
	return audio.Frame{Data: data, SampleRate: 16000, Timestamp: time.Now()}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Read(ctx, conn, out); err != nil {
		t.Fatalf("websocket read: %v", err)
	}
}

func writeMessage(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("websocket write: %v", err)
	}
}

func TestWebSocketMeetingFlow(t *testing.T) {
	srv, src := newTestServer(t, "When does the meeting start?")
	conn := dial(t, srv)

	writeMessage(t, conn, server.ControlMessage{
		Action:    "start_meeting",
		Platform:  "discord",
		MeetingID: "guild-1:general",
	})

	var started server.SessionMessage
	readMessage(t, conn, &started)
	if started.Type != "session_started" {
		t.Fatalf("Type = %q, want %q", started.Type, "session_started")
	}
	if started.SessionID == "" {
		t.Fatal("SessionID should not be empty")
	}
	if started.Platform != "discord" {
		t.Errorf("Platform = %q, want %q", started.Platform, "discord")
	}

	src.Push(questionFrame())

	var ans server.AnswerMessage
	readMessage(t, conn, &ans)
	if ans.Type != "answer" {
		t.Fatalf("Type = %q, want %q", ans.Type, "answer")
	}
	if ans.Question != "When does the meeting start?" {
		t.Errorf("Question = %q", ans.Question)
	}
	if ans.Answer == "" {
		t.Error("Answer should not be empty")
	}
	if _, err := time.Parse(time.RFC3339, ans.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC 3339: %v", ans.Timestamp, err)
	}

	writeMessage(t, conn, server.ControlMessage{Action: "stop_meeting"})

	var stopped server.SessionMessage
	readMessage(t, conn, &stopped)
	if stopped.Type != "session_stopped" {
		t.Fatalf("Type = %q, want %q", stopped.Type, "session_stopped")
	}
	if stopped.SessionID != started.SessionID {
		t.Errorf("SessionID = %q, want %q", stopped.SessionID, started.SessionID)
	}
}

func TestWebSocketUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t, "")
	conn := dial(t, srv)

	writeMessage(t, conn, server.ControlMessage{Action: "pause_meeting"})

	var errMsg server.ErrorMessage
	readMessage(t, conn, &errMsg)
	if errMsg.Type != "error" {
		t.Fatalf("Type = %q, want %q", errMsg.Type, "error")
	}
	if !strings.Contains(errMsg.Message, "pause_meeting") {
		t.Errorf("error should name the action, got %q", errMsg.Message)
	}
}

func TestWebSocketStopWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t, "")
	conn := dial(t, srv)

	writeMessage(t, conn, server.ControlMessage{Action: "stop_meeting"})

	var errMsg server.ErrorMessage
	readMessage(t, conn, &errMsg)
	if errMsg.Type != "error" {
		t.Fatalf("Type = %q, want %q", errMsg.Type, "error")
	}
}

func TestWebSocketDoubleStart(t *testing.T) {
	srv, _ := newTestServer(t, "")
	conn := dial(t, srv)

	writeMessage(t, conn, server.ControlMessage{Action: "start_meeting", Platform: "discord"})
	var started server.SessionMessage
	readMessage(t, conn, &started)
	if started.Type != "session_started" {
		t.Fatalf("Type = %q, want %q", started.Type, "session_started")
	}

	writeMessage(t, conn, server.ControlMessage{Action: "start_meeting", Platform: "discord"})
	var errMsg server.ErrorMessage
	readMessage(t, conn, &errMsg)
	if errMsg.Type != "error" {
		t.Fatalf("Type = %q, want %q", errMsg.Type, "error")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestReadyzReportsFailingChecker(t *testing.T) {
	manager := app.NewSessionManager(app.SessionManagerConfig{
		Platforms: audio.NewRegistry(),
		Generator: answer.New(nil),
	})
	srv := httptest.NewServer(server.New(manager, nil, health.Checker{
		Name:  "archive",
		Check: func(context.Context) error { return context.DeadlineExceeded },
	}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, "")

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
}

func TestStartFailureReleasesClientRegistration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// An empty registry makes every start attempt fail after the client
	// has been registered with the broadcaster.
	manager := app.NewSessionManager(app.SessionManagerConfig{
		Platforms:   audio.NewRegistry(),
		Transcriber: &sttmock.Transcriber{},
		Generator:   answer.New(nil),
		Pipeline: config.PipelineConfig{
			Segmenter: config.SegmenterConfig{
				SampleRate: 16000,
				MaxSegment: config.Duration(30 * time.Millisecond),
			},
		},
	})
	srv := httptest.NewServer(server.New(manager, metrics).Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	writeMessage(t, conn, server.ControlMessage{
		Action:    "start_meeting",
		Platform:  "zoom",
		MeetingID: "standup",
	})

	var errMsg server.ErrorMessage
	readMessage(t, conn, &errMsg)
	if errMsg.Type != "error" {
		t.Fatalf("message type = %q, want error", errMsg.Type)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var connected int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "hearsay.connected_clients" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("data type = %T, want Sum[int64]", met.Data)
			}
			for _, dp := range sum.DataPoints {
				connected += dp.Value
			}
		}
	}
	if connected != 0 {
		t.Errorf("connected clients after failed start = %d, want 0", connected)
	}
}
