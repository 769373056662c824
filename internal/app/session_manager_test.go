package app_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hearsay-live/hearsay/internal/app"
	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/meeting"
	"github.com/hearsay-live/hearsay/internal/question"
	"github.com/hearsay-live/hearsay/pkg/audio"
	audiomock "github.com/hearsay-live/hearsay/pkg/audio/mock"
	sttmock "github.com/hearsay-live/hearsay/pkg/provider/stt/mock"
)

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []meeting.AnswerEvent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, ev meeting.AnswerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) Events() []meeting.AnswerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]meeting.AnswerEvent, len(b.events))
	copy(out, b.events)
	return out
}

// staticGenerator answers every question with the same text.
type staticGenerator struct {
	answer string
}

func (g *staticGenerator) Generate(_ context.Context, _ *question.Detected, _ []string) string {
	return g.answer
}

// testPipeline closes a segment per frame so tests stay deterministic.
func testPipeline() config.PipelineConfig {
	return config.PipelineConfig{
		Segmenter: config.SegmenterConfig{
			SampleRate: 16000,
			MaxSegment: config.Duration(30 * time.Millisecond),
		},
	}
}

func newTestManager(reg *audio.Registry) *app.SessionManager {
	return app.NewSessionManager(app.SessionManagerConfig{
		Platforms: reg,
		Generator: &staticGenerator{answer: "It starts at noon."},
		Pipeline:  testPipeline(),
	})
}

// testFrame returns 30 ms of non-silent PCM at 16 kHz.
func testFrame() audio.Frame {
	data := make([]byte, 960)
	for i := 0; i < len(data); i += 2 {
		data[i] = 0x00
		data[i+1] = 0x10
	}
	return audio.Frame{Data: data, SampleRate: 16000, Timestamp: time.Now()}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(64)
	platform := &audiomock.Platform{JoinSource: src}
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, platform)
	sm := newTestManager(reg)

	ctx := context.Background()
	info, err := sm.Start(ctx, audio.KindDiscord, "guild-1:general", &recordingBroadcaster{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if info.SessionID == "" {
		t.Error("SessionID should not be empty")
	}
	if info.Platform != audio.KindDiscord {
		t.Errorf("Platform = %q, want %q", info.Platform, audio.KindDiscord)
	}
	if info.MeetingRef != "guild-1:general" {
		t.Errorf("MeetingRef = %q, want %q", info.MeetingRef, "guild-1:general")
	}
	if sm.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", sm.Len())
	}

	// Platform should have been called with the meeting reference.
	if platform.CallCount() != 1 {
		t.Fatalf("Join calls = %d, want 1", platform.CallCount())
	}
	if platform.JoinCalls[0] != "guild-1:general" {
		t.Errorf("Join meetingRef = %q, want %q", platform.JoinCalls[0], "guild-1:general")
	}

	if err := sm.Stop(ctx, info.SessionID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if sm.Len() != 0 {
		t.Fatalf("Len() after Stop = %d, want 0", sm.Len())
	}
	if !src.Closed() {
		t.Error("audio source should be closed after Stop")
	}
}

func TestSessionManager_FallbackToSystemCapture(t *testing.T) {
	t.Parallel()

	platform := &audiomock.Platform{}
	reg := audio.NewRegistry()
	reg.Register(audio.KindSystem, platform)
	sm := newTestManager(reg)

	info, err := sm.Start(context.Background(), audio.KindZoom, "zoom-123", &recordingBroadcaster{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if info.Platform != audio.KindSystem {
		t.Errorf("Platform = %q, want fallback %q", info.Platform, audio.KindSystem)
	}
	if err := sm.Stop(context.Background(), info.SessionID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestSessionManager_NoPlatformAvailable(t *testing.T) {
	t.Parallel()

	sm := newTestManager(audio.NewRegistry())

	_, err := sm.Start(context.Background(), audio.KindTeams, "teams-1", &recordingBroadcaster{})
	if err == nil {
		t.Fatal("Start() with no registered platforms should return error")
	}
}

func TestSessionManager_StopUnknownSession(t *testing.T) {
	t.Parallel()

	sm := newTestManager(audio.NewRegistry())

	err := sm.Stop(context.Background(), "no-such-session")
	if err == nil {
		t.Fatal("Stop() for unknown session should return error")
	}
	if !strings.Contains(err.Error(), "no-such-session") {
		t.Errorf("error should name the session, got: %v", err)
	}
}

func TestSessionManager_ConcurrentSessions(t *testing.T) {
	t.Parallel()

	platform := &audiomock.Platform{}
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, platform)
	sm := newTestManager(reg)

	ctx := context.Background()
	a, err := sm.Start(ctx, audio.KindDiscord, "guild-1:alpha", &recordingBroadcaster{})
	if err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	b, err := sm.Start(ctx, audio.KindDiscord, "guild-1:beta", &recordingBroadcaster{})
	if err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if a.SessionID == b.SessionID {
		t.Error("sessions should have distinct IDs")
	}
	if sm.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sm.Len())
	}

	sm.StopAll(ctx)
	if sm.Len() != 0 {
		t.Fatalf("Len() after StopAll = %d, want 0", sm.Len())
	}
}

func TestSessionManager_SessionEndsWhenSourceCloses(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(16)
	platform := &audiomock.Platform{JoinSource: src}
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, platform)
	sm := newTestManager(reg)

	info, err := sm.Start(context.Background(), audio.KindDiscord, "guild-1:general", &recordingBroadcaster{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	waitFor(t, func() bool { return sm.Len() == 0 },
		"session should deregister after its source ends")

	if _, ok := sm.Info(info.SessionID); ok {
		t.Error("Info() should report the session gone")
	}
}

func TestSessionManager_AnswersFlowToBroadcaster(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(64)
	platform := &audiomock.Platform{JoinSource: src}
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, platform)
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Platforms:   reg,
		Transcriber: &sttmock.Transcriber{Default: "When does the meeting start?"},
		Generator:   &staticGenerator{answer: "It starts at noon."},
		Pipeline:    testPipeline(),
	})

	bc := &recordingBroadcaster{}
	info, err := sm.Start(context.Background(), audio.KindDiscord, "guild-1:general", bc)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	src.Push(testFrame())

	waitFor(t, func() bool { return len(bc.Events()) > 0 },
		"expected an answer to reach the broadcaster")

	ev := bc.Events()[0]
	if ev.Question != "When does the meeting start?" {
		t.Errorf("Question = %q", ev.Question)
	}
	if ev.Answer != "It starts at noon." {
		t.Errorf("Answer = %q", ev.Answer)
	}

	if err := sm.Stop(context.Background(), info.SessionID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestSessionManager_FuzzyDedupSuppressesRephrase(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(64)
	platform := &audiomock.Platform{JoinSource: src}
	reg := audio.NewRegistry()
	reg.Register(audio.KindDiscord, platform)

	// The rephrase shares too few exact tokens for the default overlap
	// measure, but edit similarity catches it.
	transcriber := &sttmock.Transcriber{Results: []string{
		"When does the meeting start?",
		"When does the meeting starts?",
	}}

	pipeline := testPipeline()
	pipeline.DedupSimilarity = config.SimilarityJaroWinkler
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Platforms:   reg,
		Transcriber: transcriber,
		Generator:   &staticGenerator{answer: "It starts at noon."},
		Pipeline:    pipeline,
	})

	bc := &recordingBroadcaster{}
	info, err := sm.Start(context.Background(), audio.KindDiscord, "guild-1:general", bc)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	src.Push(testFrame())
	waitFor(t, func() bool { return len(bc.Events()) == 1 },
		"expected the first question to be answered")

	src.Push(testFrame())
	waitFor(t, func() bool { return transcriber.CallCount() == 2 },
		"expected the second segment to be transcribed")

	// Give the loop a moment; the rephrase must not produce a second answer.
	time.Sleep(50 * time.Millisecond)
	if got := len(bc.Events()); got != 1 {
		t.Fatalf("broadcast events = %d, want 1 (rephrase should be suppressed)", got)
	}

	if err := sm.Stop(context.Background(), info.SessionID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
