package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/meeting"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/question"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/memory"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// SessionInfo holds metadata about an active meeting session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Platform is the resolved capture platform.
	Platform audio.Kind

	// MeetingRef is the caller-supplied meeting identifier. May be empty for
	// the default capture source.
	MeetingRef string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// session pairs a running loop with its lifetime controls.
type session struct {
	info   SessionInfo
	loop   *meeting.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Platforms resolves a platform kind to its audio adapter.
	Platforms *audio.Registry

	// VAD classifies frames during segmentation. May be nil; every frame is
	// then treated as speech.
	VAD vad.Detector

	// Transcriber converts segments to text. May be nil; the session then
	// captures audio without producing transcript lines.
	Transcriber stt.Transcriber

	// Generator produces answers for detected questions.
	Generator meeting.Generator

	// Store is the optional durable meeting archive.
	Store memory.MeetingStore

	// Pipeline carries the per-session tuning knobs.
	Pipeline config.PipelineConfig

	// Metrics receives session instrumentation. Nil falls back to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// SessionManager owns the lifecycle of meeting sessions. Each session runs
// its own pipeline loop; any number of sessions may be active concurrently.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	platforms   *audio.Registry
	vad         vad.Detector
	transcriber stt.Transcriber
	generator   meeting.Generator
	store       memory.MeetingStore
	pipeline    config.PipelineConfig
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &SessionManager{
		platforms:   cfg.Platforms,
		vad:         cfg.VAD,
		transcriber: cfg.Transcriber,
		generator:   cfg.Generator,
		store:       cfg.Store,
		pipeline:    cfg.Pipeline,
		metrics:     m,
		sessions:    make(map[string]*session),
	}
}

// Start joins the requested meeting and launches its pipeline loop. Platform
// kinds without a registered adapter fall back to the default capture source.
// The session runs until [SessionManager.Stop] or until its audio source ends.
func (sm *SessionManager) Start(ctx context.Context, kind audio.Kind, meetingRef string, bc meeting.Broadcaster) (SessionInfo, error) {
	src, err := sm.platforms.Join(ctx, kind, meetingRef)
	if errors.Is(err, audio.ErrUnsupported) && kind != audio.KindSystem {
		slog.Warn("platform not supported, falling back to system capture", "platform", kind)
		kind = audio.KindSystem
		src, err = sm.platforms.Join(ctx, kind, meetingRef)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: join %s meeting: %w", kind, err)
	}

	info := SessionInfo{
		SessionID:  uuid.NewString(),
		Platform:   kind,
		MeetingRef: meetingRef,
		StartedAt:  time.Now().UTC(),
	}

	meetingID := meetingRef
	if meetingID == "" {
		meetingID = info.SessionID
	}

	loop := meeting.NewLoop(meeting.LoopConfig{
		MeetingID:    meetingID,
		Source:       src,
		Segmenter:    audio.NewSegmenter(sm.segmenterConfig(), sm.vad),
		Transcriber:  sm.transcriber,
		Detector:     sm.newDetector(),
		Guard:        sm.newGuard(),
		Window:       meeting.NewWindow(sm.pipeline.WindowCapacity),
		Generator:    sm.generator,
		Broadcaster:  bc,
		Store:        sm.store,
		ContextLines: sm.pipeline.ContextLines,
		Metrics:      sm.metrics,
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		info:   info,
		loop:   loop,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	sm.mu.Lock()
	sm.sessions[info.SessionID] = s
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(context.Background(), 1)

	go func() {
		defer close(s.done)
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session loop ended with error", "session_id", info.SessionID, "err", err)
		}
		sm.remove(info.SessionID)
	}()

	slog.Info("session started",
		"session_id", info.SessionID,
		"platform", kind,
		"meeting_ref", meetingRef,
	)

	return info, nil
}

// Stop cancels the session's loop and waits for it to drain. In-flight
// provider calls complete before the loop exits.
//
// Returns an error if sessionID is unknown or ctx expires before the loop
// finishes.
func (sm *SessionManager) Stop(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("app: no active session %q", sessionID)
	}

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("app: stop session %q: %w", sessionID, ctx.Err())
	}

	slog.Info("session stopped", "session_id", sessionID)
	return nil
}

// StopAll stops every active session. Errors are logged, not returned; used
// during shutdown where partial failure must not abort teardown.
func (sm *SessionManager) StopAll(ctx context.Context) {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		if err := sm.Stop(ctx, id); err != nil {
			slog.Warn("stop session during shutdown", "session_id", id, "err", err)
		}
	}
}

// Info returns metadata for the given session, and whether it is active.
func (sm *SessionManager) Info(sessionID string) (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info, true
}

// State returns the pipeline state of the given session's loop.
func (sm *SessionManager) State(sessionID string) (meeting.State, bool) {
	sm.mu.Lock()
	s, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return "", false
	}
	return s.loop.State(), true
}

// Len returns the number of active sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// remove deregisters a finished session. Idempotent.
func (sm *SessionManager) remove(sessionID string) {
	sm.mu.Lock()
	_, ok := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
	if ok {
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// segmenterConfig maps the pipeline tuning knobs onto the segmenter. Zero
// values defer to the segmenter's own defaults.
func (sm *SessionManager) segmenterConfig() audio.SegmenterConfig {
	p := sm.pipeline.Segmenter
	return audio.SegmenterConfig{
		SampleRate:        p.SampleRate,
		HangoverFrames:    p.HangoverFrames,
		MaxSegment:        p.MaxSegment.Std(),
		MinSpeechFraction: p.MinSpeechFraction,
		BufferFrames:      p.BufferFrames,
	}
}

func (sm *SessionManager) newDetector() *question.Detector {
	var opts []question.Option
	if sm.pipeline.ModelThreshold > 0 {
		opts = append(opts, question.WithModelThreshold(sm.pipeline.ModelThreshold))
	}
	return question.NewDetector(opts...)
}

func (sm *SessionManager) newGuard() *meeting.DedupGuard {
	var opts []meeting.DedupOption
	if d := sm.pipeline.DedupHorizon.Std(); d > 0 {
		opts = append(opts, meeting.WithHorizon(d))
	}
	if sm.pipeline.DedupThreshold > 0 {
		opts = append(opts, meeting.WithThreshold(sm.pipeline.DedupThreshold))
	}
	if sm.pipeline.DedupSimilarity == config.SimilarityJaroWinkler {
		opts = append(opts, meeting.WithSimilarity(meeting.JaroWinklerSimilarity))
	}
	return meeting.NewDedupGuard(opts...)
}
