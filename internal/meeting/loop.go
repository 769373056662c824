package meeting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/question"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/memory"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
)

// State is the observable pipeline state of one session loop.
type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateDetecting    State = "detecting"
	StateGenerating   State = "generating"
	StateBroadcasting State = "broadcasting"
	StateStopped      State = "stopped"
)

// AnswerEvent is one answer ready for delivery to a session's clients.
type AnswerEvent struct {
	Question     string
	QuestionType string
	Answer       string
	Timestamp    time.Time
}

// Broadcaster fans an answer out to the clients of one session.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev AnswerEvent)
}

// Detector finds the first question in a transcript line.
type Detector interface {
	Detect(ctx context.Context, text string) *question.Detected
}

// Generator produces an answer for a detected question given the short
// context view. Implementations never fail; degraded modes return fixed text.
type Generator interface {
	Generate(ctx context.Context, q *question.Detected, contextLines []string) string
}

// LoopConfig wires one session's pipeline stages together.
type LoopConfig struct {
	// MeetingID identifies the session in logs and the archive.
	MeetingID string

	// Source is the joined audio feed. The loop owns it and closes it on exit.
	Source audio.Source

	// Segmenter accumulates frames into accepted speech segments.
	Segmenter *audio.Segmenter

	// Transcriber converts segments to text. May be nil; segments are then
	// consumed without producing transcript lines.
	Transcriber stt.Transcriber

	// Detector finds questions in transcript lines.
	Detector Detector

	// Guard suppresses near-duplicate questions.
	Guard *DedupGuard

	// Window is the bounded conversation memory.
	Window *Window

	// Generator produces answers.
	Generator Generator

	// Broadcaster delivers answers to connected clients.
	Broadcaster Broadcaster

	// Store is the optional durable archive. Write failures are logged, never
	// fatal to the session.
	Store memory.MeetingStore

	// ContextLines is the size of the short context view passed to the
	// generator. Non-positive falls back to [DefaultContextLines].
	ContextLines int

	// Metrics receives pipeline instrumentation. Nil falls back to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Loop is the per-session coordinator. It drives accepted speech segments
// through transcription, question detection, dedup, answer generation and
// broadcast, strictly in capture order.
//
// Run is the single driver; State may be read from any goroutine.
type Loop struct {
	cfg     LoopConfig
	metrics *observe.Metrics
	log     *slog.Logger

	// droppedSeen is the segmenter drop count already published to metrics.
	// Only touched by Run's goroutine.
	droppedSeen int64

	mu    sync.Mutex
	state State
}

// NewLoop creates a session loop. Source, Segmenter, Detector, Guard, Window,
// Generator and Broadcaster must be non-nil.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = DefaultContextLines
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Loop{
		cfg:     cfg,
		metrics: m,
		log:     slog.With("meeting_id", cfg.MeetingID),
		state:   StateIdle,
	}
}

// State returns the loop's current pipeline state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the session until ctx is cancelled or the audio source ends.
// Cancellation is observed at the top of each iteration; a transcription or
// generation call already in flight completes before teardown so no partial
// result is broadcast. The source is released before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.setState(StateStopped)
		if err := l.cfg.Source.Close(); err != nil {
			l.log.Warn("closing audio source", "error", err)
		}
	}()

	// Pump frames from the source into the segmenter. Ends when the source's
	// frame channel closes; closing the segmenter then lets NextSegment drain
	// and report closure.
	go func() {
		for f := range l.cfg.Source.Frames() {
			l.cfg.Segmenter.Ingest(f)
		}
		l.cfg.Segmenter.Close()
	}()

	l.log.Info("session loop started")

	for {
		l.setState(StateCapturing)
		if err := ctx.Err(); err != nil {
			l.log.Info("session loop cancelled")
			return err
		}

		seg, err := l.cfg.Segmenter.NextSegment(ctx)
		if err != nil {
			if errors.Is(err, audio.ErrSegmenterClosed) {
				l.publishDrops(ctx)
				l.log.Info("audio source ended")
				return nil
			}
			return err
		}
		l.metrics.SegmentsAccepted.Add(ctx, 1)
		l.publishDrops(ctx)

		l.iterate(ctx, seg)
	}
}

// publishDrops feeds the segmenter's cumulative drop count into the metrics
// counter as a delta.
func (l *Loop) publishDrops(ctx context.Context) {
	if d := l.cfg.Segmenter.Dropped(); d > l.droppedSeen {
		l.metrics.FramesDropped.Add(ctx, d-l.droppedSeen)
		l.droppedSeen = d
	}
}

// iterate processes one accepted segment end to end. Provider calls run on a
// detached context so that session cancellation does not abort them mid-call.
func (l *Loop) iterate(ctx context.Context, seg *audio.Segment) {
	callCtx := context.WithoutCancel(ctx)

	text, ok := l.transcribe(callCtx, seg)
	if !ok {
		return
	}

	line := l.cfg.Window.Append(text, seg.Start)
	l.archiveLine(callCtx, line, seg.Duration)

	l.setState(StateDetecting)
	q := l.cfg.Detector.Detect(callCtx, text)
	if q == nil {
		return
	}
	q.Sequence = line.Seq
	l.metrics.RecordQuestion(ctx, string(q.Type), q.Rhetorical)
	l.log.Info("question detected",
		"question", q.Text,
		"type", q.Type,
		"rhetorical", q.Rhetorical,
		"seq", q.Sequence,
	)

	if l.cfg.Guard.CheckAndRegister(q.Text, time.Now()) {
		l.metrics.DuplicatesSuppressed.Add(ctx, 1)
		l.log.Debug("duplicate question suppressed", "question", q.Text)
		return
	}

	l.setState(StateGenerating)
	recent := l.cfg.Window.Recent(l.cfg.ContextLines)
	contextLines := make([]string, len(recent))
	for i, r := range recent {
		contextLines[i] = r.Text
	}
	genStart := time.Now()
	answer := l.cfg.Generator.Generate(callCtx, q, contextLines)
	l.metrics.LLMDuration.Record(ctx, time.Since(genStart).Seconds())
	if answer == "" {
		return
	}

	l.setState(StateBroadcasting)
	ev := AnswerEvent{
		Question:     q.Text,
		QuestionType: string(q.Type),
		Answer:       answer,
		Timestamp:    time.Now(),
	}
	l.cfg.Broadcaster.Broadcast(callCtx, ev)
	l.archiveAnswer(callCtx, ev)
}

// transcribe runs the STT stage. The bool result is false when the iteration
// should end early: no transcriber configured, provider failure, or an empty
// transcript.
func (l *Loop) transcribe(ctx context.Context, seg *audio.Segment) (string, bool) {
	if l.cfg.Transcriber == nil {
		return "", false
	}

	l.setState(StateTranscribing)
	start := time.Now()
	text, err := l.cfg.Transcriber.Transcribe(ctx, seg)
	l.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		l.metrics.RecordProviderError(ctx, "stt", "transcribe")
		l.log.Warn("transcription failed", "error", err)
		return "", false
	}
	if text == "" {
		return "", false
	}
	l.log.Debug("segment transcribed",
		"text", text,
		"duration", seg.Duration,
		"speech_fraction", seg.SpeechFraction,
	)
	return text, true
}

func (l *Loop) archiveLine(ctx context.Context, line TranscriptLine, dur time.Duration) {
	if l.cfg.Store == nil {
		return
	}
	err := l.cfg.Store.WriteLine(ctx, l.cfg.MeetingID, memory.Line{
		Text:      line.Text,
		Timestamp: line.Timestamp,
		Duration:  dur,
	})
	if err != nil {
		l.log.Warn("archiving transcript line", "error", err)
	}
}

func (l *Loop) archiveAnswer(ctx context.Context, ev AnswerEvent) {
	if l.cfg.Store == nil {
		return
	}
	err := l.cfg.Store.WriteAnswer(ctx, l.cfg.MeetingID, memory.Answer{
		Question:     ev.Question,
		QuestionType: ev.QuestionType,
		Text:         ev.Answer,
		Timestamp:    ev.Timestamp,
	})
	if err != nil {
		l.log.Warn("archiving answer", "error", err)
	}
}
