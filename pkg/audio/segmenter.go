package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// Segmenter defaults. All of these can be overridden via [SegmenterConfig].
const (
	defaultHangoverFrames    = 15
	defaultMaxSegment        = 20 * time.Second
	defaultMinSpeechFraction = 0.30
	defaultBufferFrames      = 256
)

// ErrSegmenterClosed is returned by [Segmenter.NextSegment] once the source
// is closed and all buffered audio has been consumed.
var ErrSegmenterClosed = errors.New("segmenter: closed")

// SegmenterConfig holds the accumulation parameters for a [Segmenter].
type SegmenterConfig struct {
	// SampleRate is the expected sample rate of ingested frames in Hz.
	SampleRate int

	// HangoverFrames is the number of consecutive non-speech frames after at
	// least one speech frame that closes the current segment. Defaults to 15
	// (450 ms at 30 ms frames) if zero.
	HangoverFrames int

	// MaxSegment caps the duration of a single segment. When reached the
	// segment is closed regardless of trailing speech. Defaults to 20 s.
	MaxSegment time.Duration

	// MinSpeechFraction is the minimum fraction of speech-classified frames a
	// closed segment needs to be accepted. Segments below it are discarded
	// silently. Defaults to 0.30.
	MinSpeechFraction float64

	// BufferFrames bounds the internal frame buffer. Under sustained overload
	// the oldest unconsumed frames are dropped rather than blocking the
	// producer. Defaults to 256.
	BufferFrames int
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.HangoverFrames <= 0 {
		c.HangoverFrames = defaultHangoverFrames
	}
	if c.MaxSegment <= 0 {
		c.MaxSegment = defaultMaxSegment
	}
	if c.MinSpeechFraction <= 0 {
		c.MinSpeechFraction = defaultMinSpeechFraction
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = defaultBufferFrames
	}
	return c
}

// Segmenter buffers raw audio frames, classifies them through an injected VAD
// capability, and emits accepted speech segments.
//
// Ingest is non-blocking and may be called from the capture goroutine;
// NextSegment suspends until a segment is ready or the segmenter is closed.
// A nil VAD detector is permissive: every frame counts as speech.
//
// Ingest and Close are safe to call concurrently with NextSegment. NextSegment
// itself must not be called from more than one goroutine.
type Segmenter struct {
	cfg SegmenterConfig
	det vad.Detector

	mu     sync.Mutex
	frames chan Frame
	closed bool

	dropped atomic.Int64

	// Accumulation state, owned by the NextSegment caller.
	acc accumulation
}

// accumulation tracks the segment being assembled.
type accumulation struct {
	pcm        []byte
	total      int
	speech     int
	silenceRun int
	sawSpeech  bool
	duration   time.Duration
	start      time.Time
}

// NewSegmenter creates a Segmenter with the given configuration and VAD
// detector. det may be nil, in which case every frame is treated as speech.
func NewSegmenter(cfg SegmenterConfig, det vad.Detector) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:    cfg,
		det:    det,
		frames: make(chan Frame, cfg.BufferFrames),
	}
}

// Ingest appends frame to the internal buffer without blocking. When the
// buffer is full the oldest unconsumed frame is dropped to make room.
// Frames ingested after Close are discarded.
func (s *Segmenter) Ingest(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		// Buffer full: drop the oldest frame and retry.
		select {
		case <-s.frames:
			if n := s.dropped.Add(1); n%100 == 1 {
				slog.Warn("segmenter buffer overflow, dropping oldest frames", "dropped_total", n)
			}
		default:
		}
	}
}

// Close marks the segmenter as closed. NextSegment drains any buffered frames
// and then returns [ErrSegmenterClosed]. Safe to call more than once.
func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Dropped reports how many frames have been discarded due to buffer overflow.
func (s *Segmenter) Dropped() int64 {
	return s.dropped.Load()
}

// NextSegment suspends until an accepted speech segment is available, the
// segmenter is closed, or ctx is cancelled. Segments whose speech fraction is
// below the configured minimum are discarded silently and accumulation
// continues with the next frames.
func (s *Segmenter) NextSegment(ctx context.Context) (*Segment, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frame, ok := <-s.frames:
			if !ok {
				// Source closed: flush whatever is in flight.
				if seg := s.closeAccumulation(); seg != nil {
					return seg, nil
				}
				return nil, ErrSegmenterClosed
			}
			if seg := s.addFrame(frame); seg != nil {
				return seg, nil
			}
		}
	}
}

// addFrame folds one frame into the accumulation and returns an accepted
// segment when a close criterion fires, or nil to keep accumulating.
func (s *Segmenter) addFrame(frame Frame) *Segment {
	a := &s.acc
	if a.total == 0 {
		a.start = frame.Timestamp
	}

	speech := s.isSpeech(frame)
	a.pcm = append(a.pcm, frame.Data...)
	a.total++
	a.duration += frame.Duration()
	if speech {
		a.speech++
		a.silenceRun = 0
		a.sawSpeech = true
	} else {
		a.silenceRun++
	}

	hangover := a.sawSpeech && a.silenceRun >= s.cfg.HangoverFrames
	maxed := a.duration >= s.cfg.MaxSegment
	if !hangover && !maxed {
		return nil
	}
	return s.closeAccumulation()
}

// closeAccumulation finalises the current accumulation. It returns the
// segment when it passes the speech fraction threshold and nil otherwise;
// either way the accumulation state is reset.
func (s *Segmenter) closeAccumulation() *Segment {
	a := &s.acc
	if a.total == 0 {
		return nil
	}

	fraction := float64(a.speech) / float64(a.total)
	seg := &Segment{
		PCM:            a.pcm,
		SampleRate:     s.cfg.SampleRate,
		Duration:       a.duration,
		SpeechFraction: fraction,
		Start:          a.start,
	}
	s.acc = accumulation{}

	if fraction < s.cfg.MinSpeechFraction {
		// Noise, not an error.
		slog.Debug("discarding low-speech segment",
			"fraction", fraction,
			"duration", seg.Duration,
		)
		return nil
	}
	return seg
}

// isSpeech classifies one frame via the injected detector. A nil detector is
// permissive; detector errors count the frame as non-speech.
func (s *Segmenter) isSpeech(frame Frame) bool {
	if s.det == nil {
		return true
	}
	ok, err := s.det.IsSpeech(frame.Data, frame.SampleRate)
	if err != nil {
		slog.Debug("VAD error, treating frame as non-speech", "err", err)
		return false
	}
	return ok
}
