package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearsay-live/hearsay/pkg/audio"
	vadmock "github.com/hearsay-live/hearsay/pkg/provider/vad/mock"
)

const testSampleRate = 16000

// frame builds one 30 ms mono frame at the test sample rate.
func frame(ts time.Time) audio.Frame {
	return audio.Frame{
		Data:       make([]byte, testSampleRate/1000*30*2), // 480 samples
		SampleRate: testSampleRate,
		Timestamp:  ts,
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := frame(time.Now())
	if d := f.Duration(); d != 30*time.Millisecond {
		t.Errorf("Duration = %v, want 30ms", d)
	}
}

func TestSegmenterHangoverClosesSegment(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{
		// 5 speech frames followed by silence.
		Results: []bool{true, true, true, true, true},
		Default: false,
	}
	s := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate:     testSampleRate,
		HangoverFrames: 3,
	}, det)
	defer s.Close()

	start := time.Now()
	for i := 0; i < 8; i++ {
		s.Ingest(frame(start.Add(time.Duration(i) * 30 * time.Millisecond)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seg, err := s.NextSegment(ctx)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	if seg.Duration != 8*30*time.Millisecond {
		t.Errorf("Duration = %v, want 240ms", seg.Duration)
	}
	if want := 5.0 / 8.0; seg.SpeechFraction != want {
		t.Errorf("SpeechFraction = %v, want %v", seg.SpeechFraction, want)
	}
	if !seg.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", seg.Start, start)
	}
	if len(seg.PCM) != 8*480*2 {
		t.Errorf("PCM length = %d, want %d", len(seg.PCM), 8*480*2)
	}
}

func TestSegmenterDiscardsLowSpeechSegment(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{
		Results: []bool{true}, // one speech frame, then silence
		Default: false,
	}
	s := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate:        testSampleRate,
		HangoverFrames:    5,
		MinSpeechFraction: 0.30,
	}, det)

	// 1 speech + 5 silence = fraction 1/6 < 0.30, discarded on hangover.
	start := time.Now()
	for i := 0; i < 6; i++ {
		s.Ingest(frame(start.Add(time.Duration(i) * 30 * time.Millisecond)))
	}
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.NextSegment(ctx)
	if !errors.Is(err, audio.ErrSegmenterClosed) {
		t.Fatalf("NextSegment error = %v, want ErrSegmenterClosed", err)
	}
}

func TestSegmenterMaxDurationClosesSegment(t *testing.T) {
	t.Parallel()

	// Permissive nil detector: every frame is speech, hangover never fires.
	s := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate: testSampleRate,
		MaxSegment: 90 * time.Millisecond,
	}, nil)
	defer s.Close()

	start := time.Now()
	for i := 0; i < 4; i++ {
		s.Ingest(frame(start.Add(time.Duration(i) * 30 * time.Millisecond)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seg, err := s.NextSegment(ctx)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	// The cap fires as soon as accumulated duration reaches MaxSegment.
	if seg.Duration != 90*time.Millisecond {
		t.Errorf("Duration = %v, want 90ms", seg.Duration)
	}
	if seg.SpeechFraction != 1.0 {
		t.Errorf("SpeechFraction = %v, want 1.0", seg.SpeechFraction)
	}
}

func TestSegmenterFlushesPartialOnClose(t *testing.T) {
	t.Parallel()

	s := audio.NewSegmenter(audio.SegmenterConfig{SampleRate: testSampleRate}, nil)

	start := time.Now()
	s.Ingest(frame(start))
	s.Ingest(frame(start.Add(30 * time.Millisecond)))
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seg, err := s.NextSegment(ctx)
	if err != nil {
		t.Fatalf("NextSegment: %v", err)
	}
	if seg.Duration != 60*time.Millisecond {
		t.Errorf("Duration = %v, want 60ms", seg.Duration)
	}

	_, err = s.NextSegment(ctx)
	if !errors.Is(err, audio.ErrSegmenterClosed) {
		t.Fatalf("NextSegment after flush = %v, want ErrSegmenterClosed", err)
	}
}

func TestSegmenterContextCancellation(t *testing.T) {
	t.Parallel()

	s := audio.NewSegmenter(audio.SegmenterConfig{SampleRate: testSampleRate}, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.NextSegment(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("NextSegment error = %v, want context.Canceled", err)
	}
}

func TestSegmenterDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()

	s := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate:   testSampleRate,
		BufferFrames: 2,
	}, nil)
	defer s.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		s.Ingest(frame(start.Add(time.Duration(i) * 30 * time.Millisecond)))
	}

	if got := s.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestSegmenterIngestAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	s := audio.NewSegmenter(audio.SegmenterConfig{SampleRate: testSampleRate}, nil)
	s.Close()

	// Must not panic on the closed channel.
	s.Ingest(frame(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.NextSegment(ctx)
	if !errors.Is(err, audio.ErrSegmenterClosed) {
		t.Fatalf("NextSegment error = %v, want ErrSegmenterClosed", err)
	}
}

func TestSegmenterVADErrorCountsAsSilence(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Err: errors.New("boom")}
	s := audio.NewSegmenter(audio.SegmenterConfig{
		SampleRate:     testSampleRate,
		HangoverFrames: 2,
	}, det)

	start := time.Now()
	for i := 0; i < 4; i++ {
		s.Ingest(frame(start.Add(time.Duration(i) * 30 * time.Millisecond)))
	}
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// All frames classified non-speech: fraction 0, nothing accepted.
	_, err := s.NextSegment(ctx)
	if !errors.Is(err, audio.ErrSegmenterClosed) {
		t.Fatalf("NextSegment error = %v, want ErrSegmenterClosed", err)
	}
}
