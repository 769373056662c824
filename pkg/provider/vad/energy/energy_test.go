package energy_test

import (
	"errors"
	"testing"

	"github.com/hearsay-live/hearsay/pkg/provider/vad/energy"
)

// pcm builds a little-endian int16 frame where every sample has the given value.
func pcm(sample int16, n int) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		b[i*2] = byte(sample)
		b[i*2+1] = byte(sample >> 8)
	}
	return b
}

func TestIsSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame []byte
		want  bool
	}{
		{"silence", pcm(0, 480), false},
		{"quiet noise", pcm(100, 480), false},
		{"loud speech", pcm(5000, 480), true},
		{"at threshold boundary", pcm(299, 480), false},
		{"empty frame", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := energy.New()
			got, err := d.IsSpeech(tt.frame, 16000)
			if err != nil {
				t.Fatalf("IsSpeech: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsSpeech = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSpeechOddFrame(t *testing.T) {
	t.Parallel()

	d := energy.New()
	_, err := d.IsSpeech([]byte{0x01}, 16000)
	if !errors.Is(err, energy.ErrOddFrame) {
		t.Fatalf("IsSpeech error = %v, want ErrOddFrame", err)
	}
}

func TestWithThreshold(t *testing.T) {
	t.Parallel()

	d := energy.New(energy.WithThreshold(50))
	got, err := d.IsSpeech(pcm(100, 480), 16000)
	if err != nil {
		t.Fatalf("IsSpeech: %v", err)
	}
	if !got {
		t.Error("IsSpeech = false with lowered threshold, want true")
	}
}
