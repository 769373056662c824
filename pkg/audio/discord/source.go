package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

const frameChannelBuffer = 64

// Source wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Source] interface. Incoming Opus packets are decoded per SSRC,
// downmixed from 48 kHz stereo to mono 16 kHz PCM, and delivered on a single
// frame channel in arrival order.
//
// Source is safe for concurrent use.
type Source struct {
	vc     *discordgo.VoiceConnection
	frames chan audio.Frame

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC is called during Close to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newSource initialises a Source for an already-joined voice channel and
// starts the receive loop.
func newSource(vc *discordgo.VoiceConnection) *Source {
	s := &Source{
		vc:           vc,
		frames:       make(chan audio.Frame, frameChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	go s.recvLoop()
	return s
}

// Frames implements [audio.Source]. The channel is closed when the voice
// connection ends or Close is called.
func (s *Source) Frames() <-chan audio.Frame {
	return s.frames
}

// Close implements [audio.Source]. It cleanly tears down the voice connection
// and stops the receive loop. It is safe to call more than once; subsequent
// calls return nil.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.disconnectVC != nil {
			err = s.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, decodes them
// per SSRC, downmixes to mono 16 kHz, and delivers Frames in arrival order.
func (s *Source) recvLoop() {
	defer close(s.frames)

	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			ssrc := pkt.SSRC
			dec, exists := decoders[ssrc]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder",
						"ssrc", strconv.FormatUint(uint64(ssrc), 10), "error", err)
					continue
				}
				decoders[ssrc] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error",
					"ssrc", strconv.FormatUint(uint64(ssrc), 10), "error", err)
				continue
			}

			frame := audio.Frame{
				Data:       downmixTo16kMono(pcm),
				SampleRate: targetSampleRate,
				Timestamp:  time.Now(),
			}

			select {
			case s.frames <- frame:
			default:
				// Channel full. Drop the frame rather than block the
				// voice receive path.
			}
		}
	}
}
