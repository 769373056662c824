// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus-based voice transport with the PCM [audio.Frame] pipeline.
//
// The platform requires an active *discordgo.Session (owned by the caller)
// and a guild ID. Each call to [Platform.Join] joins the specified voice
// channel and returns a receive-only [audio.Source] that decodes and mixes
// participant audio down to mono 16 kHz PCM.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using a discordgo voice connection.
// It requires an active *discordgo.Session (owned by the caller).
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string
}

// New creates a new Discord Platform for the given session and guild.
func New(session *discordgo.Session, guildID string) *Platform {
	return &Platform{
		session: session,
		guildID: guildID,
	}
}

// Join implements [audio.Platform]. meetingRef is a voice channel ID, or a
// "guildID/channelID" pair to override the configured guild. The supplied ctx
// governs the join phase only; once the Source is returned it lives until
// [audio.Source.Close] is called.
func (p *Platform) Join(ctx context.Context, meetingRef string) (audio.Source, error) {
	guildID, channelID := p.guildID, meetingRef
	if g, c, ok := strings.Cut(meetingRef, "/"); ok {
		guildID, channelID = g, c
	}
	if guildID == "" || channelID == "" {
		return nil, fmt.Errorf("discord: invalid meeting reference %q", meetingRef)
	}

	// mute=true (we never send audio), deaf=false (we receive audio).
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	return newSource(vc), nil
}
