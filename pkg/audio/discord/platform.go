// Package discord provides an [audio.Platform] backed by Discord voice
// channels via bwmarrin/discordgo.
//
// The platform shares the *discordgo.Session owned by the bot layer. Each
// [Platform.Connect] joins a voice channel of one guild and returns a
// [Connection] that plays synthesised artifacts as Opus and reports
// membership changes of that channel.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] on a discordgo session.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session

	// discordgo keeps one VoiceConnection per guild and hands it to every
	// join, so only the newest Connection of a guild may tear it down.
	mu     sync.Mutex
	owners map[string]*Connection
}

// New creates a Platform for session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session, owners: make(map[string]*Connection)}
}

func (p *Platform) claim(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[c.guildID] = c
}

// release reports whether c still owned its guild's voice connection and
// gives it up.
func (p *Platform) release(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owners[c.guildID] != c {
		return false
	}
	delete(p.owners, c.guildID)
	return true
}

// Connect joins channelID in guildID, self-deafened since the bot never
// listens. ctx governs the join only.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	if ctx.Err() != nil {
		_ = vc.Disconnect()
		return nil, ctx.Err()
	}
	c := newConnection(vc, p.session, guildID, channelID)
	c.release = p.release
	p.claim(c)
	return c, nil
}
