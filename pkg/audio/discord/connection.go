package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/pkg/audio"
)

var _ audio.Connection = (*Connection)(nil)

// Connection wraps a discordgo.VoiceConnection and adapts it to
// [audio.Connection]. Artifacts are decoded, converted to 48 kHz stereo and
// sent as Opus frames; VoiceStateUpdate events of the bound channel become
// [audio.Event]s.
//
// Connection is safe for concurrent use.
type Connection struct {
	session   *discordgo.Session
	guildID   string
	channelID string
	botUserID string

	// send receives Opus packets. Defaults to vc.OpusSend.
	send chan<- []byte

	playMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	dropped bool

	changeMu sync.Mutex
	changeCb func(audio.Event)

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func()
	detachOnce    sync.Once

	// release reports whether this connection still owns the guild's
	// discordgo voice connection. Nil means it always does.
	release func(*Connection) bool

	// Overridden in tests.
	disconnectVC func() error
	speaking     func(bool) error
	memberCount  func(channelID string) int
}

func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, channelID string) *Connection {
	c := &Connection{
		session:      session,
		guildID:      guildID,
		channelID:    channelID,
		send:         vc.OpusSend,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
		speaking:     vc.Speaking,
	}
	if session.State != nil && session.State.User != nil {
		c.botUserID = session.State.User.ID
	}
	c.memberCount = c.countMembers
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	return c
}

// ChannelID returns the voice channel the connection was joined to.
func (c *Connection) ChannelID() string { return c.channelID }

// IsLive reports whether the connection has neither been disconnected nor
// seen the bot removed from its channel.
func (c *Connection) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.dropped
}

// Play decodes the artifact at path and streams it to the channel. It
// returns once every frame has been handed to the voice connection.
func (c *Connection) Play(ctx context.Context, path string) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	if !c.IsLive() {
		return audio.ErrNotConnected
	}

	pcm, format, err := audio.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrPlayback, err)
	}
	frames := audio.Frames(audio.Convert(pcm, format, voiceFormat), frameBytes)
	if len(frames) == 0 {
		return fmt.Errorf("%w: discord: artifact %s has no audio", audio.ErrPlayback, path)
	}

	enc, err := newFrameEncoder()
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrPlayback, err)
	}

	c.setSpeaking(true)
	defer c.setSpeaking(false)

	for i, frame := range frames {
		packet, err := enc.encode(frame)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", audio.ErrPlayback, i, err)
		}
		select {
		case c.send <- packet:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return audio.ErrNotConnected
		}
	}
	return nil
}

// OnParticipantChange registers cb for join/leave events on the bound
// channel. Only one callback is kept.
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect leaves the voice channel. It is safe to call more than once;
// later calls return nil. A connection that has been superseded by a newer
// join in the same guild only releases its event handler, since the
// underlying discordgo voice connection now belongs to its successor.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		c.detach()
		if c.release != nil && !c.release(c) {
			slog.Debug("discord: superseded connection closed", "guild_id", c.guildID, "channel_id", c.channelID)
			return
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// detach unregisters the VoiceStateUpdate handler.
func (c *Connection) detach() {
	c.detachOnce.Do(func() {
		if c.removeHandler != nil {
			c.removeHandler()
		}
	})
}

// handleVoiceStateUpdate turns VoiceStateUpdate events for the bound channel
// into membership events. discordgo updates its state cache before handlers
// run, so member counts already reflect the change.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || vsu.GuildID != c.guildID {
		return
	}

	wasHere := vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == c.channelID
	isHere := vsu.ChannelID == c.channelID

	if vsu.UserID != "" && vsu.UserID == c.botUserID {
		if !isHere {
			c.mu.Lock()
			first := !c.dropped
			c.dropped = true
			c.mu.Unlock()
			if first {
				slog.Info("discord: bot left voice channel", "guild_id", c.guildID, "channel_id", c.channelID, "now", vsu.ChannelID)
				// Handlers run under discordgo's handler lock, so removal
				// has to happen elsewhere.
				go c.detach()
			}
		}
		return
	}

	switch {
	case wasHere && !isHere:
		c.emitEvent(audio.Event{
			Type:      audio.EventLeave,
			UserID:    vsu.UserID,
			Bot:       isBot(vsu),
			ChannelID: c.channelID,
			Remaining: c.memberCount(c.channelID),
		})
	case isHere && !wasHere:
		c.emitEvent(audio.Event{
			Type:      audio.EventJoin,
			UserID:    vsu.UserID,
			Bot:       isBot(vsu),
			ChannelID: c.channelID,
			Remaining: c.memberCount(c.channelID),
		})
	}
}

func isBot(vsu *discordgo.VoiceStateUpdate) bool {
	return vsu.Member != nil && vsu.Member.User != nil && vsu.Member.User.Bot
}

// countMembers counts voice states in channelID from the session state
// cache, or -1 if the guild is not cached.
func (c *Connection) countMembers(channelID string) int {
	if c.session == nil || c.session.State == nil {
		return -1
	}
	g, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return -1
	}
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			n++
		}
	}
	return n
}

func (c *Connection) setSpeaking(b bool) {
	if c.speaking == nil {
		return
	}
	if err := c.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

func (c *Connection) emitEvent(ev audio.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
