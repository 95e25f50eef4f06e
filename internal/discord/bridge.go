package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/playback"
)

// BusyMessage is posted when the bot is already speaking in another voice
// channel of the guild. The placeholder is the channel name.
const BusyMessage = "🚫 봇이 이미 다른 통화방(**%s**)에 있습니다."

// MessageHandler consumes normalised chat messages.
type MessageHandler interface {
	OnMessage(ctx context.Context, m playback.Message) (playback.Result, error)
}

// Directory answers gateway cache lookups.
type Directory interface {
	// VoiceChannel returns the voice channel userID currently sits in, or
	// "" when they are not connected.
	VoiceChannel(guildID, userID string) string

	// ChannelName returns a display name for channelID. Unknown channels
	// fall back to the ID.
	ChannelName(channelID string) string
}

// MessageSender posts plain text to a channel.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ MessageSender = (*discordgo.Session)(nil)

// StateDirectory implements [Directory] on top of discordgo's state cache.
type StateDirectory struct {
	State *discordgo.State
}

// VoiceChannel implements [Directory].
func (d StateDirectory) VoiceChannel(guildID, userID string) string {
	if d.State == nil {
		return ""
	}
	vs, err := d.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// ChannelName implements [Directory].
func (d StateDirectory) ChannelName(channelID string) string {
	if d.State == nil {
		return channelID
	}
	ch, err := d.State.Channel(channelID)
	if err != nil || ch == nil || ch.Name == "" {
		return channelID
	}
	return ch.Name
}

// maxLaneBacklog caps the messages waiting in one guild's lane. Later
// messages are dropped until the lane catches up.
const maxLaneBacklog = 64

// lane holds the messages of one guild that have not been dispatched yet.
type lane struct {
	pending []*discordgo.MessageCreate
}

// MessageBridge turns gateway MessageCreate events into [playback.Message]
// values and reports voice conflicts back to the channel.
//
// [MessageBridge.Submit] never blocks: each guild gets a lane drained by one
// goroutine, so a guild's messages reach the handler in the order they were
// submitted while a slow voice join in one guild does not hold up another.
type MessageBridge struct {
	handler MessageHandler
	dir     Directory
	sender  MessageSender

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
}

// NewMessageBridge creates a MessageBridge.
func NewMessageBridge(handler MessageHandler, dir Directory, sender MessageSender) *MessageBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &MessageBridge{
		handler: handler,
		dir:     dir,
		sender:  sender,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make(map[string]*lane),
	}
}

// Submit queues m on its guild's lane and returns at once. Direct messages
// and messages arriving after Close are ignored.
func (b *MessageBridge) Submit(m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	l := b.lanes[m.GuildID]
	if l == nil {
		l = &lane{}
		b.lanes[m.GuildID] = l
		b.wg.Add(1)
		go b.drain(m.GuildID, l)
	}
	if len(l.pending) >= maxLaneBacklog {
		slog.Warn("discord: message lane full, dropping message", "guild_id", m.GuildID)
		return
	}
	l.pending = append(l.pending, m)
}

// drain dispatches the lane's messages one at a time and retires the lane
// once it is empty. The emptiness check and the retirement share Submit's
// lock, so a guild never has two lanes.
func (b *MessageBridge) drain(guildID string, l *lane) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if len(l.pending) == 0 {
			delete(b.lanes, guildID)
			b.mu.Unlock()
			return
		}
		m := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		b.mu.Unlock()

		b.Handle(b.ctx, m)
	}
}

// Close stops accepting messages, cancels in-flight dispatches and waits for
// every lane to finish. Messages still waiting are handled with the
// cancelled context.
func (b *MessageBridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}

// Handle dispatches one chat message synchronously. Direct messages are
// ignored.
func (b *MessageBridge) Handle(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" {
		return
	}

	msg := playback.Message{
		AuthorIsBot: m.Author.Bot,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		Text:        m.Content,
	}
	if !msg.AuthorIsBot {
		msg.AuthorVoiceChannelID = b.dir.VoiceChannel(m.GuildID, m.Author.ID)
	}

	result, err := b.handler.OnMessage(ctx, msg)
	if err == nil {
		return
	}

	var busy *playback.BusyError
	if errors.As(err, &busy) {
		content := fmt.Sprintf(BusyMessage, b.dir.ChannelName(busy.ChannelID))
		if _, sendErr := b.sender.ChannelMessageSend(m.ChannelID, content); sendErr != nil {
			slog.Warn("discord: failed to send busy notice", "guild_id", m.GuildID, "err", sendErr)
		}
		return
	}
	slog.Error("discord: message dispatch failed",
		"guild_id", m.GuildID,
		"result", string(result),
		"err", err,
	)
}
