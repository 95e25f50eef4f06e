// Package mock provides in-memory implementations of [audio.Platform] and
// [audio.Connection] for unit tests.
//
// All mocks are safe for concurrent use. They record calls so tests can assert
// on them, and expose fields that control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection("voice-1")
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "guild-1", "voice-1")
//	conn.Emit(audio.Event{Type: audio.EventLeave, UserID: "u1", Remaining: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chattts/pkg/audio"
)

// ConnectCall records one [Platform.Connect] invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect. When nil a fresh Connection bound
	// to the requested channel is created.
	ConnectResult audio.Connection

	// ConnectError, when non-nil, is returned by Connect.
	ConnectError error

	connectCalls []ConnectCall
	created      []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectCalls = append(p.connectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.ConnectResult != nil {
		return p.ConnectResult, nil
	}
	c := NewConnection(channelID)
	p.created = append(p.created, c)
	return c, nil
}

// ConnectCalls returns a copy of the recorded Connect calls.
func (p *Platform) ConnectCalls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.connectCalls))
	copy(out, p.connectCalls)
	return out
}

// Created returns the connections Connect created on its own.
func (p *Platform) Created() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, len(p.created))
	copy(out, p.created)
	return out
}

// Connection is a mock [audio.Connection].
type Connection struct {
	mu sync.Mutex

	channelID string
	live      bool

	// PlayError, when non-nil, is returned by every Play call.
	PlayError error

	// PlayGate, when non-nil, makes Play block until a value is received
	// from it or ctx is done.
	PlayGate chan struct{}

	// DisconnectError is returned by the first Disconnect call.
	DisconnectError error

	plays       []string
	disconnects int
	cb          func(audio.Event)
	playing     chan string
}

// NewConnection returns a live Connection bound to channelID.
func NewConnection(channelID string) *Connection {
	return &Connection{
		channelID: channelID,
		live:      true,
		playing:   make(chan string, 64),
	}
}

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Play implements [audio.Connection]. It records path, then optionally waits
// on PlayGate.
func (c *Connection) Play(ctx context.Context, path string) error {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return audio.ErrNotConnected
	}
	c.plays = append(c.plays, path)
	gate, err := c.PlayGate, c.PlayError
	c.mu.Unlock()

	select {
	case c.playing <- path:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Playing delivers each path as Play starts on it. Buffered; paths are
// dropped when nobody reads.
func (c *Connection) Playing() <-chan string { return c.playing }

// Plays returns a copy of every path passed to Play.
func (c *Connection) Plays() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.plays))
	copy(out, c.plays)
	return out
}

// IsLive implements [audio.Connection].
func (c *Connection) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// SetLive overrides the live flag, simulating a dropped transport.
func (c *Connection) SetLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = live
}

// Disconnect implements [audio.Connection].
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.live = false
	if c.disconnects == 1 {
		return c.DisconnectError
	}
	return nil
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// OnParticipantChange implements [audio.Connection].
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// Emit synchronously delivers ev to the registered callback, if any.
func (c *Connection) Emit(ev audio.Event) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

var (
	_ audio.Platform   = (*Platform)(nil)
	_ audio.Connection = (*Connection)(nil)
)
