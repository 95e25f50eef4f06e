// Package audio defines the voice-transport contracts the playback core
// consumes, plus the PCM helpers transports use to turn a synthesised
// artifact into frames.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel of a guild and returns a [Connection].
//   - [Connection] plays artifact files into that channel one at a time and
//     reports membership changes.
//
// Platform-specific adapters live in sub-packages (audio/discord).
package audio

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when a connection is used after it stopped
	// being live.
	ErrNotConnected = errors.New("audio: voice connection not live")

	// ErrPlayback reports that the transport failed while playing an artifact.
	ErrPlayback = errors.New("audio: playback failed")
)

// EventType classifies membership events emitted by a [Connection].
type EventType int

const (
	// EventJoin is emitted when a participant enters the bound channel.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the bound channel.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a membership change on the channel a [Connection] is bound
// to.
type Event struct {
	Type EventType

	// UserID is the platform identifier of the participant.
	UserID string

	// Bot is true when the participant is an automated account.
	Bot bool

	// ChannelID is the bound channel the change happened in. For a leave it
	// is the channel the participant was in before the change.
	ChannelID string

	// Remaining is the number of participants left in ChannelID after the
	// change, the bot itself included. -1 when the transport cannot tell.
	Remaining int
}

// Connection is an active voice session in one channel of one guild.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// ChannelID returns the voice channel the connection is bound to.
	ChannelID() string

	// Play streams the audio file at path into the channel and blocks until
	// playback completes, fails, or ctx is cancelled. Calls are serialised.
	// Failures wrap [ErrPlayback] or [ErrNotConnected].
	Play(ctx context.Context, path string) error

	// IsLive reports whether the connection can still play audio.
	IsLive() bool

	// Disconnect leaves the channel. It is safe to call more than once;
	// later calls return nil.
	Disconnect() error

	// OnParticipantChange registers cb for membership events. Only one
	// callback is kept; a later call replaces it. cb runs on its own
	// goroutine and must not block for long.
	OnParticipantChange(cb func(Event))
}

// Platform is the entry point for a voice provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID in guildID. ctx bounds the join only; the
	// returned Connection lives until Disconnect.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
