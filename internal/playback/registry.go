package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/pkg/audio"
)

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithRegistryMetrics sets the metrics recorder. Defaults to
// observe.DefaultMetrics.
func WithRegistryMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps guild IDs to their playback sessions. It is owned by the
// application and safe for concurrent use.
type Registry struct {
	synth   Synthesizer
	dir     string
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry. Sessions synthesise through synth
// into artifacts below dir.
func NewRegistry(synth Synthesizer, dir string, opts ...RegistryOption) *Registry {
	r := &Registry{
		synth:    synth,
		dir:      dir,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// GetOrCreate returns the session of guildID. An existing session is reused
// while its connection is live; otherwise it is retired, its connection is
// disconnected and a new session bound to conn takes its place.
func (r *Registry) GetOrCreate(guildID string, conn audio.Connection) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.sessions[guildID]; s != nil {
		if s.conn.IsLive() {
			return s
		}
		slog.Info("playback: replacing session with stale connection", "guild_id", guildID, "channel_id", s.conn.ChannelID())
		s.Close()
		disconnect(s)
		r.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	s := newSession(guildID, conn, r.synth, r.dir, r.metrics)
	r.sessions[guildID] = s
	r.metrics.ActiveSessions.Add(context.Background(), 1)
	conn.OnParticipantChange(func(ev audio.Event) {
		if ev.Type != audio.EventLeave {
			return
		}
		r.handleMembershipChange(guildID, conn, ev.ChannelID, ev.Remaining)
	})
	slog.Info("playback: session created", "guild_id", guildID, "channel_id", conn.ChannelID())
	return s
}

// Get returns the session of guildID, or nil.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Reset clears the queue of guildID's session and returns how many
// utterances were dropped. The utterance in flight finishes normally.
func (r *Registry) Reset(guildID string) int {
	if s := r.Get(guildID); s != nil {
		return s.Reset()
	}
	return 0
}

// Skip cancels the utterance guildID is currently speaking. The queue is
// untouched.
func (r *Registry) Skip(guildID string) bool {
	if s := r.Get(guildID); s != nil {
		return s.Skip()
	}
	return false
}

// Current returns the utterance guildID is speaking, if any.
func (r *Registry) Current(guildID string) (Utterance, bool) {
	s := r.Get(guildID)
	if s == nil {
		return Utterance{}, false
	}
	return s.Current()
}

// Stats returns the counters of guildID's session.
func (r *Registry) Stats(guildID string) (Stats, bool) {
	s := r.Get(guildID)
	if s == nil {
		return Stats{}, false
	}
	return s.Stats(), true
}

// Remove closes guildID's session and disconnects its voice connection. It
// reports whether a session existed.
func (r *Registry) Remove(guildID string) bool {
	r.mu.Lock()
	s := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()
	if s == nil {
		return false
	}
	r.metrics.ActiveSessions.Add(context.Background(), -1)
	s.Close()
	disconnect(s)
	return true
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// handleMembershipChange tears down guildID's session when someone left the
// channel it is bound to and at most the bot remains. remaining counts
// members still in beforeChannelID; a negative value means unknown and
// never triggers teardown. Events from a connection other than the
// session's own are ignored. It reports whether the session was removed.
//
// A session whose connection is already gone is dropped without calling
// Disconnect on it.
func (r *Registry) handleMembershipChange(guildID string, conn audio.Connection, beforeChannelID string, remaining int) bool {
	if remaining < 0 || remaining > 1 {
		return false
	}

	r.mu.Lock()
	s := r.sessions[guildID]
	if s == nil || s.conn != conn || s.conn.ChannelID() != beforeChannelID {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, guildID)
	r.mu.Unlock()
	r.metrics.ActiveSessions.Add(context.Background(), -1)

	dropped := s.Reset()
	s.retire()
	if s.conn.IsLive() {
		slog.Info("playback: voice channel empty, leaving", "guild_id", guildID, "channel_id", beforeChannelID, "dropped", dropped)
		disconnect(s)
	} else {
		slog.Info("playback: dropping stale session", "guild_id", guildID, "channel_id", beforeChannelID, "dropped", dropped)
	}
	return true
}

// Close closes every session, disconnects its voice connection, and waits
// for the drain loops to exit or ctx to end.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		disconnect(s)
	}
	r.metrics.ActiveSessions.Add(context.Background(), -int64(len(sessions)))

	for _, s := range sessions {
		if err := s.Wait(ctx); err != nil {
			return fmt.Errorf("playback: close: %w", err)
		}
	}
	return nil
}

func disconnect(s *Session) {
	if err := s.conn.Disconnect(); err != nil {
		slog.Warn("playback: disconnect failed", "guild_id", s.guildID, "error", err)
	}
}
