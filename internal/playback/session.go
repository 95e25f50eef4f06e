// Package playback turns queued chat messages into ordered, non-overlapping
// speech in a guild's voice channel.
//
// A [Session] owns the FIFO queue of one guild and runs at most one drain
// loop at a time. The [Registry] maps guilds to sessions and tears a session
// down when its voice channel empties. The [Dispatcher] is the entry point
// for chat messages: it filters them, joins voice when needed, and enqueues.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/pkg/audio"
)

// ErrSessionClosed is returned by [Session.Enqueue] after the session was torn
// down.
var ErrSessionClosed = errors.New("playback: session closed")

// Synthesizer writes the speech for text into an artifact below dir and
// returns its path. The path may be non-empty on failure and must then be
// removed by the caller. *synth.Manager satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, guildID, text, dir string) (string, error)
}

// Utterance is one normalised chat message waiting to be spoken.
type Utterance struct {
	ID         string
	GuildID    string
	Text       string
	AuthorID   string
	EnqueuedAt time.Time
}

// State is the scheduling state of a [Session].
type State int

const (
	// StateIdle means the queue is empty and no loop runs.
	StateIdle State = iota

	// StateDraining means exactly one loop is consuming the queue.
	StateDraining
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats are cumulative counters of a [Session].
type Stats struct {
	State          State
	Pending        int
	Loops          int
	Played         int
	SynthFailed    int
	PlaybackFailed int
	Skipped        int
	Dropped        int
}

// Session is the playback state machine of one guild. All methods are safe
// for concurrent use.
type Session struct {
	guildID string
	conn    audio.Connection
	synth   Synthesizer
	dir     string
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	queue    []Utterance
	state    State
	closed   bool
	inFlight *Utterance
	skip     context.CancelFunc
	stats    Stats
}

func newSession(guildID string, conn audio.Connection, synth Synthesizer, dir string, m *observe.Metrics) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID: guildID,
		conn:    conn,
		synth:   synth,
		dir:     dir,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// GuildID returns the guild the session plays for.
func (s *Session) GuildID() string { return s.guildID }

// Conn returns the voice connection the session is bound to.
func (s *Session) Conn() audio.Connection { return s.conn }

// Enqueue appends u to the queue. From Idle it starts the drain loop; while
// Draining the running loop picks u up.
func (s *Session) Enqueue(u Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.queue = append(s.queue, u)
	s.metrics.Enqueued.Add(s.ctx, 1)
	s.metrics.PendingUtterances.Add(s.ctx, 1)

	if s.state == StateIdle {
		s.state = StateDraining
		s.stats.Loops++
		s.wg.Add(1)
		go s.drain()
	}
	return nil
}

// Reset clears the pending queue and returns how many utterances were
// dropped. The utterance in flight keeps playing.
func (s *Session) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

// Skip cancels the utterance in flight, if any. The queue is untouched.
func (s *Session) Skip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skip == nil {
		return false
	}
	s.skip()
	return true
}

// Pending returns the number of queued utterances, excluding the one in
// flight.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Active reports whether the drain loop runs.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDraining
}

// Current returns the utterance in flight.
func (s *Session) Current() (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return Utterance{}, false
	}
	return *s.inFlight, true
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.state
	st.Pending = len(s.queue)
	return st
}

// Close rejects further utterances, clears the queue, and cancels the
// utterance in flight. It does not disconnect the voice connection.
func (s *Session) Close() {
	s.retire()
	s.cancel()
}

// retire rejects further utterances and clears the queue but lets the
// utterance in flight finish.
func (s *Session) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.clearLocked()
}

// Wait blocks until the drain loop has exited or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clearLocked must be called with s.mu held.
func (s *Session) clearLocked() int {
	n := len(s.queue)
	if n == 0 {
		return 0
	}
	clear(s.queue)
	s.queue = s.queue[:0]
	s.stats.Dropped += n
	s.metrics.PendingUtterances.Add(context.Background(), int64(-n))
	for range n {
		s.metrics.RecordUtterance(context.Background(), observe.OutcomeDropped)
	}
	return n
}

// next pops the queue head. When the queue is empty or the connection is
// gone it moves the session to Idle and reports false; the check and the
// transition happen under the same lock as Enqueue's, so there is never more
// than one loop.
func (s *Session) next(live bool) (Utterance, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 && !live {
		observe.Logger(observe.WithGuild(s.ctx, s.guildID)).Info("playback: voice connection gone, dropping queue",
			"pending", len(s.queue), "error", audio.ErrNotConnected)
		s.clearLocked()
	}
	if len(s.queue) == 0 {
		s.state = StateIdle
		return Utterance{}, nil, false
	}

	u := s.queue[0]
	s.queue[0] = Utterance{}
	s.queue = s.queue[1:]
	s.metrics.PendingUtterances.Add(s.ctx, -1)

	ctx, cancel := context.WithCancel(s.ctx)
	s.inFlight = &u
	s.skip = cancel
	return u, ctx, true
}

func (s *Session) drain() {
	defer s.wg.Done()
	for {
		u, ctx, ok := s.next(s.conn.IsLive())
		if !ok {
			return
		}
		outcome := s.process(ctx, u)

		s.mu.Lock()
		s.skip()
		s.skip = nil
		s.inFlight = nil
		switch outcome {
		case observe.OutcomePlayed:
			s.stats.Played++
		case observe.OutcomeSynthFailed:
			s.stats.SynthFailed++
		case observe.OutcomePlaybackFailed:
			s.stats.PlaybackFailed++
		case observe.OutcomeSkipped:
			s.stats.Skipped++
		case observe.OutcomeDropped:
			s.stats.Dropped++
		}
		s.mu.Unlock()

		s.metrics.RecordUtterance(context.Background(), outcome)
	}
}

// process runs one synthesise, play, remove cycle and reports its outcome.
func (s *Session) process(ctx context.Context, u Utterance) string {
	ctx, span := observe.StartGuildSpan(observe.WithGuild(ctx, s.guildID), "playback.utterance",
		observe.Attr("utterance_id", u.ID))
	defer span.End()
	log := observe.Logger(ctx).With("utterance_id", u.ID)

	path, err := s.synth.Synthesize(ctx, s.guildID, u.Text, s.dir)
	if path != "" {
		defer removeArtifact(path)
	}
	if err != nil {
		if o, ok := s.interrupted(ctx); ok {
			return o
		}
		span.RecordError(err)
		log.Warn("playback: synthesis failed", "error", err)
		return observe.OutcomeSynthFailed
	}

	start := time.Now()
	err = s.conn.Play(ctx, path)
	s.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if o, ok := s.interrupted(ctx); ok {
			return o
		}
		span.RecordError(err)
		log.Warn("playback: play failed", "error", fmt.Errorf("%w: %w", audio.ErrPlayback, err))
		return observe.OutcomePlaybackFailed
	}
	log.Debug("playback: utterance played", "queued_for", start.Sub(u.EnqueuedAt))
	return observe.OutcomePlayed
}

// interrupted reports whether ctx ended because of Skip or Close.
func (s *Session) interrupted(ctx context.Context) (string, bool) {
	switch {
	case s.ctx.Err() != nil:
		return observe.OutcomeDropped, true
	case ctx.Err() != nil:
		return observe.OutcomeSkipped, true
	}
	return "", false
}

func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		observe.Logger(context.Background()).Warn("playback: remove artifact", "path", path, "error", err)
	}
}
