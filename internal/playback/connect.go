package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/chattts/pkg/audio"
)

// Default voice join retry parameters.
const (
	defaultJoinAttempts   = 3
	defaultJoinBackoff    = 500 * time.Millisecond
	defaultJoinMaxBackoff = 5 * time.Second
)

// JoinRetry controls how often a failed voice join is retried before the
// message is dropped. Joins are retried only while the message is being
// dispatched; a connection lost later is never re-established
// automatically.
type JoinRetry struct {
	// Attempts is the total number of Connect calls. Default: 3.
	Attempts int

	// Backoff is the wait before the second attempt. It doubles per attempt
	// up to MaxBackoff. Default: 500ms.
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts. Default: 5s.
	MaxBackoff time.Duration
}

func (r JoinRetry) withDefaults() JoinRetry {
	if r.Attempts <= 0 {
		r.Attempts = defaultJoinAttempts
	}
	if r.Backoff <= 0 {
		r.Backoff = defaultJoinBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = defaultJoinMaxBackoff
	}
	return r
}

// connectWithRetry joins channelID, retrying failures with exponential
// backoff. Context errors end the loop immediately.
func connectWithRetry(ctx context.Context, p audio.Platform, guildID, channelID string, r JoinRetry) (audio.Connection, error) {
	backoff := r.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		conn, err := p.Connect(ctx, guildID, channelID)
		if err == nil {
			if attempt > 1 {
				slog.Info("playback: voice join succeeded after retry", "guild_id", guildID, "channel_id", channelID, "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt == r.Attempts {
			break
		}

		slog.Warn("playback: voice join failed, retrying",
			"guild_id", guildID,
			"channel_id", channelID,
			"attempt", attempt,
			"max_attempts", r.Attempts,
			"backoff", backoff,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.MaxBackoff)
	}
	return nil, lastErr
}
