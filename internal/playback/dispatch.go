package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MrWong99/chattts/internal/guildconfig"
	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/internal/textnorm"
	"github.com/MrWong99/chattts/pkg/audio"
	"github.com/MrWong99/chattts/pkg/provider/tts"
)

// DefaultMaxMessageLength is the rune limit applied before normalisation.
const DefaultMaxMessageLength = 100

// ConfigSource looks up the settings of a guild. *guildconfig.Store
// satisfies it.
type ConfigSource interface {
	Get(guildID string) (guildconfig.GuildConfig, bool)
}

// Message is a chat message as delivered by the messaging transport.
type Message struct {
	AuthorIsBot bool
	GuildID     string
	ChannelID   string
	AuthorID    string
	Text        string

	// AuthorVoiceChannelID is the voice channel the author sits in, or ""
	// when they are not in voice.
	AuthorVoiceChannelID string
}

// BusyError is returned when the bot already speaks in another voice channel
// of the guild.
type BusyError struct {
	ChannelID string
}

func (e *BusyError) Error() string {
	return "playback: already connected to voice channel " + e.ChannelID
}

// Result says what the Dispatcher did with a message.
type Result string

const (
	ResultQueued        Result = "queued"
	ResultBot           Result = "bot"
	ResultNotConfigured Result = "not_configured"
	ResultOtherChannel  Result = "other_channel"
	ResultNoVoice       Result = "no_voice"
	ResultRateLimited   Result = "rate_limited"
	ResultEmpty         Result = "empty"
	ResultBusy          Result = "busy"
	ResultFailed        Result = "failed"
)

// DispatcherConfig holds the dependencies of a [Dispatcher].
type DispatcherConfig struct {
	Store    ConfigSource
	Registry *Registry
	Platform audio.Platform
	Metrics  *observe.Metrics

	// MaxMessageLength truncates message text to this many runes.
	// Default: DefaultMaxMessageLength.
	MaxMessageLength int

	// RateLimit is the sustained number of messages per second accepted per
	// guild. Zero disables limiting.
	RateLimit float64

	// Burst is the number of messages accepted at once per guild.
	Burst int

	// Join controls retries of failed voice joins.
	Join JoinRetry
}

// Dispatcher routes chat messages into guild sessions.
type Dispatcher struct {
	store    ConfigSource
	registry *Registry
	platform audio.Platform
	metrics  *observe.Metrics
	join     JoinRetry
	now      func() time.Time

	maxLen atomic.Int64

	limMu    sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter

	joinMu sync.Mutex
	joins  map[string]*sync.Mutex
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		store:    cfg.Store,
		registry: cfg.Registry,
		platform: cfg.Platform,
		metrics:  cfg.Metrics,
		join:     cfg.Join.withDefaults(),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		joins:    make(map[string]*sync.Mutex),
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.SetMaxMessageLength(cfg.MaxMessageLength)
	d.SetRateLimit(cfg.RateLimit, cfg.Burst)
	return d
}

// SetMaxMessageLength changes the truncation limit. Non-positive values
// restore the default.
func (d *Dispatcher) SetMaxMessageLength(n int) {
	if n <= 0 {
		n = DefaultMaxMessageLength
	}
	d.maxLen.Store(int64(n))
}

// SetRateLimit changes the per-guild limit, including for guilds that
// already have a limiter. perSecond <= 0 disables limiting.
func (d *Dispatcher) SetRateLimit(perSecond float64, burst int) {
	d.limMu.Lock()
	defer d.limMu.Unlock()
	if perSecond <= 0 {
		d.limit = rate.Inf
	} else {
		d.limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	d.burst = burst
	for _, l := range d.limiters {
		l.SetLimit(d.limit)
		l.SetBurst(d.burst)
	}
}

func (d *Dispatcher) allow(guildID string) bool {
	d.limMu.Lock()
	l := d.limiters[guildID]
	if l == nil {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[guildID] = l
	}
	d.limMu.Unlock()
	return l.AllowN(d.now(), 1)
}

// Forget drops the per-guild state kept for guildID.
func (d *Dispatcher) Forget(guildID string) {
	d.limMu.Lock()
	delete(d.limiters, guildID)
	d.limMu.Unlock()
}

// OnMessage filters m and, when it should be spoken, enqueues it in the
// guild's session, joining the author's voice channel first if no live
// session exists.
//
// The returned error is non-nil only for ResultBusy (a *BusyError) and
// ResultFailed.
func (d *Dispatcher) OnMessage(ctx context.Context, m Message) (Result, error) {
	if m.AuthorIsBot {
		return ResultBot, nil
	}
	cfg, ok := d.store.Get(m.GuildID)
	if !ok || cfg.Engine == tts.KindDisabled {
		return ResultNotConfigured, nil
	}
	if cfg.TextChannelID != m.ChannelID {
		return ResultOtherChannel, nil
	}

	ctx = observe.WithGuild(ctx, m.GuildID)
	if m.AuthorVoiceChannelID == "" {
		return d.reject(ctx, ResultNoVoice, nil)
	}
	if !d.allow(m.GuildID) {
		return d.reject(ctx, ResultRateLimited, nil)
	}

	text := textnorm.Preprocess(textnorm.Truncate(m.Text, int(d.maxLen.Load())))
	if strings.TrimSpace(text) == "" {
		return d.reject(ctx, ResultEmpty, nil)
	}

	s, err := d.session(ctx, m.GuildID, m.AuthorVoiceChannelID)
	if err != nil {
		var busy *BusyError
		if errors.As(err, &busy) {
			return d.reject(ctx, ResultBusy, err)
		}
		return d.reject(ctx, ResultFailed, err)
	}

	u := Utterance{
		ID:         uuid.NewString(),
		GuildID:    m.GuildID,
		Text:       text,
		AuthorID:   m.AuthorID,
		EnqueuedAt: d.now(),
	}
	if err := s.Enqueue(u); err != nil {
		return d.reject(ctx, ResultFailed, fmt.Errorf("playback: enqueue: %w", err))
	}
	observe.Logger(ctx).Debug("playback: utterance queued", "utterance_id", u.ID, "author_id", m.AuthorID, "runes", len([]rune(text)))
	return ResultQueued, nil
}

func (d *Dispatcher) reject(ctx context.Context, r Result, err error) (Result, error) {
	d.metrics.RecordRejected(ctx, string(r))
	return r, err
}

// session returns the guild's live session, connecting to channelID when
// there is none. Joins are serialised per guild.
func (d *Dispatcher) session(ctx context.Context, guildID, channelID string) (*Session, error) {
	mu := d.joinLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	if s := d.registry.Get(guildID); s != nil && s.Conn().IsLive() {
		if bound := s.Conn().ChannelID(); bound != channelID {
			return nil, &BusyError{ChannelID: bound}
		}
		return s, nil
	}

	ctx, span := observe.StartGuildSpan(ctx, "playback.connect", observe.Attr("channel_id", channelID))
	defer span.End()
	conn, err := connectWithRetry(ctx, d.platform, guildID, channelID, d.join)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("playback: connect %s: %w", channelID, err)
	}
	return d.registry.GetOrCreate(guildID, conn), nil
}

func (d *Dispatcher) joinLock(guildID string) *sync.Mutex {
	d.joinMu.Lock()
	defer d.joinMu.Unlock()
	mu := d.joins[guildID]
	if mu == nil {
		mu = &sync.Mutex{}
		d.joins[guildID] = mu
	}
	return mu
}
