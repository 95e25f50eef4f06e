// Package observe provides the observability primitives of chattts:
// OpenTelemetry metrics, tracing helpers, logger construction, and HTTP
// middleware for the ops server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. A package-level [DefaultMetrics] instance is
// provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/chattts"

// Utterance outcomes recorded by [Metrics.RecordUtterance].
const (
	OutcomePlayed         = "played"
	OutcomeSynthFailed    = "synth_failed"
	OutcomePlaybackFailed = "playback_failed"
	OutcomeSkipped        = "skipped"
	OutcomeDropped        = "dropped"
)

// Metrics holds all metric instruments of the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// SynthesisDuration tracks engine latency. Attributes: engine, status.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long an artifact took to play.
	PlaybackDuration metric.Float64Histogram

	// Utterances counts finished utterances. Attribute: outcome.
	Utterances metric.Int64Counter

	// Enqueued counts utterances accepted into a guild queue.
	Enqueued metric.Int64Counter

	// MessagesRejected counts chat messages not queued. Attribute: reason.
	MessagesRejected metric.Int64Counter

	// EngineErrors counts synthesis failures per engine. Attribute: engine.
	EngineErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: engine, to.
	BreakerTransitions metric.Int64Counter

	// ActiveSessions tracks guilds with a bound voice connection.
	ActiveSessions metric.Int64UpDownCounter

	// PendingUtterances tracks queued utterances across all guilds.
	PendingUtterances metric.Int64UpDownCounter

	// CommandInvocations counts slash commands. Attributes: command, status.
	CommandInvocations metric.Int64Counter

	// HTTPRequestDuration tracks ops server latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for speech
// synthesis and short chat utterances.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("chattts.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis per engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("chattts.playback.duration",
		metric.WithDescription("Time spent playing an artifact into a voice channel."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("chattts.utterances",
		metric.WithDescription("Finished utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Enqueued, err = m.Int64Counter("chattts.utterances.enqueued",
		metric.WithDescription("Utterances accepted into a guild queue."),
	); err != nil {
		return nil, err
	}
	if met.MessagesRejected, err = m.Int64Counter("chattts.messages.rejected",
		metric.WithDescription("Chat messages not queued, by reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("chattts.engine.errors",
		metric.WithDescription("Synthesis failures by engine."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("chattts.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions by engine and target state."),
	); err != nil {
		return nil, err
	}
	if met.CommandInvocations, err = m.Int64Counter("chattts.commands",
		metric.WithDescription("Slash command invocations by command and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("chattts.active_sessions",
		metric.WithDescription("Guilds with a bound voice connection."),
	); err != nil {
		return nil, err
	}
	if met.PendingUtterances, err = m.Int64UpDownCounter("chattts.pending_utterances",
		metric.WithDescription("Utterances waiting in guild queues."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("chattts.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSynthesis records one engine call. A non-nil err also increments
// [Metrics.EngineErrors].
func (m *Metrics) RecordSynthesis(ctx context.Context, engine string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.EngineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
}

// RecordUtterance counts a finished utterance with one of the Outcome
// constants.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRejected counts a chat message that was not queued.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.MessagesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCommand counts a slash command invocation.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.CommandInvocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition counts a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, engine, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("to", to),
		),
	)
}
