// Package observe provides application-wide observability for Parlance:
// OpenTelemetry metrics, tracing, trace-enriched structured logging, and the
// HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping via a Prometheus exporter bridge set up by [InitProvider]. A
// lazily-created package-level instance is available via [DefaultMetrics];
// tests should build their own with [NewMetrics] and a private
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all Parlance metrics.
const meterName = "github.com/parlancehq/parlance"

// Metrics holds every OTel instrument the service records. The underlying
// OTel types synchronise themselves, so a single Metrics is shared freely.
type Metrics struct {
	// --- Per-stage latency histograms for the turn pipeline ---

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// FeedbackDuration tracks short-feedback latency.
	FeedbackDuration metric.Float64Histogram

	// ReplyDuration tracks AI reply latency.
	ReplyDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks a whole user turn, clip-in to reply-out.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed user turns. Attributes:
	//   attribute.String("language", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// ProviderRequests counts speech/AI provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// LevelUps counts subgoal level-ups. Attribute:
	//   attribute.String("language", ...)
	LevelUps metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks live tutoring sessions.
	ActiveSessions metric.Int64UpDownCounter

	// QueuedUtterances tracks pending auto-speak queue items.
	QueuedUtterances metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (seconds) sized for speech-pipeline
// latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var err error
	m := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.STTDuration, "parlance.stt.duration", "Latency of speech-to-text transcription."},
		{&m.FeedbackDuration, "parlance.feedback.duration", "Latency of short-feedback generation."},
		{&m.ReplyDuration, "parlance.reply.duration", "Latency of AI reply generation."},
		{&m.TTSDuration, "parlance.tts.duration", "Latency of speech synthesis."},
		{&m.TurnDuration, "parlance.turn.duration", "End-to-end latency of one user turn."},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if m.Turns, err = meter.Int64Counter("parlance.turns",
		metric.WithDescription("Completed user turns by language and status."),
	); err != nil {
		return nil, err
	}
	if m.ProviderRequests, err = meter.Int64Counter("parlance.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if m.ProviderErrors, err = meter.Int64Counter("parlance.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if m.LevelUps, err = meter.Int64Counter("parlance.levelups",
		metric.WithDescription("Subgoal level-up events by language."),
	); err != nil {
		return nil, err
	}

	if m.ActiveSessions, err = meter.Int64UpDownCounter("parlance.active_sessions",
		metric.WithDescription("Live tutoring sessions."),
	); err != nil {
		return nil, err
	}
	if m.QueuedUtterances, err = meter.Int64UpDownCounter("parlance.queued_utterances",
		metric.WithDescription("Pending auto-speak utterances."),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram("parlance.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from the global meter provider. Panics only if instrument creation
// fails, which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTurn increments the turn counter with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, language, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("status", status),
	))
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordLevelUp increments the level-up counter.
func (m *Metrics) RecordLevelUp(ctx context.Context, language string) {
	m.LevelUps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
	))
}

// SessionStarted bumps the live-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded releases a live session from the gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}
