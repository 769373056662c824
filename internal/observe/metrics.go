// Package observe provides application-wide observability primitives for
// Hearsay: OpenTelemetry metrics and structured logging setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hearsay metrics.
const meterName = "github.com/hearsay-live/hearsay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks answer generation latency.
	LLMDuration metric.Float64Histogram

	// --- Pipeline counters ---

	// SegmentsAccepted counts speech segments that passed the VAD acceptance
	// threshold and entered transcription.
	SegmentsAccepted metric.Int64Counter

	// QuestionsDetected counts detected questions. Use with attributes:
	//   attribute.String("type", ...), attribute.Bool("rhetorical", ...)
	QuestionsDetected metric.Int64Counter

	// DuplicatesSuppressed counts questions suppressed by the dedup guard.
	DuplicatesSuppressed metric.Int64Counter

	// AnswersGenerated counts produced answers. Use with attribute:
	//   attribute.String("mode", "provider"|"apology"|"template")
	AnswersGenerated metric.Int64Counter

	// AnswersBroadcast counts answer deliveries to connected clients.
	AnswersBroadcast metric.Int64Counter

	// FramesDropped counts audio frames discarded under buffer overload.
	FramesDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live meeting sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ConnectedClients tracks the number of WebSocket clients across all
	// sessions.
	ConnectedClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// transcription and generation latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("hearsay.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("hearsay.llm.duration",
		metric.WithDescription("Latency of answer generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Pipeline counters.
	if met.SegmentsAccepted, err = m.Int64Counter("hearsay.segments.accepted",
		metric.WithDescription("Total speech segments accepted for transcription."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsDetected, err = m.Int64Counter("hearsay.questions.detected",
		metric.WithDescription("Total detected questions by type."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatesSuppressed, err = m.Int64Counter("hearsay.questions.duplicates",
		metric.WithDescription("Total questions suppressed as near-duplicates."),
	); err != nil {
		return nil, err
	}
	if met.AnswersGenerated, err = m.Int64Counter("hearsay.answers.generated",
		metric.WithDescription("Total answers produced by generation mode."),
	); err != nil {
		return nil, err
	}
	if met.AnswersBroadcast, err = m.Int64Counter("hearsay.answers.broadcast",
		metric.WithDescription("Total answer deliveries to connected clients."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("hearsay.frames.dropped",
		metric.WithDescription("Total audio frames dropped under buffer overload."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("hearsay.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hearsay.active_sessions",
		metric.WithDescription("Number of live meeting sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedClients, err = m.Int64UpDownCounter("hearsay.connected_clients",
		metric.WithDescription("Number of connected WebSocket clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQuestion records a detected question with the standard attribute set.
func (m *Metrics) RecordQuestion(ctx context.Context, qtype string, rhetorical bool) {
	m.QuestionsDetected.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", qtype),
			attribute.Bool("rhetorical", rhetorical),
		),
	)
}

// RecordAnswer records a produced answer tagged with its generation mode.
func (m *Metrics) RecordAnswer(ctx context.Context, mode string) {
	m.AnswersGenerated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
