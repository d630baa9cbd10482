// Package observe provides application-wide observability primitives for
// phonebridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phonebridge metrics.
const meterName = "github.com/MrWong99/phonebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks batch transcription latency. Use with
	// attribute.String("scope", "turn"|"call").
	TranscriptionDuration metric.Float64Histogram

	// SummaryDuration tracks the end-of-call summary completion latency.
	SummaryDuration metric.Float64Histogram

	// ResponseDuration tracks the time from response request to the engine's
	// terminal event.
	ResponseDuration metric.Float64Histogram

	// FinalizeDuration tracks the end-of-call pipeline.
	FinalizeDuration metric.Float64Histogram

	// --- Counters ---

	// CallerTurns counts materialised caller turns.
	CallerTurns metric.Int64Counter

	// AgentResponses counts terminal engine responses. Use with
	// attribute.String("status", ...).
	AgentResponses metric.Int64Counter

	// Notifications counts notification deliveries. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	Notifications metric.Int64Counter

	// Finalized counts finished calls by transcript status.
	Finalized metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.TranscriptionDuration, err = histogram("phonebridge.transcription.duration",
		"Latency of batch speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = histogram("phonebridge.summary.duration",
		"Latency of the end-of-call summary completion."); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = histogram("phonebridge.response.duration",
		"Time from response request to terminal engine event."); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = histogram("phonebridge.finalize.duration",
		"Duration of the end-of-call transcript pipeline."); err != nil {
		return nil, err
	}

	if met.CallerTurns, err = m.Int64Counter("phonebridge.caller.turns",
		metric.WithDescription("Total materialised caller turns."),
	); err != nil {
		return nil, err
	}
	if met.AgentResponses, err = m.Int64Counter("phonebridge.agent.responses",
		metric.WithDescription("Total agent responses by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("phonebridge.notifications",
		metric.WithDescription("Total notification deliveries by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Finalized, err = m.Int64Counter("phonebridge.calls.finalized",
		metric.WithDescription("Total finished calls by transcript status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phonebridge.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("phonebridge.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonebridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordTranscription records one batch transcription latency for scope
// "turn" or "call".
func (m *Metrics) RecordTranscription(ctx context.Context, scope string, d time.Duration) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
}

// RecordAgentResponse counts a terminal engine response with its status.
func (m *Metrics) RecordAgentResponse(ctx context.Context, status string) {
	m.AgentResponses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordNotification counts a notification delivery attempt.
func (m *Metrics) RecordNotification(ctx context.Context, kind, status string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordFinalized counts a finished call and records the pipeline duration.
func (m *Metrics) RecordFinalized(ctx context.Context, status string, d time.Duration) {
	m.Finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.FinalizeDuration.Record(ctx, d.Seconds())
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
