package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is used when no tracer is supplied.
const TracerName = "github.com/jpalmerr/ihtml"

// Namespace prefixes every metric name.
const Namespace = "ihtml"

// Load outcomes used as the outcome label.
const (
	OutcomeLoaded  = "loaded"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
	OutcomePolicy  = "policy"
)

type metrics struct {
	loadsTotal     *prometheus.CounterVec
	loadDuration   *prometheus.HistogramVec
	streamMessages prometheus.Counter
	sanitized      *prometheus.CounterVec
	inflight       prometheus.Gauge
}

// register adds c to reg. When an identical collector is already registered
// (several documents sharing one registry) the existing one is returned.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			if existing, ok := alreadyRegErr.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		loadsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "loads_total",
			Help:      "Total number of load attempts by outcome",
		}, []string{"outcome"})),

		loadDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "load_duration_seconds",
			Help:      "Load attempt duration in seconds, from trigger to settle",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"})),

		streamMessages: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stream_messages_total",
			Help:      "Total number of event-stream messages inserted",
		})),

		sanitized: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sanitized_nodes_total",
			Help:      "Total number of subtrees removed by sanitization, by missing token",
		}, []string{"token"})),

		inflight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "inflight_loads",
			Help:      "Number of load attempts currently in flight",
		})),
	}
}

// Telemetry records metrics and spans for load attempts. A nil *Telemetry
// records nothing.
type Telemetry struct {
	metrics *metrics
	tracer  trace.Tracer
}

// New creates a Telemetry. A nil registerer disables metrics; a nil tracer
// falls back to the global OpenTelemetry provider.
func New(reg prometheus.Registerer, tracer trace.Tracer) *Telemetry {
	t := &Telemetry{tracer: tracer}
	if reg != nil {
		t.metrics = newMetrics(reg)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(TracerName)
	}
	return t
}

// Attempt tracks one load attempt. A nil *Attempt is valid and records nothing.
type Attempt struct {
	t     *Telemetry
	span  trace.Span
	mode  string
	start time.Time
}

// StartAttempt opens a span for a load of url and returns a context carrying it.
func (t *Telemetry) StartAttempt(ctx context.Context, url, accept, mode string) (context.Context, *Attempt) {
	if t == nil {
		return ctx, nil
	}
	spanCtx, span := t.tracer.Start(ctx, "ihtml.load",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ihtml.url", url),
			attribute.String("ihtml.accept", accept),
			attribute.String("ihtml.mode", mode),
		),
	)
	if t.metrics != nil {
		t.metrics.inflight.Inc()
	}
	return spanCtx, &Attempt{t: t, span: span, mode: mode, start: time.Now()}
}

// Event adds a lifecycle event to the attempt's span.
func (a *Attempt) Event(name string, attrs ...attribute.KeyValue) {
	if a == nil {
		return
	}
	a.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End closes the attempt with outcome. err is recorded on the span when set.
func (a *Attempt) End(outcome string, err error) {
	if a == nil {
		return
	}
	if err != nil {
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, err.Error())
	} else if outcome == OutcomeLoaded {
		a.span.SetStatus(codes.Ok, "")
	}
	a.span.SetAttributes(attribute.String("ihtml.outcome", outcome))
	a.span.End()

	if m := a.t.metrics; m != nil {
		m.inflight.Dec()
		m.loadsTotal.WithLabelValues(outcome).Inc()
		m.loadDuration.WithLabelValues(a.mode).Observe(time.Since(a.start).Seconds())
	}
}

// Rejected counts an attempt that failed before any request was made.
func (t *Telemetry) Rejected(outcome string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.loadsTotal.WithLabelValues(outcome).Inc()
}

// StreamMessage counts one inserted event-stream message.
func (t *Telemetry) StreamMessage() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.streamMessages.Inc()
}

// Sanitized counts removed subtrees keyed by the missing allow token.
func (t *Telemetry) Sanitized(removed map[string]int) {
	if t == nil || t.metrics == nil {
		return
	}
	for token, n := range removed {
		t.metrics.sanitized.WithLabelValues(token).Add(float64(n))
	}
}
