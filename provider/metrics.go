package provider

import (
	"context"
	"time"

	"github.com/kbukum/httpbridge/observability"
)

// WithMetrics records each Execute call on the request instruments,
// using the provider name as the transport attribute and "execute" as
// the method. kindOf names the error class; nil records "error".
func WithMetrics[I, O any](metrics *observability.Metrics, kindOf func(error) string) Middleware[I, O] {
	return func(inner RequestResponse[I, O]) RequestResponse[I, O] {
		return &metricsRR[I, O]{inner: inner, metrics: metrics, kindOf: kindOf}
	}
}

type metricsRR[I, O any] struct {
	inner   RequestResponse[I, O]
	metrics *observability.Metrics
	kindOf  func(error) string
}

func (m *metricsRR[I, O]) Name() string                         { return m.inner.Name() }
func (m *metricsRR[I, O]) IsAvailable(ctx context.Context) bool { return m.inner.IsAvailable(ctx) }

func (m *metricsRR[I, O]) Execute(ctx context.Context, input I) (O, error) {
	m.metrics.RecordRequestStart(ctx)
	start := time.Now()
	output, err := m.inner.Execute(ctx, input)

	status := "ok"
	if err != nil {
		status = "error"
		if m.kindOf != nil {
			status = m.kindOf(err)
		}
		m.metrics.RecordError(ctx, m.inner.Name(), status)
	}
	m.metrics.RecordRequestEnd(ctx, m.inner.Name(), "execute", status, time.Since(start))
	return output, err
}
