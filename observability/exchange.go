package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Exchange tracks one request/response exchange for tracing and metrics.
// Metrics may be nil, in which case nothing is counted. With Traced unset
// the span is a no-op and only metrics are recorded.
type Exchange struct {
	Transport string
	Method    string
	URL       string
	RequestID string
	StartTime time.Time
	Metrics   *Metrics
	Traced    bool
}

// NewExchange creates a traced Exchange that starts now.
func NewExchange(transport, method, url, requestID string, metrics *Metrics) *Exchange {
	return &Exchange{
		Transport: transport,
		Method:    method,
		URL:       url,
		RequestID: requestID,
		StartTime: time.Now(),
		Metrics:   metrics,
		Traced:    true,
	}
}

type exchangeKey struct{}

// WithExchange stores an Exchange in the context.
func WithExchange(ctx context.Context, ex *Exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, ex)
}

// ExchangeFromContext retrieves the Exchange from context, or nil.
func ExchangeFromContext(ctx context.Context) *Exchange {
	if ex, ok := ctx.Value(exchangeKey{}).(*Exchange); ok {
		return ex
	}
	return nil
}

// Start opens a client span when the exchange is traced and records the
// request start metric.
func (ex *Exchange) Start(ctx context.Context) (context.Context, trace.Span) {
	var span trace.Span = tracenoop.Span{}
	if ex.Traced {
		ctx, span = StartSpan(ctx, SpanHTTPRequest, trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String(AttrTransport, ex.Transport),
			attribute.String(AttrHTTPMethod, ex.Method),
			attribute.String(AttrURL, ex.URL),
			attribute.String(AttrRequestID, ex.RequestID),
		)
	}
	if ex.Metrics != nil {
		ex.Metrics.RecordRequestStart(ctx)
	}
	return WithExchange(ctx, ex), span
}

// End finishes the span. On success statusCode and protocol describe the
// response; on failure kind names the error class.
func (ex *Exchange) End(ctx context.Context, span trace.Span, statusCode int, protocol, kind string, err error) {
	duration := time.Since(ex.StartTime)

	status := strconv.Itoa(statusCode)
	if err != nil {
		status = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorKind, kind))
		if ex.Metrics != nil {
			ex.Metrics.RecordError(ctx, ex.Transport, kind)
		}
	} else {
		span.SetAttributes(
			attribute.Int(AttrHTTPStatusCode, statusCode),
			attribute.String(AttrProtocol, protocol),
		)
	}
	span.SetAttributes(attribute.Int64(AttrDurationMs, duration.Milliseconds()))
	span.End()

	if ex.Metrics != nil {
		ex.Metrics.RecordRequestEnd(ctx, ex.Transport, ex.Method, status, duration)
	}
}

// Duration returns the elapsed time since the exchange started.
func (ex *Exchange) Duration() time.Duration {
	return time.Since(ex.StartTime)
}
