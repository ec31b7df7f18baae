package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func spanAttr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics_Noop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRequestStart(ctx)
	metrics.RecordRequestEnd(ctx, "default", "GET", "200", 100*time.Millisecond)
	metrics.RecordSession(ctx, "default", SessionOpen)
	metrics.RecordError(ctx, "default", "connect")
}

func TestMetrics_RecordsToReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRequestStart(ctx)
	metrics.RecordRequestEnd(ctx, "default", "GET", "200", 10*time.Millisecond)
	metrics.RecordSession(ctx, "default", SessionOpen)
	metrics.RecordSession(ctx, "default", SessionClose)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	if totals["httpbridge.request.total"] != 1 {
		t.Errorf("request.total = %d, want 1", totals["httpbridge.request.total"])
	}
	if totals["httpbridge.request.active"] != 0 {
		t.Errorf("request.active = %d, want 0", totals["httpbridge.request.active"])
	}
	if totals["httpbridge.session.events"] != 2 {
		t.Errorf("session.events = %d, want 2", totals["httpbridge.session.events"])
	}
}

func TestNewExchange(t *testing.T) {
	ex := NewExchange("default", "GET", "http://example.com", "req-1", nil)

	if ex.Transport != "default" {
		t.Errorf("expected Transport 'default', got %s", ex.Transport)
	}
	if ex.RequestID != "req-1" {
		t.Errorf("expected RequestID 'req-1', got %s", ex.RequestID)
	}
	if ex.StartTime.IsZero() {
		t.Error("expected StartTime to be set")
	}
}

func TestExchangeFromContext(t *testing.T) {
	if ExchangeFromContext(context.Background()) != nil {
		t.Error("expected nil when exchange not set")
	}

	ex := NewExchange("default", "GET", "http://example.com", "req-1", nil)
	ctx, span := ex.Start(context.Background())
	defer span.End()

	if got := ExchangeFromContext(ctx); got != ex {
		t.Errorf("expected the started exchange in context, got %v", got)
	}
}

func TestExchange_Duration(t *testing.T) {
	ex := NewExchange("default", "GET", "http://example.com", "req-1", nil)
	ex.StartTime = time.Now().Add(-50 * time.Millisecond)

	duration := ex.Duration()
	if duration < 45*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected duration around 50ms, got %v", duration)
	}
}

func TestExchange_SuccessSpan(t *testing.T) {
	exporter := installRecorder(t)

	ex := NewExchange("default", "POST", "http://example.com/x", "req-1", nil)
	ctx, span := ex.Start(context.Background())
	ex.End(ctx, span, 201, "HTTP/1.1", "", nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != SpanHTTPRequest {
		t.Errorf("span name = %q, want %q", s.Name, SpanHTTPRequest)
	}
	if v, ok := spanAttr(s, AttrHTTPStatusCode); !ok || v.AsInt64() != 201 {
		t.Errorf("status attribute = %v (present=%v), want 201", v.AsInt64(), ok)
	}
	if v, ok := spanAttr(s, AttrHTTPMethod); !ok || v.AsString() != "POST" {
		t.Errorf("method attribute = %q, want POST", v.AsString())
	}
	if s.Status.Code == codes.Error {
		t.Error("successful exchange must not mark the span as failed")
	}
}

func TestExchange_ErrorSpan(t *testing.T) {
	exporter := installRecorder(t)
	metrics, _ := NewMetrics(noop.NewMeterProvider().Meter("test"))

	ex := NewExchange("default", "GET", "http://127.0.0.1:1", "req-2", metrics)
	ctx, span := ex.Start(context.Background())
	ex.End(ctx, span, 0, "", "connect", errors.New("connection refused"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", s.Status.Code)
	}
	if v, ok := spanAttr(s, AttrErrorKind); !ok || v.AsString() != "connect" {
		t.Errorf("error kind attribute = %q, want connect", v.AsString())
	}
	if len(s.Events) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestExchange_UntracedRecordsMetricsOnly(t *testing.T) {
	exporter := installRecorder(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ex := NewExchange("default", "GET", "http://example.com", "req-3", metrics)
	ex.Traced = false
	ctx, span := ex.Start(context.Background())
	if span.IsRecording() {
		t.Error("untraced exchange must not record a span")
	}
	ex.End(ctx, span, 200, "HTTP/1.1", "", nil)

	if n := len(exporter.GetSpans()); n != 0 {
		t.Errorf("exported %d spans, want 0", n)
	}
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "httpbridge.request.total" {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	if total != 1 {
		t.Errorf("request.total = %d, want 1", total)
	}
}

func TestTracer(t *testing.T) {
	if Tracer("test-tracer") == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestMeter(t *testing.T) {
	if Meter("test-meter") == nil {
		t.Fatal("expected non-nil meter")
	}
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()
	if SpanFromContext(ctx) == nil {
		t.Fatal("expected non-nil span (noop)")
	}

	ctx, s := StartSpan(ctx, "test")
	defer s.End()
	if SpanFromContext(ctx) == nil {
		t.Fatal("expected non-nil span from context")
	}
}

func TestSetSpanAttribute(t *testing.T) {
	exporter := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "test-attrs")
	SetSpanAttribute(ctx, "string-key", "value")
	SetSpanAttribute(ctx, "int-key", 42)
	SetSpanAttribute(ctx, "int64-key", int64(100))
	SetSpanAttribute(ctx, "float-key", 3.14)
	SetSpanAttribute(ctx, "bool-key", true)
	SetSpanAttribute(ctx, "string-slice-key", []string{"a", "b"})
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if _, ok := spanAttr(spans[0], "unsupported-key"); ok {
		t.Error("unsupported attribute types must be ignored")
	}
	if v, ok := spanAttr(spans[0], "int-key"); !ok || v.AsInt64() != 42 {
		t.Errorf("int-key = %v, want 42", v.AsInt64())
	}
}

func TestSetSpanAttributeAndErrorNoSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "key", "value")
	SetSpanError(ctx, errors.New("no span error"))
}

func TestInitTracerSamplingRates(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	for _, rate := range []float64{1.0, 0.0, 0.5} {
		cfg := DefaultTracerConfig("test")
		cfg.SampleRate = rate
		tp, err := InitTracer(context.Background(), &cfg)
		if err != nil {
			// semconv schema URLs can disagree with resource.Default across otel releases
			t.Skipf("InitTracer failed: %v", err)
		}
		_ = tp.Shutdown(context.Background())
	}
}

func TestInitMeter(t *testing.T) {
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	cfg := DefaultMeterConfig("test")
	cfg.Interval = 0
	mp, err := InitMeter(context.Background(), &cfg)
	if err != nil {
		t.Skipf("InitMeter failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = mp.Shutdown(ctx)
}
