package xmetrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type otelTestHarness struct {
	observer Observer
	spans    *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

func newOTelTestHarness(t *testing.T) *otelTestHarness {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	observer, err := NewOTelObserver(
		WithTracerProvider(tp),
		WithMeterProvider(mp),
	)
	if err != nil {
		t.Fatalf("NewOTelObserver failed: %v", err)
	}

	return &otelTestHarness{observer: observer, spans: spans, reader: reader}
}

// counterValue 汇总指定计数器的所有数据点。
func (h *otelTestHarness) counterValue(t *testing.T, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestOTelObserver_Success(t *testing.T) {
	h := newOTelTestHarness(t)

	ctx, span := Start(context.Background(), h.observer, SpanOptions{
		Component: "xarm",
		Operation: "http_request",
		Kind:      KindClient,
		Attrs:     []Attr{{Key: "http.method", Value: "GET"}},
	})
	if ctx == context.Background() {
		t.Error("expected span context to be derived")
	}
	span.End(Result{})

	recorded := h.spans.Ended()
	if len(recorded) != 1 {
		t.Fatalf("recorded spans = %d, expected 1", len(recorded))
	}
	got := recorded[0]
	if got.Name() != "http_request" {
		t.Errorf("span name = %q, expected http_request", got.Name())
	}
	if got.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v, expected client", got.SpanKind())
	}
	if got.Status().Code != codes.Ok {
		t.Errorf("span status = %v, expected ok", got.Status().Code)
	}

	if v := h.counterValue(t, metricOperationTotal); v != 1 {
		t.Errorf("operation total = %d, expected 1", v)
	}
}

func TestOTelObserver_Error(t *testing.T) {
	h := newOTelTestHarness(t)

	_, span := Start(context.Background(), h.observer, SpanOptions{
		Component: "xarm",
		Operation: "get_token",
	})
	span.End(Result{Err: errors.New("identity endpoint unreachable")})

	recorded := h.spans.Ended()
	if len(recorded) != 1 {
		t.Fatalf("recorded spans = %d, expected 1", len(recorded))
	}
	got := recorded[0]
	if got.Status().Code != codes.Error {
		t.Errorf("span status = %v, expected error", got.Status().Code)
	}
	if len(got.Events()) == 0 {
		t.Error("expected an exception event recorded on the span")
	}
}

func TestOTelObserver_EndIsIdempotent(t *testing.T) {
	h := newOTelTestHarness(t)

	_, span := Start(context.Background(), h.observer, SpanOptions{
		Component: "xarm",
		Operation: "http_request",
	})
	span.End(Result{})
	span.End(Result{Err: errors.New("late failure")})

	if v := h.counterValue(t, metricOperationTotal); v != 1 {
		t.Errorf("operation total = %d, expected exactly 1 after double End", v)
	}
	if recorded := h.spans.Ended(); len(recorded) != 1 {
		t.Errorf("recorded spans = %d, expected 1", len(recorded))
	}
}

func TestOTelObserver_CanceledContextStillRecords(t *testing.T) {
	h := newOTelTestHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, span := Start(ctx, h.observer, SpanOptions{
		Component: "xarm",
		Operation: "http_request",
	})
	cancel()
	span.End(Result{Err: context.Canceled})

	if v := h.counterValue(t, metricOperationTotal); v != 1 {
		t.Errorf("operation total = %d, expected 1 even with canceled ctx", v)
	}
}
