package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/sop/backend/internal/infrastructure/telemetry"
)

// newSpanRecorder swaps the global tracer provider for one backed by an
// in-memory recorder and restores the previous provider when the test ends.
func newSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	return sr
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}
	return m
}

func TestStartSpan_Defaults(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "pricing.resolve")
	require.NotNil(t, span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "pricing.resolve", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
}

func TestStartSpan_InitialAttributes(t *testing.T) {
	sr := newSpanRecorder(t)

	cycleID := uuid.New()
	_, span := telemetry.StartSpan(context.Background(), "cycle.close",
		telemetry.SpanAttrCycleID, cycleID.String(),
		telemetry.SpanAttrCycleName, "2026 Q3",
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrs := attributeMap(spans[0].Attributes())
	assert.Equal(t, cycleID.String(), attrs[telemetry.SpanAttrCycleID])
	assert.Equal(t, "2026 Q3", attrs[telemetry.SpanAttrCycleName])
}

func TestStartServiceSpan_NamingConvention(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "report", "generate")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "report.generate", spans[0].Name())
}

func TestSetAttributes_Pairs(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "report.generate")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReportType, "demand_vs_supply",
		"payload_bytes", 2048,
		"cache_hit", false,
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrs := attributeMap(spans[0].Attributes())
	assert.Equal(t, "demand_vs_supply", attrs[telemetry.SpanAttrReportType])
	assert.Equal(t, int64(2048), attrs["payload_bytes"])
	assert.Equal(t, false, attrs["cache_hit"])
}

func TestSetAttributes_DropsMalformedPairs(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "report.generate")
	telemetry.SetAttributes(span,
		"kept", "value",
		42, "dropped with non-string key",
		"dangling key without a value",
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrs := attributeMap(spans[0].Attributes())
	assert.Equal(t, map[string]any{"kept": "value"}, attrs)
}

func TestAddEvent_WithAttributes(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "report.generate")
	telemetry.AddEvent(span, "report_generated",
		"payload_bytes", 512,
		telemetry.SpanAttrFingerprint, "a1b2c3",
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "report_generated", events[0].Name)

	attrs := attributeMap(events[0].Attributes)
	assert.Equal(t, int64(512), attrs["payload_bytes"])
	assert.Equal(t, "a1b2c3", attrs[telemetry.SpanAttrFingerprint])
}

func TestRecordError_SetsStatusAndEvent(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "report.generate")
	telemetry.RecordError(span, errors.New("engine failed"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "engine failed", spans[0].Status().Description)

	events := spans[0].Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "exception", events[0].Name)
}

func TestRecordError_NilErrorIsIgnored(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := telemetry.StartSpan(context.Background(), "report.generate")
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestHelpers_NilSpanIsSafe(t *testing.T) {
	telemetry.SetAttributes(nil, "key", "value")
	telemetry.SetAttribute(nil, "key", "value")
	telemetry.AddEvent(nil, "event", "key", "value")
	telemetry.RecordError(nil, errors.New("ignored"))
}

func TestNestedSpans_ShareTraceAndParent(t *testing.T) {
	sr := newSpanRecorder(t)

	ctx, parent := telemetry.StartSpan(context.Background(), "report.generate")
	_, child := telemetry.StartSpan(ctx, "engine.aggregate")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		byName[s.Name()] = s
	}
	parentSpan, ok := byName["report.generate"]
	require.True(t, ok)
	childSpan, ok := byName["engine.aggregate"]
	require.True(t, ok)

	assert.Equal(t, parentSpan.SpanContext().TraceID(), childSpan.SpanContext().TraceID())
	assert.Equal(t, parentSpan.SpanContext().SpanID(), childSpan.Parent().SpanID())
}

func TestAttributeConversion(t *testing.T) {
	forecastID := uuid.New()

	cases := []struct {
		name  string
		value any
		want  any
	}{
		{"string", "demand_vs_supply", "demand_vs_supply"},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"int64", int64(1200), int64(1200)},
		{"float64", 0.1, 0.1},
		{"string slice", []string{"2026-01", "2026-02"}, []string{"2026-01", "2026-02"}},
		{"uuid via Stringer", forecastID, forecastID.String()},
		{"decimal via Stringer", decimal.NewFromFloat(99.95), "99.95"},
		{"fallback formatting", int32(7), "7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sr := newSpanRecorder(t)

			_, span := telemetry.StartSpan(context.Background(), "attr.probe")
			telemetry.SetAttribute(span, "probe", tc.value)
			span.End()

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.want, attributeMap(spans[0].Attributes())["probe"])
		})
	}
}
