package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name under which business spans are
// emitted.
const TracerName = "sop-backend"

// Attribute keys shared by the planning spans.
const (
	SpanAttrCycleID   = "cycle_id"
	SpanAttrCycleName = "cycle_name"

	SpanAttrForecastID  = "forecast_id"
	SpanAttrCustomerID  = "customer_id"
	SpanAttrProductID   = "product_id"
	SpanAttrSubmitterID = "submitter_id"

	SpanAttrReportID    = "report_id"
	SpanAttrReportType  = "report_type"
	SpanAttrFingerprint = "fingerprint"
)

// StartSpan starts an internal span named spanName. Initial attributes are
// given as alternating key/value pairs, the same convention SetAttributes and
// AddEvent follow. The caller must End the returned span.
//
//	ctx, span := telemetry.StartSpan(ctx, "forecast.submit",
//	    telemetry.SpanAttrCycleID, cycleID.String(),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, spanName string, keyValues ...any) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
	}
	if attrs := pairAttributes(keyValues); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, spanName, opts...)
}

// StartServiceSpan starts a span named {service}.{method}, the naming the
// application services follow ("report.generate", "forecast.submit").
func StartServiceSpan(ctx context.Context, service, method string, keyValues ...any) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, method), keyValues...)
}

// SetAttributes adds alternating key/value pairs to an existing span, for
// attributes only known after the span started (a loaded cycle's name, the
// resolved report fingerprint).
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairAttributes(keyValues)...)
}

// SetAttribute is the single-pair convenience form of SetAttributes.
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// AddEvent records a timestamped annotation on the span, with optional
// key/value pairs.
//
//	telemetry.AddEvent(span, "report_generated",
//	    "payload_bytes", len(payload),
//	)
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(pairAttributes(keyValues)...))
}

// RecordError records err on the span and sets the span status to Error.
// A nil error leaves the span untouched, so callers can defer it over a
// named error return.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err, opts...)
}

// pairAttributes flattens alternating key/value pairs into attributes.
// Non-string keys and a dangling final key are dropped.
func pairAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for len(keyValues) >= 2 {
		key, value := keyValues[0], keyValues[1]
		keyValues = keyValues[2:]
		name, ok := key.(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(name, value))
	}
	return attrs
}

// toAttribute picks the typed attribute constructor for common Go values.
// UUIDs and decimals arrive as fmt.Stringer; anything unknown is formatted
// with %v.
func toAttribute(name string, value any) attribute.KeyValue {
	key := attribute.Key(name)
	switch v := value.(type) {
	case string:
		return key.String(v)
	case fmt.Stringer:
		return key.String(v.String())
	case int:
		return key.Int(v)
	case int64:
		return key.Int64(v)
	case float64:
		return key.Float64(v)
	case bool:
		return key.Bool(v)
	case []string:
		return key.StringSlice(v)
	default:
		return key.String(fmt.Sprintf("%v", v))
	}
}
