package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueryTracingConfig controls span generation for GORM operations.
//
// LogFullSQL keeps bind variables in span attributes. Production configs
// must leave it off because forecast and pricing values flow through binds.
type QueryTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// QueryTracing instruments a GORM handle with otelgorm spans plus row count,
// table, error and slow statement annotations.
type QueryTracing struct {
	cfg QueryTracingConfig
	log *zap.Logger
}

// NewQueryTracing builds the instrumentation. Zero values for the threshold
// and system name fall back to 200ms and postgresql.
func NewQueryTracing(cfg QueryTracingConfig, log *zap.Logger) *QueryTracing {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &QueryTracing{cfg: cfg, log: log}
}

// queryStartKey carries the statement start time through the statement
// context between the paired callbacks.
type queryStartKey struct{}

// Install hooks the instrumentation into db. The annotation callbacks are
// registered ahead of the otelgorm plugin so they observe a span that is
// still recording.
func (q *QueryTracing) Install(db *gorm.DB) error {
	if !q.cfg.Enabled {
		q.log.Debug("Query tracing disabled")
		return nil
	}

	if err := q.hookCallbacks(db); err != nil {
		return err
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(q.cfg.DBSystem)}
	if !q.cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	q.log.Info("Query tracing enabled",
		zap.Bool("log_full_sql", q.cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", q.cfg.SlowQueryThresh),
		zap.String("db_system", q.cfg.DBSystem),
	)
	return nil
}

func (q *QueryTracing) hookCallbacks(db *gorm.DB) error {
	markStart := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("sop_trace:start_create", markStart),
		cb.Create().After("gorm:create").Register("sop_trace:note_create", q.annotateSpan),
		cb.Query().Before("gorm:query").Register("sop_trace:start_query", markStart),
		cb.Query().After("gorm:query").Register("sop_trace:note_query", q.annotateSpan),
		cb.Update().Before("gorm:update").Register("sop_trace:start_update", markStart),
		cb.Update().After("gorm:update").Register("sop_trace:note_update", q.annotateSpan),
		cb.Delete().Before("gorm:delete").Register("sop_trace:start_delete", markStart),
		cb.Delete().After("gorm:delete").Register("sop_trace:note_delete", q.annotateSpan),
		cb.Row().Before("gorm:row").Register("sop_trace:start_row", markStart),
		cb.Row().After("gorm:row").Register("sop_trace:note_row", q.annotateSpan),
		cb.Raw().Before("gorm:raw").Register("sop_trace:start_raw", markStart),
		cb.Raw().After("gorm:raw").Register("sop_trace:note_raw", q.annotateSpan),
	)
}

// annotateSpan runs after every statement and decorates the active query
// span. Record-not-found leaves the span clean because callers probe for
// absence routinely.
func (q *QueryTracing) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	var attrs []attribute.KeyValue
	if db.Statement.RowsAffected >= 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > q.cfg.SlowQueryThresh {
			attrs = append(attrs,
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", q.cfg.SlowQueryThresh.Milliseconds()),
			))
		}
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
