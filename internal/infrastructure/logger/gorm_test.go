package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

// newObservedGormLogger builds a GormLogger whose output is captured for
// assertions. The observer core records at Debug so only the GORM level
// gates what lands in the logs.
func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func traceQuery(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func stringFields(entry observer.LoggedEntry) map[string]string {
	fields := make(map[string]string, len(entry.Context))
	for _, f := range entry.Context {
		fields[f.Key] = f.String
	}
	return fields
}

func TestNewGormLogger_Defaults(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)

	assert.Equal(t, gormlogger.Info, gl.level)
	assert.Equal(t, defaultSlowThreshold, gl.slowThreshold)
	assert.True(t, gl.skipNotFound)
}

func TestNewGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info,
		WithSlowQueryThreshold(500*time.Millisecond),
		WithSkipNotFound(false),
	)

	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.skipNotFound)
}

func TestGormLogger_LogMode_ReturnsCopy(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)

	leveled, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Warn, leveled.level)
	assert.Equal(t, gormlogger.Info, gl.level)
}

func TestGormLogger_LeveledPrintf(t *testing.T) {
	cases := []struct {
		name      string
		level     gormlogger.LogLevel
		log       func(*GormLogger)
		wantCount int
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{
			name:  "info at info level",
			level: gormlogger.Info,
			log: func(gl *GormLogger) {
				gl.Info(context.Background(), "migrated %d cycles", 3)
			},
			wantCount: 1,
			wantMsg:   "migrated 3 cycles",
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:  "info suppressed at silent",
			level: gormlogger.Silent,
			log: func(gl *GormLogger) {
				gl.Info(context.Background(), "migrated %d cycles", 3)
			},
			wantCount: 0,
		},
		{
			name:  "warn at warn level",
			level: gormlogger.Warn,
			log: func(gl *GormLogger) {
				gl.Warn(context.Background(), "forecast %s has no lines", "f-1")
			},
			wantCount: 1,
			wantMsg:   "forecast f-1 has no lines",
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:  "warn suppressed at error level",
			level: gormlogger.Error,
			log: func(gl *GormLogger) {
				gl.Warn(context.Background(), "forecast %s has no lines", "f-1")
			},
			wantCount: 0,
		},
		{
			name:  "error at error level",
			level: gormlogger.Error,
			log: func(gl *GormLogger) {
				gl.Error(context.Background(), "deadlock on %s", "planning_cycles")
			},
			wantCount: 1,
			wantMsg:   "deadlock on planning_cycles",
			wantLevel: zapcore.ErrorLevel,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(tc.level)
			tc.log(gl)

			logs := recorded.All()
			require.Len(t, logs, tc.wantCount)
			if tc.wantCount > 0 {
				assert.Equal(t, tc.wantMsg, logs[0].Message)
				assert.Equal(t, tc.wantLevel, logs[0].Level)
			}
		})
	}
}

func TestGormLogger_Trace_Error(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(),
		traceQuery("SELECT * FROM planning_cycles", 0), errors.New("connection reset"))

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SQL Error", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
}

func TestGormLogger_Trace_RecordNotFoundIgnored(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(),
		traceQuery("SELECT * FROM planning_cycles WHERE id = ?", 0), gormlogger.ErrRecordNotFound)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_Trace_RecordNotFoundLoggedWhenConfigured(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error, WithSkipNotFound(false))

	gl.Trace(context.Background(), time.Now(),
		traceQuery("SELECT * FROM planning_cycles WHERE id = ?", 0), gormlogger.ErrRecordNotFound)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SQL Error", logs[0].Message)
}

func TestGormLogger_Trace_SlowQuery(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn, WithSlowQueryThreshold(time.Nanosecond))

	begin := time.Now().Add(-time.Second)
	gl.Trace(context.Background(), begin, traceQuery("SELECT * FROM forecast_lines", 10), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "SLOW SQL")
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
}

func TestGormLogger_Trace_NormalQuery(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), traceQuery("SELECT * FROM forecasts", 5), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SQL Query", logs[0].Message)
}

func TestGormLogger_Trace_Silent(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), traceQuery("SELECT * FROM forecasts", 5), nil)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_Trace_CarriesRequestID(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	// Run-scoped request ID as set by the scheduler
	ctx := context.WithValue(context.Background(), RequestIDKey, "run-req-id")
	gl.Trace(ctx, time.Now(), traceQuery("UPDATE planning_cycles SET status = ?", 1), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "run-req-id", stringFields(logs[0])["request_id"])
}

func TestGormLogger_Trace_CarriesTraceContext(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	ctx, span := startRecordingSpan(t)
	defer span.End()

	gl.Trace(ctx, time.Now(), traceQuery("SELECT * FROM sales_records", 3), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)

	fields := stringFields(logs[0])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"WARN", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"Info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
