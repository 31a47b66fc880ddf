package planning

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers
func anchor(t *testing.T, s string) valueobject.YearMonth {
	ym, err := valueobject.ParseYearMonth(s)
	require.NoError(t, err)
	return ym
}

func createTestCycle(t *testing.T) *Cycle {
	cycle, err := NewCycle("2025-11 S&OP", anchor(t, "2025-11"), nil)
	require.NoError(t, err)
	return cycle
}

// ============================================
// CycleStatus Tests
// ============================================

func TestCycleStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  CycleStatus
		isValid bool
	}{
		{CycleStatusDraft, true},
		{CycleStatusOpen, true},
		{CycleStatusClosed, true},
		{CycleStatus("INVALID"), false},
		{CycleStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestCycleStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     CycleStatus
		to       CycleStatus
		canTrans bool
	}{
		// From DRAFT
		{CycleStatusDraft, CycleStatusOpen, true},
		{CycleStatusDraft, CycleStatusClosed, false},
		// From OPEN
		{CycleStatusOpen, CycleStatusClosed, true},
		{CycleStatusOpen, CycleStatusDraft, true},
		// From CLOSED (terminal)
		{CycleStatusClosed, CycleStatusDraft, false},
		{CycleStatusClosed, CycleStatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

// ============================================
// NewCycle Tests
// ============================================

func TestNewCycle(t *testing.T) {
	t.Run("creates draft cycle with valid inputs", func(t *testing.T) {
		deadline := time.Date(2025, time.November, 20, 18, 0, 0, 0, time.UTC)
		cycle, err := NewCycle("2025-11 S&OP", anchor(t, "2025-11"), &deadline)
		require.NoError(t, err)
		require.NotNil(t, cycle)

		assert.Equal(t, "2025-11 S&OP", cycle.Name)
		assert.Equal(t, CycleStatusDraft, cycle.Status)
		assert.Equal(t, "2025-11", cycle.AnchorMonth.String())
		assert.Equal(t, 2025, cycle.StartYear)
		assert.Equal(t, 7, cycle.StartMonth)
		assert.Equal(t, 2026, cycle.EndYear)
		assert.Equal(t, 10, cycle.EndMonth)
		assert.Equal(t, &deadline, cycle.Deadline)
		assert.Nil(t, cycle.OpenedAt)
		assert.Nil(t, cycle.ClosedAt)
		assert.Zero(t, cycle.TotalForecasts)
		assert.Zero(t, cycle.SubmittedForecasts)
		assert.True(t, cycle.CompletionPct.IsZero())
		assert.NotEmpty(t, cycle.ID)
		assert.Equal(t, 1, cycle.Version)
	})

	t.Run("trims the name", func(t *testing.T) {
		cycle, err := NewCycle("  padded  ", anchor(t, "2025-11"), nil)
		require.NoError(t, err)
		assert.Equal(t, "padded", cycle.Name)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewCycle("   ", anchor(t, "2025-11"), nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("rejects zero anchor", func(t *testing.T) {
		_, err := NewCycle("cycle", valueobject.YearMonth{}, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

// ============================================
// Planning Window Tests
// ============================================

func TestCycle_WindowMonths(t *testing.T) {
	cycle := createTestCycle(t)
	months := cycle.WindowMonths()
	require.Len(t, months, WindowTotalMonths)

	wantMonths := []string{
		"2025-07", "2025-08", "2025-09", "2025-10",
		"2025-11",
		"2025-12", "2026-01", "2026-02", "2026-03", "2026-04", "2026-05",
		"2026-06", "2026-07", "2026-08", "2026-09", "2026-10",
	}
	wantSegments := []Segment{
		SegmentHistorical, SegmentHistorical, SegmentHistorical, SegmentHistorical,
		SegmentCurrent,
		SegmentFuture, SegmentFuture, SegmentFuture, SegmentFuture, SegmentFuture, SegmentFuture,
		SegmentFuture, SegmentFuture, SegmentFuture, SegmentFuture, SegmentFuture,
	}

	for i, wm := range months {
		assert.Equal(t, wantMonths[i], wm.Month.String(), "month %d", i)
		assert.Equal(t, wantSegments[i], wm.Segment, "segment of %s", wm.Month)
	}
}

func TestCycle_WindowMonths_SegmentBreakdown(t *testing.T) {
	cycle := createTestCycle(t)

	counts := map[Segment]int{}
	futureFlagged := 0
	for _, wm := range cycle.WindowMonths() {
		counts[wm.Segment]++
		if wm.Segment.IsFutureFlagged() {
			futureFlagged++
		}
	}

	assert.Equal(t, HistoricalMonths, counts[SegmentHistorical])
	assert.Equal(t, 1, counts[SegmentCurrent])
	assert.Equal(t, FutureMonths, counts[SegmentFuture])
	assert.Equal(t, 12, futureFlagged)
}

func TestCycle_SegmentOf(t *testing.T) {
	cycle := createTestCycle(t)

	tests := []struct {
		month   string
		segment Segment
		inside  bool
	}{
		{"2025-07", SegmentHistorical, true},
		{"2025-10", SegmentHistorical, true},
		{"2025-11", SegmentCurrent, true},
		{"2025-12", SegmentFuture, true},
		{"2026-10", SegmentFuture, true},
		{"2025-06", "", false},
		{"2026-11", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			segment, ok := cycle.SegmentOf(anchor(t, tt.month))
			assert.Equal(t, tt.inside, ok)
			if tt.inside {
				assert.Equal(t, tt.segment, segment)
			}
		})
	}
}

// ============================================
// Lifecycle Tests
// ============================================

func TestCycle_Open(t *testing.T) {
	t.Run("opens a draft cycle", func(t *testing.T) {
		cycle := createTestCycle(t)

		require.NoError(t, cycle.Open())
		assert.Equal(t, CycleStatusOpen, cycle.Status)
		require.NotNil(t, cycle.OpenedAt)
	})

	t.Run("fails on an open cycle", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())

		err := cycle.Open()
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("fails on a closed cycle", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())
		require.NoError(t, cycle.Close())

		err := cycle.Open()
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}

func TestCycle_Close(t *testing.T) {
	t.Run("closes an open cycle", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())

		require.NoError(t, cycle.Close())
		assert.Equal(t, CycleStatusClosed, cycle.Status)
		require.NotNil(t, cycle.ClosedAt)
	})

	t.Run("fails on a draft cycle", func(t *testing.T) {
		cycle := createTestCycle(t)

		err := cycle.Close()
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("closed is terminal", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())
		require.NoError(t, cycle.Close())

		assert.Error(t, cycle.Close())
		assert.Error(t, cycle.RevertToDraft())
	})
}

func TestCycle_RevertToDraft(t *testing.T) {
	t.Run("reverts an open cycle without submissions", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())

		require.NoError(t, cycle.RevertToDraft())
		assert.Equal(t, CycleStatusDraft, cycle.Status)
		assert.Nil(t, cycle.OpenedAt)
	})

	t.Run("fails with submitted forecasts", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())
		cycle.ApplyStatistics(CycleStatistics{TotalForecasts: 5, SubmittedForecasts: 2, TotalReps: 3, SubmittedReps: 1})

		err := cycle.RevertToDraft()
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("fails on a draft cycle", func(t *testing.T) {
		cycle := createTestCycle(t)
		err := cycle.RevertToDraft()
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}

func TestCycle_CanDelete(t *testing.T) {
	cycle := createTestCycle(t)
	assert.True(t, cycle.CanDelete())

	require.NoError(t, cycle.Open())
	assert.False(t, cycle.CanDelete())
}

// ============================================
// Statistics Tests
// ============================================

func TestCycleStatistics_CompletionPct(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		submitted int
		want      string
	}{
		{"zero total", 0, 0, "0"},
		{"half", 10, 5, "50"},
		{"rounded to 2dp", 3, 1, "33.33"},
		{"two thirds", 3, 2, "66.67"},
		{"complete", 4, 4, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CycleStatistics{TotalForecasts: tt.total, SubmittedForecasts: tt.submitted}
			assert.True(t, stats.CompletionPct().Equal(decimal.RequireFromString(tt.want)),
				"got %s", stats.CompletionPct())
		})
	}
}

func TestCycle_ApplyStatistics(t *testing.T) {
	cycle := createTestCycle(t)
	cycle.ApplyStatistics(CycleStatistics{TotalForecasts: 8, SubmittedForecasts: 6, TotalReps: 4, SubmittedReps: 3})

	assert.Equal(t, 8, cycle.TotalForecasts)
	assert.Equal(t, 6, cycle.SubmittedForecasts)
	assert.Equal(t, 4, cycle.TotalReps)
	assert.Equal(t, 3, cycle.SubmittedReps)
	assert.True(t, cycle.CompletionPct.Equal(decimal.NewFromInt(75)))
}

// ============================================
// Deadline Tests
// ============================================

func TestCycle_UpdateDeadline(t *testing.T) {
	t.Run("sets deadline while open", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())

		deadline := time.Now().Add(72 * time.Hour)
		require.NoError(t, cycle.UpdateDeadline(&deadline))
		assert.Equal(t, &deadline, cycle.Deadline)
	})

	t.Run("fails once closed", func(t *testing.T) {
		cycle := createTestCycle(t)
		require.NoError(t, cycle.Open())
		require.NoError(t, cycle.Close())

		deadline := time.Now()
		err := cycle.UpdateDeadline(&deadline)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}

func TestCycle_DeadlinePassed(t *testing.T) {
	now := time.Now()

	cycle := createTestCycle(t)
	assert.False(t, cycle.DeadlinePassed(now), "no deadline never passes")

	past := now.Add(-time.Hour)
	require.NoError(t, cycle.UpdateDeadline(&past))
	assert.True(t, cycle.DeadlinePassed(now))

	future := now.Add(time.Hour)
	require.NoError(t, cycle.UpdateDeadline(&future))
	assert.False(t, cycle.DeadlinePassed(now))
}
