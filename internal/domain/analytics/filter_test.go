package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int                  { return &v }
func uuidPtr(s string) *uuid.UUID        { id := uuid.MustParse(s); return &id }
func timePtr(t time.Time) *time.Time     { return &t }
func date(y int, m time.Month) time.Time { return time.Date(y, m, 15, 10, 30, 0, 0, time.UTC) }

// ============================================
// Validation Tests
// ============================================

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"empty filter", Filter{}, false},
		{"year only", Filter{Year: intPtr(2025)}, false},
		{"year and month", Filter{Year: intPtr(2025), Month: intPtr(9)}, false},
		{"month without year", Filter{Month: intPtr(9)}, true},
		{"month zero", Filter{Year: intPtr(2025), Month: intPtr(0)}, true},
		{"month thirteen", Filter{Year: intPtr(2025), Month: intPtr(13)}, true},
		{"year out of range", Filter{Year: intPtr(0)}, true},
		{"date range ordered", Filter{DateFrom: timePtr(date(2025, 1)), DateTo: timePtr(date(2025, 6))}, false},
		{"date range inverted", Filter{DateFrom: timePtr(date(2025, 6)), DateTo: timePtr(date(2025, 1))}, true},
		{
			"agreeing period forms",
			Filter{Year: intPtr(2025), Month: intPtr(3), DateFrom: timePtr(date(2025, 3)), DateTo: timePtr(date(2025, 3))},
			false,
		},
		{
			"disagreeing period forms",
			Filter{Year: intPtr(2025), Month: intPtr(3), DateFrom: timePtr(date(2025, 4))},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, shared.ErrInvalidInput), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_MonthBounds(t *testing.T) {
	t.Run("unbounded when empty", func(t *testing.T) {
		from, to, err := Filter{}.MonthBounds()
		require.NoError(t, err)
		assert.Nil(t, from)
		assert.Nil(t, to)
	})

	t.Run("year expands to january through december", func(t *testing.T) {
		from, to, err := Filter{Year: intPtr(2025)}.MonthBounds()
		require.NoError(t, err)
		assert.Equal(t, "2025-01", from.String())
		assert.Equal(t, "2025-12", to.String())
	})

	t.Run("year and month pin a single month", func(t *testing.T) {
		from, to, err := Filter{Year: intPtr(2025), Month: intPtr(9)}.MonthBounds()
		require.NoError(t, err)
		assert.Equal(t, "2025-09", from.String())
		assert.Equal(t, "2025-09", to.String())
	})

	t.Run("date range truncates to months", func(t *testing.T) {
		from, to, err := Filter{
			DateFrom: timePtr(date(2025, 7)),
			DateTo:   timePtr(date(2026, 2)),
		}.MonthBounds()
		require.NoError(t, err)
		assert.Equal(t, "2025-07", from.String())
		assert.Equal(t, "2026-02", to.String())
	})

	t.Run("half-open date range", func(t *testing.T) {
		from, to, err := Filter{DateFrom: timePtr(date(2025, 7))}.MonthBounds()
		require.NoError(t, err)
		require.NotNil(t, from)
		assert.Equal(t, "2025-07", from.String())
		assert.Nil(t, to)
	})
}

// ============================================
// Canonical Form and Fingerprint Tests
// ============================================

func TestFilter_Canonical(t *testing.T) {
	customerID := uuidPtr("11111111-1111-1111-1111-111111111111")
	cycleID := uuidPtr("33333333-3333-3333-3333-333333333333")

	t.Run("empty filter has empty form", func(t *testing.T) {
		assert.Equal(t, "", Filter{}.Canonical())
	})

	t.Run("keys are sorted", func(t *testing.T) {
		canonical := Filter{CustomerID: customerID, CycleID: cycleID, Year: intPtr(2025)}.Canonical()
		assert.Equal(t,
			"customer_id=11111111-1111-1111-1111-111111111111&cycle_id=33333333-3333-3333-3333-333333333333&year=2025",
			canonical)
	})

	t.Run("dates normalize to day precision", func(t *testing.T) {
		morning := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
		evening := time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC)
		a := Filter{DateFrom: &morning}.Canonical()
		b := Filter{DateFrom: &evening}.Canonical()
		assert.Equal(t, a, b)
	})
}

func TestFingerprint(t *testing.T) {
	customerID := uuidPtr("11111111-1111-1111-1111-111111111111")

	t.Run("stable across calls", func(t *testing.T) {
		filter := Filter{CustomerID: customerID, Year: intPtr(2025)}
		assert.Equal(t,
			Fingerprint(ReportTypeSalesSummary, filter),
			Fingerprint(ReportTypeSalesSummary, filter))
	})

	t.Run("equal content yields equal fingerprints", func(t *testing.T) {
		otherID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
		a := Filter{CustomerID: customerID, Year: intPtr(2025)}
		b := Filter{Year: intPtr(2025), CustomerID: &otherID}
		assert.Equal(t,
			Fingerprint(ReportTypeSalesSummary, a),
			Fingerprint(ReportTypeSalesSummary, b))
	})

	t.Run("type is part of the key", func(t *testing.T) {
		filter := Filter{CustomerID: customerID}
		assert.NotEqual(t,
			Fingerprint(ReportTypeSalesSummary, filter),
			Fingerprint(ReportTypeGrossProfit, filter))
	})

	t.Run("filter content is part of the key", func(t *testing.T) {
		a := Filter{Year: intPtr(2025)}
		b := Filter{Year: intPtr(2026)}
		assert.NotEqual(t,
			Fingerprint(ReportTypeSalesSummary, a),
			Fingerprint(ReportTypeSalesSummary, b))
	})

	t.Run("is hex sha-256", func(t *testing.T) {
		assert.Len(t, Fingerprint(ReportTypeSalesSummary, Filter{}), 64)
	})
}
