package valueobject

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewYearMonth(t *testing.T) {
	t.Run("creates valid year month", func(t *testing.T) {
		ym, err := NewYearMonth(2025, time.November)
		require.NoError(t, err)
		assert.Equal(t, 2025, ym.Year())
		assert.Equal(t, time.November, ym.Month())
	})

	t.Run("rejects month out of range", func(t *testing.T) {
		_, err := NewYearMonth(2025, time.Month(13))
		assert.Error(t, err)

		_, err = NewYearMonth(2025, time.Month(0))
		assert.Error(t, err)
	})

	t.Run("rejects year out of range", func(t *testing.T) {
		_, err := NewYearMonth(0, time.January)
		assert.Error(t, err)
	})
}

func TestParseYearMonth(t *testing.T) {
	t.Run("parses canonical form", func(t *testing.T) {
		ym, err := ParseYearMonth("2025-11")
		require.NoError(t, err)
		assert.Equal(t, 2025, ym.Year())
		assert.Equal(t, time.November, ym.Month())
	})

	t.Run("rejects malformed strings", func(t *testing.T) {
		for _, s := range []string{"2025-13", "2025-00", "2025-1", "202511", "2025/11", "abcd-ef", ""} {
			_, err := ParseYearMonth(s)
			assert.Error(t, err, "expected %q to be rejected", s)
		}
	})
}

func TestYearMonthOf(t *testing.T) {
	ym := YearMonthOf(time.Date(2025, time.March, 17, 14, 30, 0, 0, time.UTC))
	assert.Equal(t, "2025-03", ym.String())
}

func TestYearMonthAddMonths(t *testing.T) {
	nov, err := ParseYearMonth("2025-11")
	require.NoError(t, err)

	t.Run("rolls forward across year boundary", func(t *testing.T) {
		assert.Equal(t, "2026-01", nov.AddMonths(2).String())
		assert.Equal(t, "2026-10", nov.AddMonths(11).String())
	})

	t.Run("rolls backward across year boundary", func(t *testing.T) {
		assert.Equal(t, "2025-07", nov.AddMonths(-4).String())
		jan, err := ParseYearMonth("2025-01")
		require.NoError(t, err)
		assert.Equal(t, "2024-12", jan.AddMonths(-1).String())
	})

	t.Run("zero offset returns same month", func(t *testing.T) {
		assert.True(t, nov.AddMonths(0).Equal(nov))
	})

	t.Run("next is one month forward", func(t *testing.T) {
		assert.Equal(t, "2025-12", nov.Next().String())
	})
}

func TestYearMonthMonthsUntil(t *testing.T) {
	nov, _ := ParseYearMonth("2025-11")
	oct, _ := ParseYearMonth("2026-10")
	jul, _ := ParseYearMonth("2025-07")

	assert.Equal(t, 11, nov.MonthsUntil(oct))
	assert.Equal(t, -4, nov.MonthsUntil(jul))
	assert.Equal(t, 0, nov.MonthsUntil(nov))
}

func TestYearMonthComparisons(t *testing.T) {
	earlier, _ := ParseYearMonth("2025-10")
	later, _ := ParseYearMonth("2025-11")

	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))
	assert.True(t, later.After(earlier))
	assert.True(t, earlier.Equal(earlier))
	assert.Equal(t, -1, earlier.Compare(later))
	assert.Equal(t, 1, later.Compare(earlier))
	assert.Equal(t, 0, earlier.Compare(earlier))
}

func TestYearMonthFirstDay(t *testing.T) {
	ym, _ := ParseYearMonth("2025-11")
	assert.Equal(t, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC), ym.FirstDay())
}

func TestYearMonthSQLRoundTrip(t *testing.T) {
	ym, _ := ParseYearMonth("2025-11")

	v, err := ym.Value()
	require.NoError(t, err)
	assert.Equal(t, "2025-11", v)

	var scanned YearMonth
	require.NoError(t, scanned.Scan("2026-02"))
	assert.Equal(t, "2026-02", scanned.String())

	require.NoError(t, scanned.Scan([]byte("2024-06")))
	assert.Equal(t, "2024-06", scanned.String())

	assert.Error(t, scanned.Scan(nil))
	assert.Error(t, scanned.Scan(42))
	assert.Error(t, scanned.Scan("2024-13"))
}

func TestYearMonthJSONRoundTrip(t *testing.T) {
	ym, _ := ParseYearMonth("2025-11")

	data, err := json.Marshal(ym)
	require.NoError(t, err)
	assert.Equal(t, `"2025-11"`, string(data))

	var decoded YearMonth
	require.NoError(t, json.Unmarshal([]byte(`"2026-01"`), &decoded))
	assert.Equal(t, "2026-01", decoded.String())

	assert.Error(t, json.Unmarshal([]byte(`"2026-1"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`17`), &decoded))
}
