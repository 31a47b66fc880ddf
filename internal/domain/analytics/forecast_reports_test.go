package analytics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassifyVariance(t *testing.T) {
	tests := []struct {
		name         string
		forecast     string
		actual       string
		wantVariance string
		wantBand     VarianceBand
	}{
		{"within tolerance under", "100", "95", "-5", VarianceAccurate},
		{"within tolerance over", "100", "108", "8", VarianceAccurate},
		{"exactly at tolerance", "100", "110", "10", VarianceAccurate},
		{"exactly at negative tolerance", "100", "90", "-10", VarianceAccurate},
		{"under forecast", "100", "60", "-40", VarianceUnder},
		{"over forecast", "100", "150", "50", VarianceOver},
		{"just past tolerance", "100", "110.5", "10.5", VarianceOver},
		{"nothing sold", "100", "0", "-100", VarianceUnder},
		{"zero forecast with sales", "0", "25", "100", VarianceOver},
		{"zero forecast no sales", "0", "0", "0", VarianceAccurate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variance, band := ClassifyVariance(
				decimal.RequireFromString(tt.forecast),
				decimal.RequireFromString(tt.actual))

			assert.True(t, variance.Equal(decimal.RequireFromString(tt.wantVariance)),
				"variance: got %s, want %s", variance, tt.wantVariance)
			assert.Equal(t, tt.wantBand, band)
		})
	}
}

func TestAbsolutePercentageError(t *testing.T) {
	tests := []struct {
		forecast string
		actual   string
		want     string
	}{
		{"100", "95", "5"},
		{"100", "150", "50"},
		{"100", "60", "40"},
		{"100", "100", "0"},
		{"80", "100", "25"},
	}

	for _, tt := range tests {
		t.Run(tt.forecast+"/"+tt.actual, func(t *testing.T) {
			got := AbsolutePercentageError(
				decimal.RequireFromString(tt.forecast),
				decimal.RequireFromString(tt.actual))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestSubmitterStatusCounts(t *testing.T) {
	counts := SubmitterStatusCounts{
		SubmitterID:    uuid.New(),
		DraftCount:     2,
		SubmittedCount: 3,
		ApprovedCount:  4,
		RejectedCount:  1,
	}

	assert.Equal(t, 10, counts.Total())
	assert.Equal(t, 7, counts.SubmittedOrApproved())
}
