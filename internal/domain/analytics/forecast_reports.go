package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccuracyTolerancePct is the band within which a forecast month counts as
// accurate, in percent of the forecast quantity.
const AccuracyTolerancePct = 10

// VarianceBand classifies a month's forecast-vs-actual deviation
type VarianceBand string

const (
	VarianceOver     VarianceBand = "OVER"
	VarianceUnder    VarianceBand = "UNDER"
	VarianceAccurate VarianceBand = "ACCURATE"
)

var hundred = decimal.NewFromInt(100)

// ClassifyVariance computes the variance percentage
// (actual-forecast)/forecast*100 and its band. A zero forecast with actual
// sales counts as 100% Over; zero forecast and zero actual is Accurate.
func ClassifyVariance(forecastQty, actualQty decimal.Decimal) (decimal.Decimal, VarianceBand) {
	if forecastQty.IsZero() {
		if actualQty.IsZero() {
			return decimal.Zero, VarianceAccurate
		}
		return hundred, VarianceOver
	}

	variance := actualQty.Sub(forecastQty).Div(forecastQty).Mul(hundred)
	tolerance := decimal.NewFromInt(AccuracyTolerancePct)
	switch {
	case variance.Abs().LessThanOrEqual(tolerance):
		return variance, VarianceAccurate
	case variance.IsNegative():
		return variance, VarianceUnder
	default:
		return variance, VarianceOver
	}
}

// AbsolutePercentageError returns |actual-forecast|/forecast*100.
// Callers must exclude zero-forecast months first.
func AbsolutePercentageError(forecastQty, actualQty decimal.Decimal) decimal.Decimal {
	return actualQty.Sub(forecastQty).Abs().Div(forecastQty).Mul(hundred)
}

// ForecastActualLine pairs one historical forecast line with the matching
// actual-sales quantity (zero when no sales record exists). HasActual
// distinguishes a missing sales record from a recorded zero so accuracy
// metrics can restrict themselves to months with real data.
type ForecastActualLine struct {
	ForecastID       uuid.UUID       `json:"forecast_id"`
	CycleID          uuid.UUID       `json:"cycle_id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	SubmitterID      uuid.UUID       `json:"submitter_id"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	ForecastQuantity decimal.Decimal `json:"forecast_quantity"`
	ActualQuantity   decimal.Decimal `json:"actual_quantity"`
	HasActual        bool            `json:"has_actual"`
}

// SubmitterStatusCounts groups one submitter's forecasts in a cycle by status
type SubmitterStatusCounts struct {
	SubmitterID    uuid.UUID `json:"submitter_id"`
	DraftCount     int       `json:"draft_count"`
	SubmittedCount int       `json:"submitted_count"`
	ApprovedCount  int       `json:"approved_count"`
	RejectedCount  int       `json:"rejected_count"`
}

// Total returns the submitter's overall forecast count
func (c SubmitterStatusCounts) Total() int {
	return c.DraftCount + c.SubmittedCount + c.ApprovedCount + c.RejectedCount
}

// SubmittedOrApproved returns the count contributing to the submission rate
func (c SubmitterStatusCounts) SubmittedOrApproved() int {
	return c.SubmittedCount + c.ApprovedCount
}

// ForecastReportingRepository defines the forecast-side read queries backing
// the report functions
type ForecastReportingRepository interface {
	// GetForecastActualLines returns the non-future lines of submitted and
	// approved forecasts joined against actual sales, chronologically
	// ordered per forecast
	GetForecastActualLines(ctx context.Context, filter Filter) ([]ForecastActualLine, error)

	// GetSubmitterStatusCounts groups a cycle's forecasts by submitter and
	// status
	GetSubmitterStatusCounts(ctx context.Context, cycleID uuid.UUID) ([]SubmitterStatusCounts, error)
}
