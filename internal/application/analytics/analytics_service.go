package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/shared"
)

// Result-set caps per report. Rankings inside the summary and dashboard
// stay small; the performance and profit reports page nothing and cap at 50.
const (
	TrendPointLimit = 24
	SummaryTopN     = 10
	DashboardTopN   = 5
	PerformanceTopN = 50
	GrossProfitTopN = 50
)

// AnalyticsService computes the report payloads from the reporting read
// models. Every report takes the uniform filter; reports scoped to a cycle
// reject filters without one.
type AnalyticsService struct {
	sales     analytics.SalesReportingRepository
	forecasts analytics.ForecastReportingRepository
	cycles    planning.CycleRepository
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(
	sales analytics.SalesReportingRepository,
	forecasts analytics.ForecastReportingRepository,
	cycles planning.CycleRepository,
) *AnalyticsService {
	return &AnalyticsService{
		sales:     sales,
		forecasts: forecasts,
		cycles:    cycles,
	}
}

// Generate computes the payload for a report type as canonical JSON.
// Both the synchronous path and the background worker funnel through here.
func (s *AnalyticsService) Generate(ctx context.Context, reportType analytics.ReportType, filter analytics.Filter) ([]byte, error) {
	var payload any
	var err error

	switch reportType {
	case analytics.ReportTypeSalesSummary:
		payload, err = s.GetSalesSummary(ctx, filter)
	case analytics.ReportTypeForecastVsActual:
		payload, err = s.GetForecastVsActual(ctx, filter)
	case analytics.ReportTypeMonthlyDashboard:
		payload, err = s.GetMonthlyDashboard(ctx, filter)
	case analytics.ReportTypeCustomerPerformance:
		payload, err = s.GetCustomerPerformance(ctx, filter)
	case analytics.ReportTypeProductPerformance:
		payload, err = s.GetProductPerformance(ctx, filter)
	case analytics.ReportTypeCycleSubmission:
		payload, err = s.GetCycleSubmissionStatus(ctx, filter)
	case analytics.ReportTypeGrossProfit:
		payload, err = s.GetGrossProfit(ctx, filter)
	case analytics.ReportTypeForecastAccuracy:
		payload, err = s.GetForecastAccuracy(ctx, filter)
	default:
		return nil, shared.NewValidationError("INVALID_REPORT_TYPE",
			fmt.Sprintf("Unknown report type %q", string(reportType)))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// ===================== Sales Summary =====================

// MonthlyTrendPointResponse is one month of the sales trend series
type MonthlyTrendPointResponse struct {
	Month            string  `json:"month"`
	Revenue          float64 `json:"revenue"`
	Quantity         float64 `json:"quantity"`
	TransactionCount int64   `json:"transaction_count"`
}

// CustomerRankResponse is one ranked customer aggregate
type CustomerRankResponse struct {
	Rank             int     `json:"rank"`
	CustomerID       string  `json:"customer_id"`
	Revenue          float64 `json:"revenue"`
	Quantity         float64 `json:"quantity"`
	TransactionCount int64   `json:"transaction_count"`
}

// ProductRankResponse is one ranked product aggregate
type ProductRankResponse struct {
	Rank             int     `json:"rank"`
	ProductID        string  `json:"product_id"`
	Quantity         float64 `json:"quantity"`
	Revenue          float64 `json:"revenue"`
	TransactionCount int64   `json:"transaction_count"`
}

// SalesSummaryResponse represents the sales summary report payload
type SalesSummaryResponse struct {
	TotalRevenue           float64                     `json:"total_revenue"`
	TotalQuantity          float64                     `json:"total_quantity"`
	TransactionCount       int64                       `json:"transaction_count"`
	AvgTransactionValue    float64                     `json:"avg_transaction_value"`
	AvgTransactionQuantity float64                     `json:"avg_transaction_quantity"`
	MonthlyTrend           []MonthlyTrendPointResponse `json:"monthly_trend"`
	TopCustomers           []CustomerRankResponse      `json:"top_customers"`
	TopProducts            []ProductRankResponse       `json:"top_products"`
}

// GetSalesSummary returns period totals, the monthly trend and the top
// customer and product rankings for the filtered sales records
func (s *AnalyticsService) GetSalesSummary(ctx context.Context, filter analytics.Filter) (*SalesSummaryResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	totals, err := s.sales.GetSalesTotals(ctx, filter)
	if err != nil {
		return nil, err
	}
	trend, err := s.sales.GetMonthlyTrend(ctx, filter, TrendPointLimit)
	if err != nil {
		return nil, err
	}
	topCustomers, err := s.sales.GetTopCustomersByRevenue(ctx, filter, SummaryTopN)
	if err != nil {
		return nil, err
	}
	topProducts, err := s.sales.GetTopProductsByQuantity(ctx, filter, SummaryTopN)
	if err != nil {
		return nil, err
	}

	txCount := decimal.NewFromInt(totals.TransactionCount)

	return &SalesSummaryResponse{
		TotalRevenue:           round2(totals.TotalRevenue),
		TotalQuantity:          round2(totals.TotalQuantity),
		TransactionCount:       totals.TransactionCount,
		AvgTransactionValue:    round2(safeDiv(totals.TotalRevenue, txCount)),
		AvgTransactionQuantity: round2(safeDiv(totals.TotalQuantity, txCount)),
		MonthlyTrend:           toTrendResponses(trend),
		TopCustomers:           toCustomerRankResponses(topCustomers),
		TopProducts:            toProductRankResponses(topProducts),
	}, nil
}

// ===================== Forecast vs Actual =====================

// ForecastVsActualLineResponse is one month of a forecast compared with
// the recorded sales of the same customer, product and month
type ForecastVsActualLineResponse struct {
	Month            string  `json:"month"`
	ForecastQuantity float64 `json:"forecast_quantity"`
	ActualQuantity   float64 `json:"actual_quantity"`
	VariancePct      float64 `json:"variance_pct"`
	Band             string  `json:"band"`
}

// ForecastVsActualRowResponse is one forecast with its compared months
type ForecastVsActualRowResponse struct {
	ForecastID    string                         `json:"forecast_id"`
	CustomerID    string                         `json:"customer_id"`
	ProductID     string                         `json:"product_id"`
	SubmitterID   string                         `json:"submitter_id"`
	Lines         []ForecastVsActualLineResponse `json:"lines"`
	TotalForecast float64                        `json:"total_forecast"`
	TotalActual   float64                        `json:"total_actual"`
	VariancePct   float64                        `json:"variance_pct"`
	Band          string                         `json:"band"`
}

// ForecastVsActualResponse represents the forecast-vs-actual report payload.
// AccuratePct is the share of compared months classified accurate.
type ForecastVsActualResponse struct {
	CycleID        string                        `json:"cycle_id"`
	Rows           []ForecastVsActualRowResponse `json:"rows"`
	TotalForecast  float64                       `json:"total_forecast"`
	TotalActual    float64                       `json:"total_actual"`
	VariancePct    float64                       `json:"variance_pct"`
	Band           string                        `json:"band"`
	ComparedMonths int                           `json:"compared_months"`
	AccurateCount  int                           `json:"accurate_count"`
	AccuratePct    float64                       `json:"accurate_pct"`
}

// GetForecastVsActual compares the non-future months of a cycle's submitted
// and approved forecasts against actual sales. Months without a sales
// record compare against zero.
func (s *AnalyticsService) GetForecastVsActual(ctx context.Context, filter analytics.Filter) (*ForecastVsActualResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.CycleID == nil {
		return nil, shared.NewValidationError("MISSING_CYCLE_ID",
			"Forecast vs actual requires a cycle filter")
	}

	lines, err := s.forecasts.GetForecastActualLines(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([]ForecastVsActualRowResponse, 0)
	rowIndex := make(map[uuid.UUID]int)
	rowForecast := make([]decimal.Decimal, 0)
	rowActual := make([]decimal.Decimal, 0)
	totalForecast, totalActual := decimal.Zero, decimal.Zero
	accurateMonths := 0

	for _, line := range lines {
		i, seen := rowIndex[line.ForecastID]
		if !seen {
			rows = append(rows, ForecastVsActualRowResponse{
				ForecastID:  line.ForecastID.String(),
				CustomerID:  line.CustomerID.String(),
				ProductID:   line.ProductID.String(),
				SubmitterID: line.SubmitterID.String(),
			})
			rowForecast = append(rowForecast, decimal.Zero)
			rowActual = append(rowActual, decimal.Zero)
			i = len(rows) - 1
			rowIndex[line.ForecastID] = i
		}

		variancePct, band := analytics.ClassifyVariance(line.ForecastQuantity, line.ActualQuantity)
		if band == analytics.VarianceAccurate {
			accurateMonths++
		}
		rows[i].Lines = append(rows[i].Lines, ForecastVsActualLineResponse{
			Month:            monthKey(line.Year, line.Month),
			ForecastQuantity: round2(line.ForecastQuantity),
			ActualQuantity:   round2(line.ActualQuantity),
			VariancePct:      round2(variancePct),
			Band:             string(band),
		})
		rowForecast[i] = rowForecast[i].Add(line.ForecastQuantity)
		rowActual[i] = rowActual[i].Add(line.ActualQuantity)
		totalForecast = totalForecast.Add(line.ForecastQuantity)
		totalActual = totalActual.Add(line.ActualQuantity)
	}

	for i := range rows {
		variancePct, band := analytics.ClassifyVariance(rowForecast[i], rowActual[i])
		rows[i].TotalForecast = round2(rowForecast[i])
		rows[i].TotalActual = round2(rowActual[i])
		rows[i].VariancePct = round2(variancePct)
		rows[i].Band = string(band)
	}

	variancePct, band := analytics.ClassifyVariance(totalForecast, totalActual)
	accuratePct := decimal.Zero
	if len(lines) > 0 {
		accuratePct = decimal.NewFromInt(int64(accurateMonths)).
			Div(decimal.NewFromInt(int64(len(lines)))).
			Mul(decimal.NewFromInt(100))
	}
	return &ForecastVsActualResponse{
		CycleID:        filter.CycleID.String(),
		Rows:           rows,
		TotalForecast:  round2(totalForecast),
		TotalActual:    round2(totalActual),
		VariancePct:    round2(variancePct),
		Band:           string(band),
		ComparedMonths: len(lines),
		AccurateCount:  accurateMonths,
		AccuratePct:    round2(accuratePct),
	}, nil
}

// ===================== Monthly Dashboard =====================

// CycleProgressResponse summarizes the open cycle's submission progress
// from its maintained counters
type CycleProgressResponse struct {
	CycleID            string     `json:"cycle_id"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	TotalForecasts     int        `json:"total_forecasts"`
	SubmittedForecasts int        `json:"submitted_forecasts"`
	TotalReps          int        `json:"total_reps"`
	SubmittedReps      int        `json:"submitted_reps"`
	CompletionPct      float64    `json:"completion_pct"`
}

// MonthlyDashboardResponse represents the monthly dashboard payload
type MonthlyDashboardResponse struct {
	Month                 string                 `json:"month"`
	MonthRevenue          float64                `json:"month_revenue"`
	MonthQuantity         float64                `json:"month_quantity"`
	MonthTransactionCount int64                  `json:"month_transaction_count"`
	YTDRevenue            float64                `json:"ytd_revenue"`
	YTDQuantity           float64                `json:"ytd_quantity"`
	YTDTransactionCount   int64                  `json:"ytd_transaction_count"`
	TopCustomers          []CustomerRankResponse `json:"top_customers"`
	TopProducts           []ProductRankResponse  `json:"top_products"`
	OpenCycle             *CycleProgressResponse `json:"open_cycle,omitempty"`
}

// GetMonthlyDashboard returns the target month's sales totals, the
// year-to-date totals, the month's top-5 rankings and the open cycle's
// progress. The target month comes from the filter; without one the
// current calendar month is used, and a year-only filter targets December
// of that year.
func (s *AnalyticsService) GetMonthlyDashboard(ctx context.Context, filter analytics.Filter) (*MonthlyDashboardResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if filter.Year != nil {
		year = *filter.Year
		month = int(time.December)
		if filter.Month != nil {
			month = *filter.Month
		}
	}

	monthFilter := analytics.Filter{
		CustomerID: filter.CustomerID,
		ProductID:  filter.ProductID,
		Year:       &year,
		Month:      &month,
	}
	ytdFrom := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	ytdTo := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	ytdFilter := analytics.Filter{
		CustomerID: filter.CustomerID,
		ProductID:  filter.ProductID,
		DateFrom:   &ytdFrom,
		DateTo:     &ytdTo,
	}

	monthTotals, err := s.sales.GetSalesTotals(ctx, monthFilter)
	if err != nil {
		return nil, err
	}
	ytdTotals, err := s.sales.GetSalesTotals(ctx, ytdFilter)
	if err != nil {
		return nil, err
	}
	topCustomers, err := s.sales.GetTopCustomersByRevenue(ctx, monthFilter, DashboardTopN)
	if err != nil {
		return nil, err
	}
	topProducts, err := s.sales.GetTopProductsByQuantity(ctx, monthFilter, DashboardTopN)
	if err != nil {
		return nil, err
	}

	response := &MonthlyDashboardResponse{
		Month:                 monthKey(year, month),
		MonthRevenue:          round2(monthTotals.TotalRevenue),
		MonthQuantity:         round2(monthTotals.TotalQuantity),
		MonthTransactionCount: monthTotals.TransactionCount,
		YTDRevenue:            round2(ytdTotals.TotalRevenue),
		YTDQuantity:           round2(ytdTotals.TotalQuantity),
		YTDTransactionCount:   ytdTotals.TransactionCount,
		TopCustomers:          toCustomerRankResponses(topCustomers),
		TopProducts:           toProductRankResponses(topProducts),
	}

	openCycle, err := s.cycles.FindOpen(ctx)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if openCycle != nil {
		response.OpenCycle = &CycleProgressResponse{
			CycleID:            openCycle.ID.String(),
			Name:               openCycle.Name,
			Status:             openCycle.Status.String(),
			Deadline:           openCycle.Deadline,
			TotalForecasts:     openCycle.TotalForecasts,
			SubmittedForecasts: openCycle.SubmittedForecasts,
			TotalReps:          openCycle.TotalReps,
			SubmittedReps:      openCycle.SubmittedReps,
			CompletionPct:      round2(openCycle.CompletionPct),
		}
	}

	return response, nil
}

// ===================== Customer Performance =====================

// CustomerPerformanceRowResponse is one customer's performance metrics
type CustomerPerformanceRowResponse struct {
	Rank                int     `json:"rank"`
	CustomerID          string  `json:"customer_id"`
	Revenue             float64 `json:"revenue"`
	Quantity            float64 `json:"quantity"`
	TransactionCount    int64   `json:"transaction_count"`
	ProductCount        int64   `json:"product_count"`
	AvgTransactionValue float64 `json:"avg_transaction_value"`
	RevenueSharePct     float64 `json:"revenue_share_pct"`
}

// CustomerPerformanceResponse represents the customer performance payload
type CustomerPerformanceResponse struct {
	TotalRevenue float64                          `json:"total_revenue"`
	Rows         []CustomerPerformanceRowResponse `json:"rows"`
}

// GetCustomerPerformance returns the top customers by revenue with their
// average transaction value, product diversity and share of the filtered
// total revenue
func (s *AnalyticsService) GetCustomerPerformance(ctx context.Context, filter analytics.Filter) (*CustomerPerformanceResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	totals, err := s.sales.GetSalesTotals(ctx, filter)
	if err != nil {
		return nil, err
	}
	performance, err := s.sales.GetCustomerPerformance(ctx, filter, PerformanceTopN)
	if err != nil {
		return nil, err
	}

	rows := make([]CustomerPerformanceRowResponse, len(performance))
	for i, row := range performance {
		rows[i] = CustomerPerformanceRowResponse{
			Rank:                i + 1,
			CustomerID:          row.CustomerID.String(),
			Revenue:             round2(row.Revenue),
			Quantity:            round2(row.Quantity),
			TransactionCount:    row.TransactionCount,
			ProductCount:        row.ProductCount,
			AvgTransactionValue: round2(safeDiv(row.Revenue, decimal.NewFromInt(row.TransactionCount))),
			RevenueSharePct:     round2(sharePct(row.Revenue, totals.TotalRevenue)),
		}
	}

	return &CustomerPerformanceResponse{
		TotalRevenue: round2(totals.TotalRevenue),
		Rows:         rows,
	}, nil
}

// ===================== Product Performance =====================

// ProductPerformanceRowResponse is one product's performance metrics
type ProductPerformanceRowResponse struct {
	Rank             int     `json:"rank"`
	ProductID        string  `json:"product_id"`
	Revenue          float64 `json:"revenue"`
	Quantity         float64 `json:"quantity"`
	TransactionCount int64   `json:"transaction_count"`
	CustomerCount    int64   `json:"customer_count"`
	AvgUnitPrice     float64 `json:"avg_unit_price"`
	RevenueSharePct  float64 `json:"revenue_share_pct"`
}

// ProductPerformanceResponse represents the product performance payload
type ProductPerformanceResponse struct {
	TotalRevenue float64                         `json:"total_revenue"`
	Rows         []ProductPerformanceRowResponse `json:"rows"`
}

// GetProductPerformance returns the top products by revenue with their
// realized unit price, customer diversity and share of the filtered total
// revenue
func (s *AnalyticsService) GetProductPerformance(ctx context.Context, filter analytics.Filter) (*ProductPerformanceResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	totals, err := s.sales.GetSalesTotals(ctx, filter)
	if err != nil {
		return nil, err
	}
	performance, err := s.sales.GetProductPerformance(ctx, filter, PerformanceTopN)
	if err != nil {
		return nil, err
	}

	rows := make([]ProductPerformanceRowResponse, len(performance))
	for i, row := range performance {
		rows[i] = ProductPerformanceRowResponse{
			Rank:             i + 1,
			ProductID:        row.ProductID.String(),
			Revenue:          round2(row.Revenue),
			Quantity:         round2(row.Quantity),
			TransactionCount: row.TransactionCount,
			CustomerCount:    row.CustomerCount,
			AvgUnitPrice:     round2(safeDiv(row.Revenue, row.Quantity)),
			RevenueSharePct:  round2(sharePct(row.Revenue, totals.TotalRevenue)),
		}
	}

	return &ProductPerformanceResponse{
		TotalRevenue: round2(totals.TotalRevenue),
		Rows:         rows,
	}, nil
}

// ===================== Cycle Submission Status =====================

// SubmitterStatusResponse groups one submitter's forecasts by status.
// The submission rate counts submitted and approved forecasts against
// every forecast of the submitter, rejected ones included.
type SubmitterStatusResponse struct {
	SubmitterID       string  `json:"submitter_id"`
	DraftCount        int     `json:"draft_count"`
	SubmittedCount    int     `json:"submitted_count"`
	ApprovedCount     int     `json:"approved_count"`
	RejectedCount     int     `json:"rejected_count"`
	TotalCount        int     `json:"total_count"`
	SubmissionRatePct float64 `json:"submission_rate_pct"`
}

// CycleSubmissionStatusResponse represents the cycle submission payload.
// TotalForecasts follows the cycle statistics convention and excludes
// rejected forecasts, so it can be smaller than the sum of the
// per-submitter TotalCount values, which include them.
type CycleSubmissionStatusResponse struct {
	CycleID            string                    `json:"cycle_id"`
	CycleName          string                    `json:"cycle_name"`
	CycleStatus        string                    `json:"cycle_status"`
	Deadline           *time.Time                `json:"deadline,omitempty"`
	TotalForecasts     int                       `json:"total_forecasts"`
	SubmittedForecasts int                       `json:"submitted_forecasts"`
	TotalReps          int                       `json:"total_reps"`
	SubmittedReps      int                       `json:"submitted_reps"`
	CompletionPct      float64                   `json:"completion_pct"`
	Submitters         []SubmitterStatusResponse `json:"submitters"`
}

// GetCycleSubmissionStatus returns a cycle's per-submitter status
// breakdown with completion rates computed fresh from the forecasts
func (s *AnalyticsService) GetCycleSubmissionStatus(ctx context.Context, filter analytics.Filter) (*CycleSubmissionStatusResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.CycleID == nil {
		return nil, shared.NewValidationError("MISSING_CYCLE_ID",
			"Cycle submission status requires a cycle filter")
	}

	cycle, err := s.cycles.FindByID(ctx, *filter.CycleID)
	if err != nil {
		return nil, err
	}
	counts, err := s.forecasts.GetSubmitterStatusCounts(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}

	stats := planning.CycleStatistics{}
	submitters := make([]SubmitterStatusResponse, len(counts))
	for i, c := range counts {
		rate := decimal.Zero
		if c.Total() > 0 {
			rate = decimal.NewFromInt(int64(c.SubmittedOrApproved())).
				Div(decimal.NewFromInt(int64(c.Total()))).
				Mul(decimal.NewFromInt(100))
		}
		submitters[i] = SubmitterStatusResponse{
			SubmitterID:       c.SubmitterID.String(),
			DraftCount:        c.DraftCount,
			SubmittedCount:    c.SubmittedCount,
			ApprovedCount:     c.ApprovedCount,
			RejectedCount:     c.RejectedCount,
			TotalCount:        c.Total(),
			SubmissionRatePct: round2(rate),
		}

		stats.TotalForecasts += c.Total() - c.RejectedCount
		stats.SubmittedForecasts += c.SubmittedOrApproved()
		stats.TotalReps++
		if c.SubmittedOrApproved() > 0 {
			stats.SubmittedReps++
		}
	}
	sort.Slice(submitters, func(i, j int) bool {
		return submitters[i].SubmitterID < submitters[j].SubmitterID
	})

	return &CycleSubmissionStatusResponse{
		CycleID:            cycle.ID.String(),
		CycleName:          cycle.Name,
		CycleStatus:        cycle.Status.String(),
		Deadline:           cycle.Deadline,
		TotalForecasts:     stats.TotalForecasts,
		SubmittedForecasts: stats.SubmittedForecasts,
		TotalReps:          stats.TotalReps,
		SubmittedReps:      stats.SubmittedReps,
		CompletionPct:      round2(stats.CompletionPct()),
		Submitters:         submitters,
	}, nil
}

// ===================== Gross Profit =====================

// GrossProfitRowResponse is one customer/product pair's profit metrics
type GrossProfitRowResponse struct {
	Rank       int     `json:"rank"`
	CustomerID string  `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Quantity   float64 `json:"quantity"`
	Revenue    float64 `json:"revenue"`
	Cost       float64 `json:"cost"`
	Profit     float64 `json:"profit"`
	MarginPct  float64 `json:"margin_pct"`
}

// GrossProfitResponse represents the gross profit report payload
type GrossProfitResponse struct {
	TotalRevenue float64                  `json:"total_revenue"`
	TotalCost    float64                  `json:"total_cost"`
	TotalProfit  float64                  `json:"total_profit"`
	MarginPct    float64                  `json:"margin_pct"`
	Rows         []GrossProfitRowResponse `json:"rows"`
}

// GetGrossProfit returns per customer/product pair gross profit against
// matrix costs, top pairs by profit, with overall totals and margin
func (s *AnalyticsService) GetGrossProfit(ctx context.Context, filter analytics.Filter) (*GrossProfitResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	totals, err := s.sales.GetGrossProfitTotals(ctx, filter)
	if err != nil {
		return nil, err
	}
	profitRows, err := s.sales.GetGrossProfitRows(ctx, filter, GrossProfitTopN)
	if err != nil {
		return nil, err
	}

	rows := make([]GrossProfitRowResponse, len(profitRows))
	for i, row := range profitRows {
		rows[i] = GrossProfitRowResponse{
			Rank:       i + 1,
			CustomerID: row.CustomerID.String(),
			ProductID:  row.ProductID.String(),
			Quantity:   round2(row.Quantity),
			Revenue:    round2(row.Revenue),
			Cost:       round2(row.Cost),
			Profit:     round2(row.Profit),
			MarginPct:  round2(sharePct(row.Profit, row.Revenue)),
		}
	}

	return &GrossProfitResponse{
		TotalRevenue: round2(totals.Revenue),
		TotalCost:    round2(totals.Cost),
		TotalProfit:  round2(totals.Profit),
		MarginPct:    round2(sharePct(totals.Profit, totals.Revenue)),
		Rows:         rows,
	}, nil
}

// ===================== Forecast Accuracy =====================

// SubmitterAccuracyResponse is one submitter's accuracy metrics
type SubmitterAccuracyResponse struct {
	SubmitterID    string  `json:"submitter_id"`
	MeasuredMonths int     `json:"measured_months"`
	MAPEPct        float64 `json:"mape_pct"`
	AccuracyPct    float64 `json:"accuracy_pct"`
	WithinBandPct  float64 `json:"within_band_pct"`
	AccurateCount  int     `json:"accurate_count"`
	OverCount      int     `json:"over_count"`
	UnderCount     int     `json:"under_count"`
}

// ForecastAccuracyResponse represents the forecast accuracy payload.
// Only months with a recorded sales record and a non-zero forecast
// quantity are measured.
type ForecastAccuracyResponse struct {
	MeasuredMonths int                         `json:"measured_months"`
	MAPEPct        float64                     `json:"mape_pct"`
	AccuracyPct    float64                     `json:"accuracy_pct"`
	WithinBandPct  float64                     `json:"within_band_pct"`
	AccurateCount  int                         `json:"accurate_count"`
	OverCount      int                         `json:"over_count"`
	UnderCount     int                         `json:"under_count"`
	BySubmitter    []SubmitterAccuracyResponse `json:"by_submitter"`
}

// GetForecastAccuracy computes the mean absolute percentage error and the
// variance band distribution of past forecast months, overall and per
// submitter. Months without a sales record and zero-forecast months are
// excluded from the error mean.
func (s *AnalyticsService) GetForecastAccuracy(ctx context.Context, filter analytics.Filter) (*ForecastAccuracyResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	lines, err := s.forecasts.GetForecastActualLines(ctx, filter)
	if err != nil {
		return nil, err
	}

	overall := &accuracyAccumulator{}
	bySubmitter := make(map[uuid.UUID]*accuracyAccumulator)
	for _, line := range lines {
		if !line.HasActual || line.ForecastQuantity.IsZero() {
			continue
		}

		acc, ok := bySubmitter[line.SubmitterID]
		if !ok {
			acc = &accuracyAccumulator{}
			bySubmitter[line.SubmitterID] = acc
		}
		overall.measure(line.ForecastQuantity, line.ActualQuantity)
		acc.measure(line.ForecastQuantity, line.ActualQuantity)
	}

	submitters := make([]SubmitterAccuracyResponse, 0, len(bySubmitter))
	for submitterID, acc := range bySubmitter {
		submitters = append(submitters, SubmitterAccuracyResponse{
			SubmitterID:    submitterID.String(),
			MeasuredMonths: acc.months,
			MAPEPct:        round2(acc.mape()),
			AccuracyPct:    round2(acc.accuracy()),
			WithinBandPct:  round2(acc.withinBand()),
			AccurateCount:  acc.accurate,
			OverCount:      acc.over,
			UnderCount:     acc.under,
		})
	}
	sort.Slice(submitters, func(i, j int) bool {
		return submitters[i].SubmitterID < submitters[j].SubmitterID
	})

	return &ForecastAccuracyResponse{
		MeasuredMonths: overall.months,
		MAPEPct:        round2(overall.mape()),
		AccuracyPct:    round2(overall.accuracy()),
		WithinBandPct:  round2(overall.withinBand()),
		AccurateCount:  overall.accurate,
		OverCount:      overall.over,
		UnderCount:     overall.under,
		BySubmitter:    submitters,
	}, nil
}

// accuracyAccumulator collects absolute percentage errors and band counts
type accuracyAccumulator struct {
	sumAPE   decimal.Decimal
	months   int
	accurate int
	over     int
	under    int
}

func (a *accuracyAccumulator) measure(forecastQty, actualQty decimal.Decimal) {
	a.sumAPE = a.sumAPE.Add(analytics.AbsolutePercentageError(forecastQty, actualQty))
	a.months++

	_, band := analytics.ClassifyVariance(forecastQty, actualQty)
	switch band {
	case analytics.VarianceAccurate:
		a.accurate++
	case analytics.VarianceOver:
		a.over++
	case analytics.VarianceUnder:
		a.under++
	}
}

func (a *accuracyAccumulator) mape() decimal.Decimal {
	if a.months == 0 {
		return decimal.Zero
	}
	return a.sumAPE.Div(decimal.NewFromInt(int64(a.months)))
}

// withinBand returns the share of measured months classified accurate
func (a *accuracyAccumulator) withinBand() decimal.Decimal {
	if a.months == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(a.accurate)).
		Div(decimal.NewFromInt(int64(a.months))).
		Mul(decimal.NewFromInt(100))
}

// accuracy is 100-MAPE floored at zero; with no measured months there is
// nothing to score and the accuracy is zero
func (a *accuracyAccumulator) accuracy() decimal.Decimal {
	if a.months == 0 {
		return decimal.Zero
	}
	acc := decimal.NewFromInt(100).Sub(a.mape())
	if acc.IsNegative() {
		return decimal.Zero
	}
	return acc
}

// ===================== Helper Functions =====================

func toTrendResponses(trend []analytics.MonthlyTrendPoint) []MonthlyTrendPointResponse {
	responses := make([]MonthlyTrendPointResponse, len(trend))
	for i, p := range trend {
		responses[i] = MonthlyTrendPointResponse{
			Month:            monthKey(p.Year, p.Month),
			Revenue:          round2(p.Revenue),
			Quantity:         round2(p.Quantity),
			TransactionCount: p.TransactionCount,
		}
	}
	return responses
}

func toCustomerRankResponses(ranks []analytics.CustomerSalesRank) []CustomerRankResponse {
	responses := make([]CustomerRankResponse, len(ranks))
	for i, r := range ranks {
		responses[i] = CustomerRankResponse{
			Rank:             i + 1,
			CustomerID:       r.CustomerID.String(),
			Revenue:          round2(r.Revenue),
			Quantity:         round2(r.Quantity),
			TransactionCount: r.TransactionCount,
		}
	}
	return responses
}

func toProductRankResponses(ranks []analytics.ProductSalesRank) []ProductRankResponse {
	responses := make([]ProductRankResponse, len(ranks))
	for i, r := range ranks {
		responses[i] = ProductRankResponse{
			Rank:             i + 1,
			ProductID:        r.ProductID.String(),
			Quantity:         round2(r.Quantity),
			Revenue:          round2(r.Revenue),
			TransactionCount: r.TransactionCount,
		}
	}
	return responses
}

// monthKey renders a year and month as YYYY-MM
func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// safeDiv divides with a zero result for a zero divisor
func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// sharePct returns part/whole*100, zero when the whole is zero
func sharePct(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// round2 rounds to 2 decimal places before converting. Every monetary,
// quantity and percentage figure leaves the service at that precision.
func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
