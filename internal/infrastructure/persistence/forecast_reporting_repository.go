package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/planning"
	"gorm.io/gorm"
)

// GormForecastReportingRepository implements ForecastReportingRepository using GORM
type GormForecastReportingRepository struct {
	db *gorm.DB
}

// NewGormForecastReportingRepository creates a new GormForecastReportingRepository
func NewGormForecastReportingRepository(db *gorm.DB) *GormForecastReportingRepository {
	return &GormForecastReportingRepository{db: db}
}

// GetForecastActualLines returns the non-future lines of submitted and
// approved forecasts joined against actual sales, chronologically ordered per
// forecast. A line without a matching sales record reports zero actuals with
// has_actual false.
func (r *GormForecastReportingRepository) GetForecastActualLines(ctx context.Context, filter analytics.Filter) ([]analytics.ForecastActualLine, error) {
	query := r.db.WithContext(ctx).Table("forecast_lines fl").
		Select(`
			f.id as forecast_id,
			f.cycle_id,
			f.customer_id,
			f.product_id,
			f.submitter_id,
			fl.year,
			fl.month,
			fl.quantity as forecast_quantity,
			COALESCE(sr.quantity, 0) as actual_quantity,
			sr.id IS NOT NULL as has_actual
		`).
		Joins("JOIN forecasts f ON f.id = fl.forecast_id").
		Joins(`LEFT JOIN sales_records sr
			ON sr.customer_id = f.customer_id AND sr.product_id = f.product_id
			AND sr.year = fl.year AND sr.month = fl.month`).
		Where("f.status IN ?",
			[]planning.ForecastStatus{planning.ForecastStatusSubmitted, planning.ForecastStatusApproved}).
		Where("fl.segment = ?", planning.SegmentHistorical)

	if filter.CycleID != nil {
		query = query.Where("f.cycle_id = ?", *filter.CycleID)
	}
	if filter.CustomerID != nil {
		query = query.Where("f.customer_id = ?", *filter.CustomerID)
	}
	if filter.ProductID != nil {
		query = query.Where("f.product_id = ?", *filter.ProductID)
	}

	from, to, err := filter.MonthBounds()
	if err != nil {
		return nil, err
	}
	if from != nil {
		query = query.Where("(fl.year * 100 + fl.month) >= ?", from.Year()*100+int(from.Month()))
	}
	if to != nil {
		query = query.Where("(fl.year * 100 + fl.month) <= ?", to.Year()*100+int(to.Month()))
	}

	var lines []analytics.ForecastActualLine
	if err := query.Order("f.id ASC, fl.year ASC, fl.month ASC").Scan(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// GetSubmitterStatusCounts groups a cycle's forecasts by submitter and status
func (r *GormForecastReportingRepository) GetSubmitterStatusCounts(ctx context.Context, cycleID uuid.UUID) ([]analytics.SubmitterStatusCounts, error) {
	var counts []analytics.SubmitterStatusCounts
	err := r.db.WithContext(ctx).Table("forecasts").
		Select(`
			submitter_id,
			COUNT(CASE WHEN status = 'DRAFT' THEN 1 END) as draft_count,
			COUNT(CASE WHEN status = 'SUBMITTED' THEN 1 END) as submitted_count,
			COUNT(CASE WHEN status = 'APPROVED' THEN 1 END) as approved_count,
			COUNT(CASE WHEN status = 'REJECTED' THEN 1 END) as rejected_count
		`).
		Where("cycle_id = ?", cycleID).
		Group("submitter_id").
		Order("submitter_id ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Ensure GormForecastReportingRepository implements analytics.ForecastReportingRepository
var _ analytics.ForecastReportingRepository = (*GormForecastReportingRepository)(nil)
