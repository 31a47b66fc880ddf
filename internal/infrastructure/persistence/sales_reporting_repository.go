package persistence

import (
	"context"

	"github.com/sop/backend/internal/domain/analytics"
	"gorm.io/gorm"
)

// GormSalesReportingRepository implements SalesReportingRepository using GORM
//
// Every query aggregates in SQL and caps its result set; raw sales rows
// never cross into the service layer.
type GormSalesReportingRepository struct {
	db *gorm.DB
}

// NewGormSalesReportingRepository creates a new GormSalesReportingRepository
func NewGormSalesReportingRepository(db *gorm.DB) *GormSalesReportingRepository {
	return &GormSalesReportingRepository{db: db}
}

// applySalesFilter narrows a sales_records query to the filter's customer,
// product and month range. Column references take a prefix ("sr." in joined
// queries, "" otherwise). Months compare as year*100+month so a range spans
// year boundaries without date arithmetic.
func applySalesFilter(query *gorm.DB, filter analytics.Filter, prefix string) (*gorm.DB, error) {
	if filter.CustomerID != nil {
		query = query.Where(prefix+"customer_id = ?", *filter.CustomerID)
	}
	if filter.ProductID != nil {
		query = query.Where(prefix+"product_id = ?", *filter.ProductID)
	}

	from, to, err := filter.MonthBounds()
	if err != nil {
		return nil, err
	}
	if from != nil {
		query = query.Where("("+prefix+"year * 100 + "+prefix+"month) >= ?", from.Year()*100+int(from.Month()))
	}
	if to != nil {
		query = query.Where("("+prefix+"year * 100 + "+prefix+"month) <= ?", to.Year()*100+int(to.Month()))
	}
	return query, nil
}

// GetSalesTotals returns the totals over matched sales records
func (r *GormSalesReportingRepository) GetSalesTotals(ctx context.Context, filter analytics.Filter) (*analytics.SalesTotals, error) {
	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			COALESCE(SUM(revenue), 0) as total_revenue,
			COALESCE(SUM(quantity), 0) as total_quantity,
			COUNT(*) as transaction_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	var totals analytics.SalesTotals
	if err := query.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

// GetMonthlyTrend returns the chronological per-month series, capped at limit points
func (r *GormSalesReportingRepository) GetMonthlyTrend(ctx context.Context, filter analytics.Filter, limit int) ([]analytics.MonthlyTrendPoint, error) {
	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			year,
			month,
			COALESCE(SUM(revenue), 0) as revenue,
			COALESCE(SUM(quantity), 0) as quantity,
			COUNT(*) as transaction_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	query = query.Group("year, month").Order("year ASC, month ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var points []analytics.MonthlyTrendPoint
	if err := query.Scan(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

// GetTopCustomersByRevenue returns the top N customers by revenue
func (r *GormSalesReportingRepository) GetTopCustomersByRevenue(ctx context.Context, filter analytics.Filter, topN int) ([]analytics.CustomerSalesRank, error) {
	if topN <= 0 {
		topN = 10
	}

	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			customer_id,
			COALESCE(SUM(revenue), 0) as revenue,
			COALESCE(SUM(quantity), 0) as quantity,
			COUNT(*) as transaction_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	var ranks []analytics.CustomerSalesRank
	if err := query.Group("customer_id").
		Order("revenue DESC").
		Limit(topN).
		Scan(&ranks).Error; err != nil {
		return nil, err
	}
	return ranks, nil
}

// GetTopProductsByQuantity returns the top N products by quantity
func (r *GormSalesReportingRepository) GetTopProductsByQuantity(ctx context.Context, filter analytics.Filter, topN int) ([]analytics.ProductSalesRank, error) {
	if topN <= 0 {
		topN = 10
	}

	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			product_id,
			COALESCE(SUM(quantity), 0) as quantity,
			COALESCE(SUM(revenue), 0) as revenue,
			COUNT(*) as transaction_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	var ranks []analytics.ProductSalesRank
	if err := query.Group("product_id").
		Order("quantity DESC").
		Limit(topN).
		Scan(&ranks).Error; err != nil {
		return nil, err
	}
	return ranks, nil
}

// GetCustomerPerformance returns per-customer aggregates, top N by revenue
func (r *GormSalesReportingRepository) GetCustomerPerformance(ctx context.Context, filter analytics.Filter, topN int) ([]analytics.CustomerPerformanceRow, error) {
	if topN <= 0 {
		topN = 10
	}

	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			customer_id,
			COALESCE(SUM(revenue), 0) as revenue,
			COALESCE(SUM(quantity), 0) as quantity,
			COUNT(*) as transaction_count,
			COUNT(DISTINCT product_id) as product_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	var rows []analytics.CustomerPerformanceRow
	if err := query.Group("customer_id").
		Order("revenue DESC").
		Limit(topN).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetProductPerformance returns per-product aggregates, top N by revenue
func (r *GormSalesReportingRepository) GetProductPerformance(ctx context.Context, filter analytics.Filter, topN int) ([]analytics.ProductPerformanceRow, error) {
	if topN <= 0 {
		topN = 10
	}

	query := r.db.WithContext(ctx).Table("sales_records").
		Select(`
			product_id,
			COALESCE(SUM(revenue), 0) as revenue,
			COALESCE(SUM(quantity), 0) as quantity,
			COUNT(*) as transaction_count,
			COUNT(DISTINCT customer_id) as customer_count
		`)
	query, err := applySalesFilter(query, filter, "")
	if err != nil {
		return nil, err
	}

	var rows []analytics.ProductPerformanceRow
	if err := query.Group("product_id").
		Order("revenue DESC").
		Limit(topN).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetGrossProfitRows returns per-pair gross profit, top N by profit. A pair
// without an active matrix entry carries zero cost.
func (r *GormSalesReportingRepository) GetGrossProfitRows(ctx context.Context, filter analytics.Filter, topN int) ([]analytics.GrossProfitRow, error) {
	if topN <= 0 {
		topN = 10
	}

	query := r.db.WithContext(ctx).Table("sales_records sr").
		Select(`
			sr.customer_id,
			sr.product_id,
			COALESCE(SUM(sr.quantity), 0) as quantity,
			COALESCE(SUM(sr.revenue), 0) as revenue,
			COALESCE(SUM(sr.quantity * COALESCE(pm.cost, 0)), 0) as cost,
			COALESCE(SUM(sr.revenue - sr.quantity * COALESCE(pm.cost, 0)), 0) as profit
		`).
		Joins(`LEFT JOIN price_matrix_entries pm
			ON pm.customer_id = sr.customer_id AND pm.product_id = sr.product_id AND pm.is_active = ?`, true)
	query, err := applySalesFilter(query, filter, "sr.")
	if err != nil {
		return nil, err
	}

	var rows []analytics.GrossProfitRow
	if err := query.Group("sr.customer_id, sr.product_id").
		Order("profit DESC").
		Limit(topN).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetGrossProfitTotals returns gross profit totals over all matched pairs
func (r *GormSalesReportingRepository) GetGrossProfitTotals(ctx context.Context, filter analytics.Filter) (*analytics.GrossProfitTotals, error) {
	query := r.db.WithContext(ctx).Table("sales_records sr").
		Select(`
			COALESCE(SUM(sr.revenue), 0) as revenue,
			COALESCE(SUM(sr.quantity * COALESCE(pm.cost, 0)), 0) as cost,
			COALESCE(SUM(sr.revenue - sr.quantity * COALESCE(pm.cost, 0)), 0) as profit
		`).
		Joins(`LEFT JOIN price_matrix_entries pm
			ON pm.customer_id = sr.customer_id AND pm.product_id = sr.product_id AND pm.is_active = ?`, true)
	query, err := applySalesFilter(query, filter, "sr.")
	if err != nil {
		return nil, err
	}

	var totals analytics.GrossProfitTotals
	if err := query.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

// Ensure GormSalesReportingRepository implements analytics.SalesReportingRepository
var _ analytics.SalesReportingRepository = (*GormSalesReportingRepository)(nil)
