package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesTotals aggregates matched sales records
// This is a CQRS read model optimized for querying
type SalesTotals struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalQuantity    decimal.Decimal `json:"total_quantity"`
	TransactionCount int64           `json:"transaction_count"`
}

// MonthlyTrendPoint is one month of the sales trend series
type MonthlyTrendPoint struct {
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	Revenue          decimal.Decimal `json:"revenue"`
	Quantity         decimal.Decimal `json:"quantity"`
	TransactionCount int64           `json:"transaction_count"`
}

// CustomerSalesRank is one customer's sales aggregate for rankings
type CustomerSalesRank struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	Revenue          decimal.Decimal `json:"revenue"`
	Quantity         decimal.Decimal `json:"quantity"`
	TransactionCount int64           `json:"transaction_count"`
}

// ProductSalesRank is one product's sales aggregate for rankings
type ProductSalesRank struct {
	ProductID        uuid.UUID       `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	Revenue          decimal.Decimal `json:"revenue"`
	TransactionCount int64           `json:"transaction_count"`
}

// CustomerPerformanceRow is one customer's raw performance aggregate;
// ratio metrics (average order value, contribution) are derived downstream
type CustomerPerformanceRow struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	Revenue          decimal.Decimal `json:"revenue"`
	Quantity         decimal.Decimal `json:"quantity"`
	TransactionCount int64           `json:"transaction_count"`
	ProductCount     int64           `json:"product_count"`
}

// ProductPerformanceRow is one product's raw performance aggregate
type ProductPerformanceRow struct {
	ProductID        uuid.UUID       `json:"product_id"`
	Revenue          decimal.Decimal `json:"revenue"`
	Quantity         decimal.Decimal `json:"quantity"`
	TransactionCount int64           `json:"transaction_count"`
	CustomerCount    int64           `json:"customer_count"`
}

// GrossProfitRow joins one customer/product pair's sales against its matrix
// cost. A pair without a matrix entry carries zero cost.
type GrossProfitRow struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
	Cost       decimal.Decimal `json:"cost"`
	Profit     decimal.Decimal `json:"profit"`
}

// GrossProfitTotals aggregates gross profit over all matched pairs
type GrossProfitTotals struct {
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

// SalesReportingRepository defines the sales-side read queries backing the
// report functions. Implementations aggregate in SQL and keep result sets
// bounded with the supplied limits.
type SalesReportingRepository interface {
	// GetSalesTotals returns the totals over matched sales records
	GetSalesTotals(ctx context.Context, filter Filter) (*SalesTotals, error)

	// GetMonthlyTrend returns the chronological per-month series, capped at limit points
	GetMonthlyTrend(ctx context.Context, filter Filter, limit int) ([]MonthlyTrendPoint, error)

	// GetTopCustomersByRevenue returns the top N customers by revenue
	GetTopCustomersByRevenue(ctx context.Context, filter Filter, topN int) ([]CustomerSalesRank, error)

	// GetTopProductsByQuantity returns the top N products by quantity
	GetTopProductsByQuantity(ctx context.Context, filter Filter, topN int) ([]ProductSalesRank, error)

	// GetCustomerPerformance returns per-customer aggregates, top N by revenue
	GetCustomerPerformance(ctx context.Context, filter Filter, topN int) ([]CustomerPerformanceRow, error)

	// GetProductPerformance returns per-product aggregates, top N by revenue
	GetProductPerformance(ctx context.Context, filter Filter, topN int) ([]ProductPerformanceRow, error)

	// GetGrossProfitRows returns per-pair gross profit, top N by profit
	GetGrossProfitRows(ctx context.Context, filter Filter, topN int) ([]GrossProfitRow, error)

	// GetGrossProfitTotals returns gross profit totals over all matched pairs
	GetGrossProfitTotals(ctx context.Context, filter Filter) (*GrossProfitTotals, error)
}
