package persistence

import "strings"

// Sort expressions are interpolated into ORDER BY, so every list query
// must build its ordering through SortClause instead of handing
// user-supplied strings to gorm directly.

// SortClause builds an ORDER BY expression from user-supplied sort
// parameters. The field is checked against the aggregate's whitelist and
// replaced by the fallback when absent; the direction collapses to ASC
// or DESC.
func SortClause(field, direction string, allowed map[string]bool, fallback string) string {
	return sortField(field, allowed, fallback) + " " + sortDirection(direction)
}

// sortDirection normalizes a direction token. Anything that is not ASC,
// in any casing, sorts descending.
func sortDirection(direction string) string {
	if strings.EqualFold(strings.TrimSpace(direction), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// sortField returns the candidate when whitelisted, the fallback
// otherwise. Matching is exact and case sensitive because the whitelists
// hold column names as they appear in the schema.
func sortField(candidate string, allowed map[string]bool, fallback string) string {
	candidate = strings.TrimSpace(candidate)
	if allowed[candidate] {
		return candidate
	}
	return fallback
}

// CycleSortFields contains allowed sort fields for planning cycles
var CycleSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"name":           true,
	"status":         true,
	"anchor_month":   true,
	"deadline":       true,
	"opened_at":      true,
	"closed_at":      true,
	"completion_pct": true,
}

// ForecastSortFields contains allowed sort fields for forecasts
var ForecastSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"cycle_id":       true,
	"customer_id":    true,
	"product_id":     true,
	"submitter_id":   true,
	"status":         true,
	"total_quantity": true,
	"total_revenue":  true,
	"submitted_at":   true,
	"reviewed_at":    true,
}

// MatrixEntrySortFields contains allowed sort fields for price matrix entries
var MatrixEntrySortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"customer_id": true,
	"product_id":  true,
	"price":       true,
	"cost":        true,
	"is_active":   true,
}

// SalesRecordSortFields contains allowed sort fields for sales records
var SalesRecordSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"customer_id": true,
	"product_id":  true,
	"year":        true,
	"month":       true,
	"quantity":    true,
	"unit_price":  true,
	"revenue":     true,
}

// ReportSortFields contains allowed sort fields for cached reports
var ReportSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"report_type":  true,
	"status":       true,
	"requested_by": true,
	"started_at":   true,
	"completed_at": true,
}
