package planning

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/shared"
)

// ==================== Cycle DTOs ====================

// CreateCycleRequest represents a request to create a planning cycle
// An empty name defaults to "S&OP <anchor month>"
type CreateCycleRequest struct {
	Name        string     `json:"name" validate:"omitempty,max=100"`
	AnchorMonth string     `json:"anchor_month" validate:"required"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateCycleDeadlineRequest represents a request to change the submission deadline
type UpdateCycleDeadlineRequest struct {
	Deadline *time.Time `json:"deadline"`
}

// CycleListFilter represents filter options for cycle list
type CycleListFilter struct {
	Status   *string `json:"status" validate:"omitempty,oneof=DRAFT OPEN CLOSED"`
	Search   string  `json:"search"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	OrderBy  string  `json:"order_by"`
	OrderDir string  `json:"order_dir" validate:"omitempty,oneof=asc desc"`
}

// CycleResponse represents a planning cycle in API responses
type CycleResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Status             string          `json:"status"`
	AnchorMonth        string          `json:"anchor_month"`
	WindowStart        string          `json:"window_start"`
	WindowEnd          string          `json:"window_end"`
	Deadline           *time.Time      `json:"deadline,omitempty"`
	OpenedAt           *time.Time      `json:"opened_at,omitempty"`
	ClosedAt           *time.Time      `json:"closed_at,omitempty"`
	TotalForecasts     int             `json:"total_forecasts"`
	SubmittedForecasts int             `json:"submitted_forecasts"`
	TotalReps          int             `json:"total_reps"`
	SubmittedReps      int             `json:"submitted_reps"`
	CompletionPct      decimal.Decimal `json:"completion_pct"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// WindowMonthResponse represents one month of a cycle's planning window
type WindowMonthResponse struct {
	Month   string `json:"month"`
	Segment string `json:"segment"`
}

// SubmitterProgressResponse represents one submitter's completion inside a cycle
type SubmitterProgressResponse struct {
	SubmitterID uuid.UUID `json:"submitter_id"`
	Total       int       `json:"total"`
	Submitted   int       `json:"submitted"`
	Complete    bool      `json:"complete"`
}

// ==================== Forecast DTOs ====================

// ForecastLineInput carries one month's quantity; months absent from the
// request default to quantity zero
type ForecastLineInput struct {
	Month    string          `json:"month" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CreateForecastRequest represents a request to create a forecast
type CreateForecastRequest struct {
	CycleID           uuid.UUID           `json:"cycle_id" validate:"required"`
	CustomerID        uuid.UUID           `json:"customer_id" validate:"required"`
	ProductID         uuid.UUID           `json:"product_id" validate:"required"`
	SubmitterID       uuid.UUID           `json:"submitter_id" validate:"required"`
	UseCustomerPrice  bool                `json:"use_customer_price"`
	OverridePrice     *decimal.Decimal    `json:"override_price"`
	Lines             []ForecastLineInput `json:"lines" validate:"omitempty,dive"`
	PreviousVersionID *uuid.UUID          `json:"previous_version_id"`
}

// UpdateForecastRequest represents a request to update a draft forecast
// Nil fields keep their current values; lines are fully replaced when present
type UpdateForecastRequest struct {
	ActorID          uuid.UUID           `json:"actor_id" validate:"required"`
	UseCustomerPrice *bool               `json:"use_customer_price"`
	OverridePrice    *decimal.Decimal    `json:"override_price"`
	Lines            []ForecastLineInput `json:"lines" validate:"omitempty,dive"`
}

// ReviewForecastRequest represents an approve or reject action on a
// submitted forecast
type ReviewForecastRequest struct {
	ReviewerID uuid.UUID `json:"reviewer_id" validate:"required"`
	ActorRole  string    `json:"actor_role" validate:"required"`
	Comment    string    `json:"comment"`
}

// ForecastListFilter represents filter options for forecast list
type ForecastListFilter struct {
	CycleID     *uuid.UUID `json:"cycle_id"`
	CustomerID  *uuid.UUID `json:"customer_id"`
	ProductID   *uuid.UUID `json:"product_id"`
	SubmitterID *uuid.UUID `json:"submitter_id"`
	Status      *string    `json:"status" validate:"omitempty,oneof=DRAFT SUBMITTED APPROVED REJECTED"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
	OrderBy     string     `json:"order_by"`
	OrderDir    string     `json:"order_dir" validate:"omitempty,oneof=asc desc"`
}

// ForecastLineResponse represents one forecast month in API responses
type ForecastLineResponse struct {
	Month     string          `json:"month"`
	Segment   string          `json:"segment"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// ForecastResponse represents a forecast in API responses
type ForecastResponse struct {
	ID                uuid.UUID              `json:"id"`
	CycleID           uuid.UUID              `json:"cycle_id"`
	CustomerID        uuid.UUID              `json:"customer_id"`
	ProductID         uuid.UUID              `json:"product_id"`
	SubmitterID       uuid.UUID              `json:"submitter_id"`
	Status            string                 `json:"status"`
	UseCustomerPrice  bool                   `json:"use_customer_price"`
	OverridePrice     *decimal.Decimal       `json:"override_price,omitempty"`
	TotalQuantity     decimal.Decimal        `json:"total_quantity"`
	TotalRevenue      decimal.Decimal        `json:"total_revenue"`
	SubmittedAt       *time.Time             `json:"submitted_at,omitempty"`
	ReviewedAt        *time.Time             `json:"reviewed_at,omitempty"`
	ReviewerID        *uuid.UUID             `json:"reviewer_id,omitempty"`
	ReviewComment     string                 `json:"review_comment,omitempty"`
	PreviousVersionID *uuid.UUID             `json:"previous_version_id,omitempty"`
	Lines             []ForecastLineResponse `json:"lines"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Version           int                    `json:"version"`
}

// ==================== Bulk Upsert DTOs ====================

// BulkForecastItem represents one product's forecast inside a bulk request
type BulkForecastItem struct {
	ProductID        uuid.UUID           `json:"product_id" validate:"required"`
	UseCustomerPrice bool                `json:"use_customer_price"`
	OverridePrice    *decimal.Decimal    `json:"override_price"`
	Lines            []ForecastLineInput `json:"lines" validate:"omitempty,dive"`
}

// BulkUpsertRequest represents a request to create or update one customer's
// forecasts for many products in one call
type BulkUpsertRequest struct {
	CycleID     uuid.UUID          `json:"cycle_id" validate:"required"`
	CustomerID  uuid.UUID          `json:"customer_id" validate:"required"`
	SubmitterID uuid.UUID          `json:"submitter_id" validate:"required"`
	Items       []BulkForecastItem `json:"items" validate:"required,min=1,max=500,dive"`
}

// BulkItemResult represents one successfully upserted item
type BulkItemResult struct {
	Index      int       `json:"index"`
	ProductID  uuid.UUID `json:"product_id"`
	ForecastID uuid.UUID `json:"forecast_id"`
	Created    bool      `json:"created"`
}

// BulkItemError represents one failed item; a failed item never aborts the batch
type BulkItemError struct {
	Index     int       `json:"index"`
	ProductID uuid.UUID `json:"product_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

// BulkUpsertResponse summarizes a bulk upsert outcome
type BulkUpsertResponse struct {
	CreatedCount int              `json:"created_count"`
	UpdatedCount int              `json:"updated_count"`
	FailedCount  int              `json:"failed_count"`
	Results      []BulkItemResult `json:"results"`
	Errors       []BulkItemError  `json:"errors"`
}

// ==================== Converters ====================

// ToCycleResponse converts a cycle aggregate to its response representation
func ToCycleResponse(cycle *planning.Cycle) CycleResponse {
	return CycleResponse{
		ID:                 cycle.ID,
		Name:               cycle.Name,
		Status:             cycle.Status.String(),
		AnchorMonth:        cycle.AnchorMonth.String(),
		WindowStart:        fmt.Sprintf("%04d-%02d", cycle.StartYear, cycle.StartMonth),
		WindowEnd:          fmt.Sprintf("%04d-%02d", cycle.EndYear, cycle.EndMonth),
		Deadline:           cycle.Deadline,
		OpenedAt:           cycle.OpenedAt,
		ClosedAt:           cycle.ClosedAt,
		TotalForecasts:     cycle.TotalForecasts,
		SubmittedForecasts: cycle.SubmittedForecasts,
		TotalReps:          cycle.TotalReps,
		SubmittedReps:      cycle.SubmittedReps,
		CompletionPct:      cycle.CompletionPct,
		CreatedAt:          cycle.CreatedAt,
		UpdatedAt:          cycle.UpdatedAt,
		Version:            cycle.Version,
	}
}

// ToWindowMonthResponses converts a cycle's window months
func ToWindowMonthResponses(months []planning.WindowMonth) []WindowMonthResponse {
	responses := make([]WindowMonthResponse, len(months))
	for i, wm := range months {
		responses[i] = WindowMonthResponse{
			Month:   wm.Month.String(),
			Segment: string(wm.Segment),
		}
	}
	return responses
}

// ToForecastResponse converts a forecast aggregate to its response representation
func ToForecastResponse(forecast *planning.Forecast) ForecastResponse {
	lines := make([]ForecastLineResponse, len(forecast.Lines))
	for i, line := range forecast.Lines {
		lines[i] = ForecastLineResponse{
			Month:     line.YearMonth().String(),
			Segment:   string(line.Segment),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Revenue:   line.Revenue,
		}
	}
	return ForecastResponse{
		ID:                forecast.ID,
		CycleID:           forecast.CycleID,
		CustomerID:        forecast.CustomerID,
		ProductID:         forecast.ProductID,
		SubmitterID:       forecast.SubmitterID,
		Status:            forecast.Status.String(),
		UseCustomerPrice:  forecast.UseCustomerPrice,
		OverridePrice:     forecast.OverridePrice,
		TotalQuantity:     forecast.TotalQuantity,
		TotalRevenue:      forecast.TotalRevenue,
		SubmittedAt:       forecast.SubmittedAt,
		ReviewedAt:        forecast.ReviewedAt,
		ReviewerID:        forecast.ReviewerID,
		ReviewComment:     forecast.ReviewComment,
		PreviousVersionID: forecast.PreviousVersionID,
		Lines:             lines,
		CreatedAt:         forecast.CreatedAt,
		UpdatedAt:         forecast.UpdatedAt,
		Version:           forecast.Version,
	}
}

// asValidationError converts a validator failure into the domain error shape
func asValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return shared.NewValidationError("INVALID_REQUEST",
			fmt.Sprintf("Field %s failed validation rule %q", first.Field(), first.Tag()))
	}
	return shared.NewValidationError("INVALID_REQUEST", err.Error())
}

// domainErrorCode extracts the machine-readable code for per-item reporting
func domainErrorCode(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "INTERNAL"
}
