package planning

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
)

// ForecastStatus represents the status of a forecast
type ForecastStatus string

const (
	ForecastStatusDraft     ForecastStatus = "DRAFT"
	ForecastStatusSubmitted ForecastStatus = "SUBMITTED"
	ForecastStatusApproved  ForecastStatus = "APPROVED"
	ForecastStatusRejected  ForecastStatus = "REJECTED"
)

// IsValid checks if the status is a valid ForecastStatus
func (s ForecastStatus) IsValid() bool {
	switch s {
	case ForecastStatusDraft, ForecastStatusSubmitted, ForecastStatusApproved, ForecastStatusRejected:
		return true
	}
	return false
}

// String returns the string representation of ForecastStatus
func (s ForecastStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s ForecastStatus) CanTransitionTo(target ForecastStatus) bool {
	switch s {
	case ForecastStatusDraft:
		return target == ForecastStatusSubmitted
	case ForecastStatusSubmitted:
		return target == ForecastStatusApproved || target == ForecastStatusRejected
	case ForecastStatusApproved, ForecastStatusRejected:
		return false // Terminal states
	}
	return false
}

// CountsTowardUniqueness reports whether a forecast in this status blocks a
// new forecast for the same (cycle, customer, product, submitter) key.
// Rejected forecasts stop counting so the submitter can start over.
func (s ForecastStatus) CountsTowardUniqueness() bool {
	return s != ForecastStatusRejected
}

// ForecastLine represents one month of a 16-month forecast
type ForecastLine struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ForecastID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Year       int             `gorm:"not null"`
	Month      int             `gorm:"not null"`
	Segment    Segment         `gorm:"type:varchar(16);not null"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Revenue    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the database table name
func (ForecastLine) TableName() string {
	return "forecast_lines"
}

// NewForecastLine creates a forecast line for one window month
// Revenue is always Quantity * UnitPrice
func NewForecastLine(forecastID uuid.UUID, month valueobject.YearMonth, segment Segment, quantity, unitPrice decimal.Decimal) (*ForecastLine, error) {
	if month.IsZero() {
		return nil, shared.NewValidationError("INVALID_LINE_MONTH", "Line month is required")
	}
	if !segment.IsValid() {
		return nil, shared.NewValidationError("INVALID_LINE_SEGMENT",
			fmt.Sprintf("Unknown window segment %q", string(segment)))
	}
	if quantity.IsNegative() {
		return nil, shared.NewValidationError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewValidationError("INVALID_PRICE", "Unit price cannot be negative")
	}

	now := time.Now()
	return &ForecastLine{
		ID:         uuid.New(),
		ForecastID: forecastID,
		Year:       month.Year(),
		Month:      int(month.Month()),
		Segment:    segment,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Revenue:    quantity.Mul(unitPrice),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// YearMonth returns the line's calendar month
func (l *ForecastLine) YearMonth() valueobject.YearMonth {
	ym, _ := valueobject.NewYearMonth(l.Year, time.Month(l.Month))
	return ym
}

// IsFutureFlagged reports whether the line counts toward the submission gate
func (l *ForecastLine) IsFutureFlagged() bool {
	return l.Segment.IsFutureFlagged()
}

// IsHistorical reports whether the line belongs to the historical segment
func (l *ForecastLine) IsHistorical() bool {
	return l.Segment == SegmentHistorical
}

// Forecast represents a 16-month demand forecast aggregate root for one
// (cycle, customer, product, submitter) key
type Forecast struct {
	shared.VersionedEntity
	CycleID           uuid.UUID        `gorm:"type:uuid;not null;index"`
	CustomerID        uuid.UUID        `gorm:"type:uuid;not null;index"`
	ProductID         uuid.UUID        `gorm:"type:uuid;not null;index"`
	SubmitterID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	Status            ForecastStatus   `gorm:"type:varchar(16);not null;index"`
	UseCustomerPrice  bool             `gorm:"not null"`
	OverridePrice     *decimal.Decimal `gorm:"type:numeric(20,4)"`
	TotalQuantity     decimal.Decimal  `gorm:"type:numeric(20,4);not null"`
	TotalRevenue      decimal.Decimal  `gorm:"type:numeric(20,4);not null"`
	SubmittedAt       *time.Time
	ReviewedAt        *time.Time
	ReviewerID        *uuid.UUID     `gorm:"type:uuid"`
	ReviewComment     string         `gorm:"type:text"`
	PreviousVersionID *uuid.UUID     `gorm:"type:uuid"`
	Lines             []ForecastLine `gorm:"foreignKey:ForecastID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name
func (Forecast) TableName() string {
	return "forecasts"
}

// NewForecast creates a new forecast in DRAFT status with no lines yet
func NewForecast(cycleID, customerID, productID, submitterID uuid.UUID, useCustomerPrice bool, overridePrice *decimal.Decimal) (*Forecast, error) {
	if cycleID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CYCLE", "Cycle ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if submitterID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_SUBMITTER", "Submitter ID cannot be empty")
	}
	if overridePrice != nil && overridePrice.IsNegative() {
		return nil, shared.NewValidationError("INVALID_PRICE", "Override price cannot be negative")
	}

	return &Forecast{
		VersionedEntity:  shared.NewVersionedEntity(),
		CycleID:          cycleID,
		CustomerID:       customerID,
		ProductID:        productID,
		SubmitterID:      submitterID,
		Status:           ForecastStatusDraft,
		UseCustomerPrice: useCustomerPrice,
		OverridePrice:    overridePrice,
		TotalQuantity:    decimal.Zero,
		TotalRevenue:     decimal.Zero,
		Lines:            make([]ForecastLine, 0, WindowTotalMonths),
	}, nil
}

// ReplaceLines swaps in a complete 16-month line set and recalculates totals
// Only allowed in DRAFT status
func (f *Forecast) ReplaceLines(lines []ForecastLine) error {
	if f.Status != ForecastStatusDraft {
		return shared.NewStateError("INVALID_STATE", "Cannot modify lines of a non-draft forecast")
	}
	if len(lines) != WindowTotalMonths {
		return shared.NewValidationError("INVALID_LINE_COUNT",
			fmt.Sprintf("Forecast requires exactly %d lines, got %d", WindowTotalMonths, len(lines)))
	}

	f.Lines = lines
	f.recalculateTotals()
	f.Touch()

	return nil
}

// SetPricing changes the pricing mode
// Only allowed in DRAFT status; callers must re-resolve prices and replace
// the lines afterwards so stored revenues never go stale
func (f *Forecast) SetPricing(useCustomerPrice bool, overridePrice *decimal.Decimal) error {
	if f.Status != ForecastStatusDraft {
		return shared.NewStateError("INVALID_STATE", "Cannot change pricing of a non-draft forecast")
	}
	if overridePrice != nil && overridePrice.IsNegative() {
		return shared.NewValidationError("INVALID_PRICE", "Override price cannot be negative")
	}

	f.UseCustomerPrice = useCustomerPrice
	f.OverridePrice = overridePrice
	f.Touch()

	return nil
}

// LinkPreviousVersion records the forecast this one supersedes.
// The link is persisted for audit purposes and never interpreted by the
// lifecycle engine.
func (f *Forecast) LinkPreviousVersion(previousID uuid.UUID) {
	if previousID == uuid.Nil {
		return
	}
	f.PreviousVersionID = &previousID
	f.Touch()
}

// recalculateTotals recalculates the quantity and revenue sums from the lines
func (f *Forecast) recalculateTotals() {
	totalQuantity := decimal.Zero
	totalRevenue := decimal.Zero
	for _, line := range f.Lines {
		totalQuantity = totalQuantity.Add(line.Quantity)
		totalRevenue = totalRevenue.Add(line.Revenue)
	}
	f.TotalQuantity = totalQuantity
	f.TotalRevenue = totalRevenue
}

// FutureMonthsWithQuantity counts the future-flagged lines carrying a
// positive quantity; the submission gate checks this count
func (f *Forecast) FutureMonthsWithQuantity() int {
	count := 0
	for _, line := range f.Lines {
		if line.IsFutureFlagged() && line.Quantity.IsPositive() {
			count++
		}
	}
	return count
}

// Submit transitions the forecast from DRAFT to SUBMITTED
// At least minMonths future-flagged lines must carry a positive quantity
func (f *Forecast) Submit(minMonths int) error {
	if !f.Status.CanTransitionTo(ForecastStatusSubmitted) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot submit forecast in %s status", f.Status))
	}

	if count := f.FutureMonthsWithQuantity(); count < minMonths {
		return shared.NewValidationError("INSUFFICIENT_FORECAST_MONTHS",
			fmt.Sprintf("Forecast has %d future months with quantity, at least %d required", count, minMonths))
	}

	now := time.Now()
	f.Status = ForecastStatusSubmitted
	f.SubmittedAt = &now
	f.UpdatedAt = now

	return nil
}

// Approve transitions the forecast from SUBMITTED to APPROVED. Irreversible.
func (f *Forecast) Approve(reviewerID uuid.UUID, comment string) error {
	if !f.Status.CanTransitionTo(ForecastStatusApproved) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot approve forecast in %s status", f.Status))
	}
	if reviewerID == uuid.Nil {
		return shared.NewValidationError("INVALID_REVIEWER", "Reviewer ID cannot be empty")
	}

	now := time.Now()
	f.Status = ForecastStatusApproved
	f.ReviewedAt = &now
	f.ReviewerID = &reviewerID
	f.ReviewComment = strings.TrimSpace(comment)
	f.UpdatedAt = now

	return nil
}

// Reject transitions the forecast from SUBMITTED to REJECTED. Irreversible.
// A rejection requires a non-empty comment for the submitter.
func (f *Forecast) Reject(reviewerID uuid.UUID, comment string) error {
	if !f.Status.CanTransitionTo(ForecastStatusRejected) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot reject forecast in %s status", f.Status))
	}
	if reviewerID == uuid.Nil {
		return shared.NewValidationError("INVALID_REVIEWER", "Reviewer ID cannot be empty")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return shared.NewValidationError("REJECT_COMMENT_REQUIRED", "Rejection requires a comment")
	}

	now := time.Now()
	f.Status = ForecastStatusRejected
	f.ReviewedAt = &now
	f.ReviewerID = &reviewerID
	f.ReviewComment = comment
	f.UpdatedAt = now

	return nil
}

// IsDraft checks if the forecast is in draft status
func (f *Forecast) IsDraft() bool {
	return f.Status == ForecastStatusDraft
}

// IsSubmitted checks if the forecast is awaiting review
func (f *Forecast) IsSubmitted() bool {
	return f.Status == ForecastStatusSubmitted
}

// CanModify checks if the forecast lines and pricing may still change
func (f *Forecast) CanModify() bool {
	return f.Status == ForecastStatusDraft
}

// CanDelete checks if the forecast may be deleted
func (f *Forecast) CanDelete() bool {
	return f.Status == ForecastStatusDraft
}

// IsOwnedBy checks whether the given actor created this forecast
func (f *Forecast) IsOwnedBy(submitterID uuid.UUID) bool {
	return f.SubmitterID == submitterID
}
