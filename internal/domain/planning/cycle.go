package planning

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
)

// CycleStatus represents the status of a planning cycle
type CycleStatus string

const (
	CycleStatusDraft  CycleStatus = "DRAFT"
	CycleStatusOpen   CycleStatus = "OPEN"
	CycleStatusClosed CycleStatus = "CLOSED"
)

// IsValid checks if the status is a valid CycleStatus
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleStatusDraft, CycleStatusOpen, CycleStatusClosed:
		return true
	}
	return false
}

// String returns the string representation of CycleStatus
func (s CycleStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s CycleStatus) CanTransitionTo(target CycleStatus) bool {
	switch s {
	case CycleStatusDraft:
		return target == CycleStatusOpen
	case CycleStatusOpen:
		return target == CycleStatusClosed || target == CycleStatusDraft
	case CycleStatusClosed:
		return false // Terminal state
	}
	return false
}

// Planning window shape: every cycle covers 16 consecutive months around
// its anchor month.
const (
	HistoricalMonths  = 4
	FutureMonths      = 11
	WindowTotalMonths = HistoricalMonths + 1 + FutureMonths
)

// Segment classifies a window month relative to the anchor
type Segment string

const (
	SegmentHistorical Segment = "HISTORICAL"
	SegmentCurrent    Segment = "CURRENT"
	SegmentFuture     Segment = "FUTURE"
)

// IsValid checks if the segment is a valid Segment
func (s Segment) IsValid() bool {
	switch s {
	case SegmentHistorical, SegmentCurrent, SegmentFuture:
		return true
	}
	return false
}

// IsFutureFlagged reports whether lines in this segment count toward the
// submission gate. The current month counts together with the future months.
func (s Segment) IsFutureFlagged() bool {
	return s == SegmentCurrent || s == SegmentFuture
}

// WindowMonth is one month of a cycle's planning window with its segment tag
type WindowMonth struct {
	Month   valueobject.YearMonth
	Segment Segment
}

// CycleStatistics holds the aggregate submission counters of a cycle
type CycleStatistics struct {
	TotalForecasts     int
	SubmittedForecasts int
	TotalReps          int
	SubmittedReps      int
}

// CompletionPct returns submitted/total*100 rounded to 2 decimals (0 when
// the cycle has no forecasts)
func (s CycleStatistics) CompletionPct() decimal.Decimal {
	if s.TotalForecasts == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.SubmittedForecasts)).
		Div(decimal.NewFromInt(int64(s.TotalForecasts))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// Cycle represents a planning cycle aggregate root
// It owns the DRAFT -> OPEN -> CLOSED workflow and the 16-month planning
// window derived from its anchor month
type Cycle struct {
	shared.VersionedEntity
	Name               string                `gorm:"type:varchar(100);not null;uniqueIndex"`
	Status             CycleStatus           `gorm:"type:varchar(16);not null;index"`
	AnchorMonth        valueobject.YearMonth `gorm:"type:varchar(7);not null"`
	StartYear          int                   `gorm:"not null"`
	StartMonth         int                   `gorm:"not null"`
	EndYear            int                   `gorm:"not null"`
	EndMonth           int                   `gorm:"not null"`
	Deadline           *time.Time
	OpenedAt           *time.Time
	ClosedAt           *time.Time
	TotalForecasts     int             `gorm:"not null;default:0"`
	SubmittedForecasts int             `gorm:"not null;default:0"`
	TotalReps          int             `gorm:"not null;default:0"`
	SubmittedReps      int             `gorm:"not null;default:0"`
	CompletionPct      decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
}

// TableName returns the database table name
func (Cycle) TableName() string {
	return "planning_cycles"
}

// NewCycle creates a new planning cycle in DRAFT status
// The window spans 4 months before the anchor through 11 months after it
func NewCycle(name string, anchor valueobject.YearMonth, deadline *time.Time) (*Cycle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_CYCLE_NAME", "Cycle name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewValidationError("INVALID_CYCLE_NAME", "Cycle name cannot exceed 100 characters")
	}
	if anchor.IsZero() {
		return nil, shared.NewValidationError("INVALID_ANCHOR_MONTH", "Anchor month is required")
	}

	start := anchor.AddMonths(-HistoricalMonths)
	end := anchor.AddMonths(FutureMonths)

	return &Cycle{
		VersionedEntity: shared.NewVersionedEntity(),
		Name:            name,
		Status:          CycleStatusDraft,
		AnchorMonth:     anchor,
		StartYear:       start.Year(),
		StartMonth:      int(start.Month()),
		EndYear:         end.Year(),
		EndMonth:        int(end.Month()),
		Deadline:        deadline,
		CompletionPct:   decimal.Zero,
	}, nil
}

// WindowMonths returns the cycle's 16 window months in chronological order,
// each tagged with its segment
func (c *Cycle) WindowMonths() []WindowMonth {
	months := make([]WindowMonth, 0, WindowTotalMonths)
	for offset := -HistoricalMonths; offset <= FutureMonths; offset++ {
		months = append(months, WindowMonth{
			Month:   c.AnchorMonth.AddMonths(offset),
			Segment: segmentForOffset(offset),
		})
	}
	return months
}

// SegmentOf returns the segment of a month inside the planning window, or
// false when the month is outside the window
func (c *Cycle) SegmentOf(month valueobject.YearMonth) (Segment, bool) {
	offset := c.AnchorMonth.MonthsUntil(month)
	if offset < -HistoricalMonths || offset > FutureMonths {
		return "", false
	}
	return segmentForOffset(offset), true
}

func segmentForOffset(offset int) Segment {
	switch {
	case offset < 0:
		return SegmentHistorical
	case offset == 0:
		return SegmentCurrent
	default:
		return SegmentFuture
	}
}

// IsDraft checks if the cycle is in draft status
func (c *Cycle) IsDraft() bool {
	return c.Status == CycleStatusDraft
}

// IsOpen checks if the cycle is open for submissions
func (c *Cycle) IsOpen() bool {
	return c.Status == CycleStatusOpen
}

// IsClosed checks if the cycle is closed
func (c *Cycle) IsClosed() bool {
	return c.Status == CycleStatusClosed
}

// Open transitions the cycle from DRAFT to OPEN
// The single-open-cycle invariant is enforced by the storage layer; this
// method only validates the local transition
func (c *Cycle) Open() error {
	if !c.Status.CanTransitionTo(CycleStatusOpen) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot open cycle in %s status", c.Status))
	}

	now := time.Now()
	c.Status = CycleStatusOpen
	c.OpenedAt = &now
	c.UpdatedAt = now

	return nil
}

// Close transitions the cycle from OPEN to CLOSED. Terminal.
func (c *Cycle) Close() error {
	if !c.Status.CanTransitionTo(CycleStatusClosed) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot close cycle in %s status", c.Status))
	}

	now := time.Now()
	c.Status = CycleStatusClosed
	c.ClosedAt = &now
	c.UpdatedAt = now

	return nil
}

// RevertToDraft transitions the cycle from OPEN back to DRAFT
// Only allowed while no forecast has been submitted
func (c *Cycle) RevertToDraft() error {
	if c.Status != CycleStatusOpen {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot revert cycle in %s status", c.Status))
	}
	if c.SubmittedForecasts > 0 {
		return shared.NewStateError("CYCLE_HAS_SUBMISSIONS",
			fmt.Sprintf("Cannot revert cycle with %d submitted forecasts", c.SubmittedForecasts))
	}

	c.Status = CycleStatusDraft
	c.OpenedAt = nil
	c.Touch()

	return nil
}

// CanDelete checks if the cycle may be deleted
func (c *Cycle) CanDelete() bool {
	return c.Status == CycleStatusDraft
}

// ApplyStatistics replaces the aggregate submission counters
func (c *Cycle) ApplyStatistics(stats CycleStatistics) {
	c.TotalForecasts = stats.TotalForecasts
	c.SubmittedForecasts = stats.SubmittedForecasts
	c.TotalReps = stats.TotalReps
	c.SubmittedReps = stats.SubmittedReps
	c.CompletionPct = stats.CompletionPct()
	c.Touch()
}

// UpdateDeadline sets the submission deadline
// Not allowed once the cycle is closed
func (c *Cycle) UpdateDeadline(deadline *time.Time) error {
	if c.Status == CycleStatusClosed {
		return shared.NewStateError("INVALID_STATE", "Cannot change deadline of a closed cycle")
	}
	c.Deadline = deadline
	c.Touch()
	return nil
}

// DeadlinePassed checks whether the submission deadline is in the past
func (c *Cycle) DeadlinePassed(now time.Time) bool {
	return c.Deadline != nil && now.After(*c.Deadline)
}
