package planning

import (
	"context"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
)

// SubmitterProgress summarizes one submitter's forecasts inside a cycle
type SubmitterProgress struct {
	SubmitterID uuid.UUID
	Total       int
	Submitted   int
}

// Complete reports whether every forecast of the submitter has been submitted
func (p SubmitterProgress) Complete() bool {
	return p.Total > 0 && p.Submitted >= p.Total
}

// CycleRepository defines the interface for planning cycle persistence
//
// The status transitions are conditional writes: each implementation must
// check the expected prior status (and the single-open invariant for
// TransitionToOpen) inside one atomic statement, never as a separate read
// followed by a write.
type CycleRepository interface {
	// FindByID finds a cycle by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Cycle, error)

	// FindByName finds a cycle by its unique name
	FindByName(ctx context.Context, name string) (*Cycle, error)

	// FindOpen returns the currently open cycle, if any
	FindOpen(ctx context.Context) (*Cycle, error)

	// FindAll finds cycles with filtering
	FindAll(ctx context.Context, filter shared.Filter) ([]Cycle, error)

	// Count counts cycles matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Create persists a new draft cycle; a duplicate name is a conflict
	Create(ctx context.Context, cycle *Cycle) error

	// TransitionToOpen moves a draft cycle to open, failing with a conflict
	// when any other cycle is already open
	TransitionToOpen(ctx context.Context, cycle *Cycle) error

	// TransitionToClosed moves an open cycle to closed
	TransitionToClosed(ctx context.Context, cycle *Cycle) error

	// RevertToDraft moves an open cycle back to draft while it has no
	// submitted forecasts
	RevertToDraft(ctx context.Context, cycle *Cycle) error

	// UpdateStatistics replaces the cycle's aggregate submission counters
	UpdateStatistics(ctx context.Context, id uuid.UUID, stats CycleStatistics) error

	// UpdateDeadline replaces the submission deadline of a non-closed cycle
	UpdateDeadline(ctx context.Context, cycle *Cycle) error

	// DeleteDraft removes a cycle while it is still in draft status
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}

// ForecastRepository defines the interface for forecast persistence
//
// CreateExclusive and the Mark* transitions are conditional writes keyed on
// the uniqueness rule and the expected prior status respectively, so that
// concurrent submitters lose at the database rather than race past an
// application-level check.
type ForecastRepository interface {
	// FindByID finds a forecast by ID with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Forecast, error)

	// FindActiveByKey finds the non-rejected forecast for a
	// (cycle, customer, product, submitter) key, if any
	FindActiveByKey(ctx context.Context, cycleID, customerID, productID, submitterID uuid.UUID) (*Forecast, error)

	// FindAll finds forecasts with filtering (lines included)
	FindAll(ctx context.Context, filter shared.Filter) ([]Forecast, error)

	// Count counts forecasts matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// CreateExclusive persists a new draft forecast and its lines, failing
	// with a conflict when a non-rejected forecast already exists for the
	// same key
	CreateExclusive(ctx context.Context, forecast *Forecast) error

	// Update rewrites a draft forecast's header and all lines under
	// optimistic locking
	Update(ctx context.Context, forecast *Forecast) error

	// MarkSubmitted persists the DRAFT -> SUBMITTED transition
	MarkSubmitted(ctx context.Context, forecast *Forecast) error

	// MarkReviewed persists the SUBMITTED -> APPROVED/REJECTED transition
	MarkReviewed(ctx context.Context, forecast *Forecast) error

	// DeleteDraft removes a draft forecast owned by the submitter
	DeleteDraft(ctx context.Context, id, submitterID uuid.UUID) error

	// ComputeCycleStatistics aggregates the cycle's submission counters
	ComputeCycleStatistics(ctx context.Context, cycleID uuid.UUID) (CycleStatistics, error)

	// ComputeSubmitterProgress aggregates per-submitter submission progress
	// for a cycle
	ComputeSubmitterProgress(ctx context.Context, cycleID uuid.UUID) ([]SubmitterProgress, error)
}
