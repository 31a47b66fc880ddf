package planning

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
	"github.com/sop/backend/internal/infrastructure/telemetry"
)

// CycleService handles planning cycle business operations
type CycleService struct {
	cycles    planning.CycleRepository
	forecasts planning.ForecastRepository
	validate  *validator.Validate
}

// NewCycleService creates a new CycleService
func NewCycleService(cycles planning.CycleRepository, forecasts planning.ForecastRepository) *CycleService {
	return &CycleService{
		cycles:    cycles,
		forecasts: forecasts,
		validate:  validator.New(),
	}
}

// Create creates a new planning cycle in DRAFT status
func (s *CycleService) Create(ctx context.Context, req CreateCycleRequest) (*CycleResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	anchor, err := valueobject.ParseYearMonth(req.AnchorMonth)
	if err != nil {
		return nil, shared.NewValidationError("INVALID_ANCHOR_MONTH",
			"Anchor month must use the YYYY-MM format")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "S&OP " + anchor.String()
	}

	cycle, err := planning.NewCycle(name, anchor, req.Deadline)
	if err != nil {
		return nil, err
	}

	if err := s.cycles.Create(ctx, cycle); err != nil {
		return nil, err
	}

	response := ToCycleResponse(cycle)
	return &response, nil
}

// GetByID retrieves a cycle by ID
func (s *CycleService) GetByID(ctx context.Context, cycleID uuid.UUID) (*CycleResponse, error) {
	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	response := ToCycleResponse(cycle)
	return &response, nil
}

// GetOpen retrieves the currently open cycle, if any
func (s *CycleService) GetOpen(ctx context.Context) (*CycleResponse, error) {
	cycle, err := s.cycles.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	response := ToCycleResponse(cycle)
	return &response, nil
}

// GetWindow returns the cycle's 16 window months with their segments
func (s *CycleService) GetWindow(ctx context.Context, cycleID uuid.UUID) ([]WindowMonthResponse, error) {
	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return ToWindowMonthResponses(cycle.WindowMonths()), nil
}

// List retrieves a page of cycles with filtering
func (s *CycleService) List(ctx context.Context, filter CycleListFilter) (shared.Paginated[CycleResponse], error) {
	if err := s.validate.Struct(filter); err != nil {
		return shared.Paginated[CycleResponse]{}, asValidationError(err)
	}

	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		domainFilter.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		domainFilter.OrderDir = filter.OrderDir
	}
	domainFilter.Search = filter.Search
	if filter.Status != nil {
		domainFilter = domainFilter.WithFilter("status", *filter.Status)
	}

	cycles, err := s.cycles.FindAll(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[CycleResponse]{}, err
	}
	total, err := s.cycles.Count(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[CycleResponse]{}, err
	}

	responses := make([]CycleResponse, len(cycles))
	for i := range cycles {
		responses[i] = ToCycleResponse(&cycles[i])
	}
	return shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize), nil
}

// Open transitions a cycle from DRAFT to OPEN
// At most one cycle may be open system-wide; the storage layer enforces the
// invariant atomically and a losing concurrent open receives a conflict
func (s *CycleService) Open(ctx context.Context, cycleID uuid.UUID) (_ *CycleResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cycle", "open",
		telemetry.SpanAttrCycleID, cycleID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrCycleName, cycle.Name)

	if err := cycle.Open(); err != nil {
		return nil, err
	}
	if err := s.cycles.TransitionToOpen(ctx, cycle); err != nil {
		return nil, err
	}

	response := ToCycleResponse(cycle)
	return &response, nil
}

// Close transitions a cycle from OPEN to CLOSED. Statistics are recomputed
// and persisted before the transition so the closed cycle freezes its final
// counters.
func (s *CycleService) Close(ctx context.Context, cycleID uuid.UUID) (_ *CycleResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cycle", "close",
		telemetry.SpanAttrCycleID, cycleID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrCycleName, cycle.Name)

	stats, err := s.forecasts.ComputeCycleStatistics(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	cycle.ApplyStatistics(stats)
	if err := s.cycles.UpdateStatistics(ctx, cycle.ID, stats); err != nil {
		return nil, err
	}

	if err := cycle.Close(); err != nil {
		return nil, err
	}
	if err := s.cycles.TransitionToClosed(ctx, cycle); err != nil {
		return nil, err
	}

	response := ToCycleResponse(cycle)
	return &response, nil
}

// RevertToDraft moves an open cycle back to DRAFT while no forecast has been
// submitted. The storage layer re-checks the no-submissions condition inside
// the same conditional write, so a submission racing this call wins.
func (s *CycleService) RevertToDraft(ctx context.Context, cycleID uuid.UUID) (_ *CycleResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cycle", "revert_to_draft",
		telemetry.SpanAttrCycleID, cycleID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	stats, err := s.forecasts.ComputeCycleStatistics(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	cycle.ApplyStatistics(stats)

	if err := cycle.RevertToDraft(); err != nil {
		return nil, err
	}
	if err := s.cycles.RevertToDraft(ctx, cycle); err != nil {
		return nil, err
	}

	response := ToCycleResponse(cycle)
	return &response, nil
}

// UpdateDeadline replaces the submission deadline of a non-closed cycle
func (s *CycleService) UpdateDeadline(ctx context.Context, cycleID uuid.UUID, req UpdateCycleDeadlineRequest) (*CycleResponse, error) {
	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	if err := cycle.UpdateDeadline(req.Deadline); err != nil {
		return nil, err
	}
	if err := s.cycles.UpdateDeadline(ctx, cycle); err != nil {
		return nil, err
	}

	response := ToCycleResponse(cycle)
	return &response, nil
}

// Delete removes a cycle while it is still in DRAFT status
func (s *CycleService) Delete(ctx context.Context, cycleID uuid.UUID) error {
	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return err
	}
	if !cycle.CanDelete() {
		return shared.NewStateError("INVALID_STATE", "Only draft cycles can be deleted")
	}

	return s.cycles.DeleteDraft(ctx, cycleID)
}

// RefreshStatistics recomputes and persists the cycle's submission counters
func (s *CycleService) RefreshStatistics(ctx context.Context, cycleID uuid.UUID) (*CycleResponse, error) {
	cycle, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	stats, err := s.forecasts.ComputeCycleStatistics(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	if err := s.cycles.UpdateStatistics(ctx, cycle.ID, stats); err != nil {
		return nil, err
	}
	cycle.ApplyStatistics(stats)

	response := ToCycleResponse(cycle)
	return &response, nil
}

// GetSubmitterProgress returns per-submitter completion for a cycle
func (s *CycleService) GetSubmitterProgress(ctx context.Context, cycleID uuid.UUID) ([]SubmitterProgressResponse, error) {
	if _, err := s.cycles.FindByID(ctx, cycleID); err != nil {
		return nil, err
	}

	progress, err := s.forecasts.ComputeSubmitterProgress(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	responses := make([]SubmitterProgressResponse, len(progress))
	for i, p := range progress {
		responses[i] = SubmitterProgressResponse{
			SubmitterID: p.SubmitterID,
			Total:       p.Total,
			Submitted:   p.Submitted,
			Complete:    p.Complete(),
		}
	}
	return responses, nil
}
