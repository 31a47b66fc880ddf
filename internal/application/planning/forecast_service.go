package planning

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/pricing"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
	"github.com/sop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ForecastService handles forecast business operations
type ForecastService struct {
	forecasts       planning.ForecastRepository
	cycles          planning.CycleRepository
	resolver        *pricing.Resolver
	submitMinMonths int
	validate        *validator.Validate
	logger          *zap.Logger
}

// NewForecastService creates a new ForecastService
// submitMinMonths is the submission gate; zero or negative falls back to
// requiring every future-flagged month
func NewForecastService(
	forecasts planning.ForecastRepository,
	cycles planning.CycleRepository,
	resolver *pricing.Resolver,
	submitMinMonths int,
	logger *zap.Logger,
) *ForecastService {
	if submitMinMonths <= 0 {
		submitMinMonths = planning.FutureMonths + 1
	}
	return &ForecastService{
		forecasts:       forecasts,
		cycles:          cycles,
		resolver:        resolver,
		submitMinMonths: submitMinMonths,
		validate:        validator.New(),
		logger:          logger,
	}
}

// Create creates a new draft forecast against the open cycle
// The per-key uniqueness rule is enforced atomically by the storage layer;
// a concurrent duplicate receives a conflict
func (s *ForecastService) Create(ctx context.Context, req CreateForecastRequest) (*ForecastResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	cycle, err := s.cycles.FindByID(ctx, req.CycleID)
	if err != nil {
		return nil, err
	}
	if !cycle.IsOpen() {
		return nil, shared.NewStateError("CYCLE_NOT_OPEN",
			fmt.Sprintf("Cycle %s is not open for submissions", cycle.Name))
	}

	forecast, err := planning.NewForecast(
		req.CycleID, req.CustomerID, req.ProductID, req.SubmitterID,
		req.UseCustomerPrice, req.OverridePrice)
	if err != nil {
		return nil, err
	}
	if req.PreviousVersionID != nil {
		forecast.LinkPreviousVersion(*req.PreviousVersionID)
	}

	unitPrice, err := s.resolver.Resolve(ctx, req.CustomerID, req.ProductID, req.UseCustomerPrice, req.OverridePrice)
	if err != nil {
		return nil, err
	}

	lines, err := buildForecastLines(cycle, forecast.ID, req.Lines, unitPrice)
	if err != nil {
		return nil, err
	}
	if err := forecast.ReplaceLines(lines); err != nil {
		return nil, err
	}

	if err := s.forecasts.CreateExclusive(ctx, forecast); err != nil {
		return nil, err
	}
	s.refreshStatistics(ctx, forecast.CycleID)

	response := ToForecastResponse(forecast)
	return &response, nil
}

// GetByID retrieves a forecast with its lines
func (s *ForecastService) GetByID(ctx context.Context, forecastID uuid.UUID) (*ForecastResponse, error) {
	forecast, err := s.forecasts.FindByID(ctx, forecastID)
	if err != nil {
		return nil, err
	}
	response := ToForecastResponse(forecast)
	return &response, nil
}

// List retrieves a page of forecasts with filtering
func (s *ForecastService) List(ctx context.Context, filter ForecastListFilter) (shared.Paginated[ForecastResponse], error) {
	if err := s.validate.Struct(filter); err != nil {
		return shared.Paginated[ForecastResponse]{}, asValidationError(err)
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
	if filter.CycleID != nil {
		domainFilter = domainFilter.WithFilter("cycle_id", *filter.CycleID)
	}
	if filter.CustomerID != nil {
		domainFilter = domainFilter.WithFilter("customer_id", *filter.CustomerID)
	}
	if filter.ProductID != nil {
		domainFilter = domainFilter.WithFilter("product_id", *filter.ProductID)
	}
	if filter.SubmitterID != nil {
		domainFilter = domainFilter.WithFilter("submitter_id", *filter.SubmitterID)
	}
	if filter.Status != nil {
		domainFilter = domainFilter.WithFilter("status", *filter.Status)
	}

	forecasts, err := s.forecasts.FindAll(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[ForecastResponse]{}, err
	}
	total, err := s.forecasts.Count(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[ForecastResponse]{}, err
	}

	responses := make([]ForecastResponse, len(forecasts))
	for i := range forecasts {
		responses[i] = ToForecastResponse(&forecasts[i])
	}
	return shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize), nil
}

// Update rewrites a draft forecast's pricing and lines
// Prices are re-resolved so stored revenues never go stale
func (s *ForecastService) Update(ctx context.Context, forecastID uuid.UUID, req UpdateForecastRequest) (*ForecastResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	forecast, err := s.forecasts.FindByID(ctx, forecastID)
	if err != nil {
		return nil, err
	}
	if !forecast.IsOwnedBy(req.ActorID) {
		return nil, shared.NewValidationError("FORECAST_NOT_OWNED",
			"Only the submitter can modify this forecast")
	}
	if !forecast.CanModify() {
		return nil, shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot modify forecast in %s status", forecast.Status))
	}

	cycle, err := s.cycles.FindByID(ctx, forecast.CycleID)
	if err != nil {
		return nil, err
	}
	if !cycle.IsOpen() {
		return nil, shared.NewStateError("CYCLE_NOT_OPEN",
			fmt.Sprintf("Cycle %s is not open for submissions", cycle.Name))
	}

	useCustomerPrice := forecast.UseCustomerPrice
	overridePrice := forecast.OverridePrice
	if req.UseCustomerPrice != nil {
		useCustomerPrice = *req.UseCustomerPrice
		if useCustomerPrice {
			// A stale override never outlives a switch to customer pricing
			overridePrice = nil
		}
	}
	if req.OverridePrice != nil {
		overridePrice = req.OverridePrice
	}
	if err := forecast.SetPricing(useCustomerPrice, overridePrice); err != nil {
		return nil, err
	}

	unitPrice, err := s.resolver.Resolve(ctx, forecast.CustomerID, forecast.ProductID, useCustomerPrice, overridePrice)
	if err != nil {
		return nil, err
	}

	inputs := req.Lines
	if inputs == nil {
		inputs = lineInputsFrom(forecast)
	}
	lines, err := buildForecastLines(cycle, forecast.ID, inputs, unitPrice)
	if err != nil {
		return nil, err
	}
	if err := forecast.ReplaceLines(lines); err != nil {
		return nil, err
	}

	if err := s.forecasts.Update(ctx, forecast); err != nil {
		return nil, err
	}

	response := ToForecastResponse(forecast)
	return &response, nil
}

// Submit transitions a forecast from DRAFT to SUBMITTED
// At least submitMinMonths future-flagged months must carry a quantity; the
// storage layer persists the transition conditionally so a double submit
// loses with a state error
func (s *ForecastService) Submit(ctx context.Context, forecastID, actorID uuid.UUID) (_ *ForecastResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "forecast", "submit",
		telemetry.SpanAttrForecastID, forecastID.String(),
		telemetry.SpanAttrSubmitterID, actorID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	forecast, err := s.forecasts.FindByID(ctx, forecastID)
	if err != nil {
		return nil, err
	}
	if !forecast.IsOwnedBy(actorID) {
		return nil, shared.NewValidationError("FORECAST_NOT_OWNED",
			"Only the submitter can submit this forecast")
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCycleID, forecast.CycleID.String(),
		telemetry.SpanAttrCustomerID, forecast.CustomerID.String(),
		telemetry.SpanAttrProductID, forecast.ProductID.String(),
	)

	cycle, err := s.cycles.FindByID(ctx, forecast.CycleID)
	if err != nil {
		return nil, err
	}
	if !cycle.IsOpen() {
		return nil, shared.NewStateError("CYCLE_NOT_OPEN",
			fmt.Sprintf("Cycle %s is not open for submissions", cycle.Name))
	}

	if err := forecast.Submit(s.submitMinMonths); err != nil {
		return nil, err
	}
	if err := s.forecasts.MarkSubmitted(ctx, forecast); err != nil {
		return nil, err
	}
	s.refreshStatistics(ctx, forecast.CycleID)

	response := ToForecastResponse(forecast)
	return &response, nil
}

// Approve transitions a submitted forecast to APPROVED
// Requires a manager or admin actor
func (s *ForecastService) Approve(ctx context.Context, forecastID uuid.UUID, req ReviewForecastRequest) (_ *ForecastResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "forecast", "approve",
		telemetry.SpanAttrForecastID, forecastID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	forecast, err := s.reviewTarget(ctx, forecastID, req)
	if err != nil {
		return nil, err
	}

	if err := forecast.Approve(req.ReviewerID, req.Comment); err != nil {
		return nil, err
	}
	if err := s.forecasts.MarkReviewed(ctx, forecast); err != nil {
		return nil, err
	}
	s.refreshStatistics(ctx, forecast.CycleID)

	response := ToForecastResponse(forecast)
	return &response, nil
}

// Reject transitions a submitted forecast to REJECTED with a mandatory
// comment, freeing the key for a fresh forecast
func (s *ForecastService) Reject(ctx context.Context, forecastID uuid.UUID, req ReviewForecastRequest) (_ *ForecastResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "forecast", "reject",
		telemetry.SpanAttrForecastID, forecastID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	forecast, err := s.reviewTarget(ctx, forecastID, req)
	if err != nil {
		return nil, err
	}

	if err := forecast.Reject(req.ReviewerID, req.Comment); err != nil {
		return nil, err
	}
	if err := s.forecasts.MarkReviewed(ctx, forecast); err != nil {
		return nil, err
	}
	s.refreshStatistics(ctx, forecast.CycleID)

	response := ToForecastResponse(forecast)
	return &response, nil
}

// reviewTarget validates the reviewer's role and loads the forecast
func (s *ForecastService) reviewTarget(ctx context.Context, forecastID uuid.UUID, req ReviewForecastRequest) (*planning.Forecast, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	role := planning.ActorRole(req.ActorRole)
	if !role.IsValid() {
		return nil, shared.NewValidationError("INVALID_ROLE",
			fmt.Sprintf("Unknown actor role %q", req.ActorRole))
	}
	if !role.IsElevated() {
		return nil, shared.NewValidationError("ELEVATED_ROLE_REQUIRED",
			"Reviewing forecasts requires a manager or admin role")
	}

	return s.forecasts.FindByID(ctx, forecastID)
}

// Delete removes a draft forecast owned by the actor
func (s *ForecastService) Delete(ctx context.Context, forecastID, actorID uuid.UUID) error {
	forecast, err := s.forecasts.FindByID(ctx, forecastID)
	if err != nil {
		return err
	}
	if !forecast.IsOwnedBy(actorID) {
		return shared.NewValidationError("FORECAST_NOT_OWNED",
			"Only the submitter can delete this forecast")
	}

	if err := s.forecasts.DeleteDraft(ctx, forecastID, actorID); err != nil {
		return err
	}
	s.refreshStatistics(ctx, forecast.CycleID)

	return nil
}

// BulkUpsert creates or updates one customer's forecasts for many products
// in a single call. The price matrix is scanned once for the whole batch;
// items that fail pricing or conflict with submitted forecasts are collected
// as per-item errors and never abort the remaining items.
func (s *ForecastService) BulkUpsert(ctx context.Context, req BulkUpsertRequest) (_ *BulkUpsertResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "forecast", "bulk_upsert",
		telemetry.SpanAttrCycleID, req.CycleID.String(),
		telemetry.SpanAttrCustomerID, req.CustomerID.String(),
		telemetry.SpanAttrSubmitterID, req.SubmitterID.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	cycle, err := s.cycles.FindByID(ctx, req.CycleID)
	if err != nil {
		return nil, err
	}
	if !cycle.IsOpen() {
		return nil, shared.NewStateError("CYCLE_NOT_OPEN",
			fmt.Sprintf("Cycle %s is not open for submissions", cycle.Name))
	}

	priceRequests := make([]pricing.BatchPriceRequest, len(req.Items))
	for i, item := range req.Items {
		priceRequests[i] = pricing.BatchPriceRequest{
			ProductID:        item.ProductID,
			UseCustomerPrice: item.UseCustomerPrice,
			OverridePrice:    item.OverridePrice,
		}
	}
	priced, err := s.resolver.ResolveBatch(ctx, req.CustomerID, priceRequests)
	if err != nil {
		return nil, err
	}

	response := &BulkUpsertResponse{}
	for i, item := range req.Items {
		if priceErr, failed := priced.Errors[item.ProductID]; failed {
			response.Errors = append(response.Errors, BulkItemError{
				Index:     i,
				ProductID: item.ProductID,
				Code:      domainErrorCode(priceErr),
				Message:   priceErr.Error(),
			})
			continue
		}

		forecastID, created, err := s.upsertItem(ctx, cycle, req.CustomerID, req.SubmitterID, item, priced.Prices[item.ProductID])
		if err != nil {
			response.Errors = append(response.Errors, BulkItemError{
				Index:     i,
				ProductID: item.ProductID,
				Code:      domainErrorCode(err),
				Message:   err.Error(),
			})
			continue
		}

		response.Results = append(response.Results, BulkItemResult{
			Index:      i,
			ProductID:  item.ProductID,
			ForecastID: forecastID,
			Created:    created,
		})
		if created {
			response.CreatedCount++
		} else {
			response.UpdatedCount++
		}
	}
	response.FailedCount = len(response.Errors)
	telemetry.AddEvent(span, "bulk_upsert_settled",
		"created", response.CreatedCount,
		"updated", response.UpdatedCount,
		"failed", response.FailedCount,
	)

	s.refreshStatistics(ctx, cycle.ID)

	return response, nil
}

// upsertItem creates a fresh forecast for the key or rewrites the existing
// draft; an already-submitted forecast for the key is a per-item conflict
func (s *ForecastService) upsertItem(
	ctx context.Context,
	cycle *planning.Cycle,
	customerID, submitterID uuid.UUID,
	item BulkForecastItem,
	unitPrice decimal.Decimal,
) (uuid.UUID, bool, error) {
	existing, err := s.forecasts.FindActiveByKey(ctx, cycle.ID, customerID, item.ProductID, submitterID)
	switch {
	case err == nil:
		if !existing.CanModify() {
			return uuid.Nil, false, shared.NewConflictError("FORECAST_ALREADY_SUBMITTED",
				fmt.Sprintf("Forecast for product %s is already %s", item.ProductID, existing.Status))
		}
		if err := existing.SetPricing(item.UseCustomerPrice, item.OverridePrice); err != nil {
			return uuid.Nil, false, err
		}
		lines, err := buildForecastLines(cycle, existing.ID, item.Lines, unitPrice)
		if err != nil {
			return uuid.Nil, false, err
		}
		if err := existing.ReplaceLines(lines); err != nil {
			return uuid.Nil, false, err
		}
		if err := s.forecasts.Update(ctx, existing); err != nil {
			return uuid.Nil, false, err
		}
		return existing.ID, false, nil

	case errors.Is(err, shared.ErrNotFound):
		forecast, err := planning.NewForecast(cycle.ID, customerID, item.ProductID, submitterID,
			item.UseCustomerPrice, item.OverridePrice)
		if err != nil {
			return uuid.Nil, false, err
		}
		lines, err := buildForecastLines(cycle, forecast.ID, item.Lines, unitPrice)
		if err != nil {
			return uuid.Nil, false, err
		}
		if err := forecast.ReplaceLines(lines); err != nil {
			return uuid.Nil, false, err
		}
		if err := s.forecasts.CreateExclusive(ctx, forecast); err != nil {
			return uuid.Nil, false, err
		}
		return forecast.ID, true, nil

	default:
		return uuid.Nil, false, err
	}
}

// refreshStatistics recomputes the cycle's submission counters after a
// forecast mutation. Failures are logged, never surfaced: the mutation
// itself already succeeded.
func (s *ForecastService) refreshStatistics(ctx context.Context, cycleID uuid.UUID) {
	stats, err := s.forecasts.ComputeCycleStatistics(ctx, cycleID)
	if err == nil {
		err = s.cycles.UpdateStatistics(ctx, cycleID, stats)
	}
	if err != nil {
		s.logger.Warn("Cycle statistics refresh failed",
			zap.String("cycle_id", cycleID.String()),
			zap.Error(err),
		)
	}
}

// buildForecastLines expands sparse month inputs into the full window line
// set. Months outside the cycle window and duplicate months are rejected;
// window months absent from the input carry quantity zero.
func buildForecastLines(
	cycle *planning.Cycle,
	forecastID uuid.UUID,
	inputs []ForecastLineInput,
	unitPrice decimal.Decimal,
) ([]planning.ForecastLine, error) {
	quantities := make(map[string]decimal.Decimal, len(inputs))
	for _, input := range inputs {
		month, err := valueobject.ParseYearMonth(input.Month)
		if err != nil {
			return nil, shared.NewValidationError("INVALID_LINE_MONTH",
				fmt.Sprintf("Line month %q must use the YYYY-MM format", input.Month))
		}
		if _, inWindow := cycle.SegmentOf(month); !inWindow {
			return nil, shared.NewValidationError("LINE_OUTSIDE_WINDOW",
				fmt.Sprintf("Month %s is outside the planning window of cycle %s", month, cycle.Name))
		}
		key := month.String()
		if _, duplicate := quantities[key]; duplicate {
			return nil, shared.NewValidationError("DUPLICATE_LINE_MONTH",
				fmt.Sprintf("Month %s appears more than once", key))
		}
		quantities[key] = input.Quantity
	}

	lines := make([]planning.ForecastLine, 0, planning.WindowTotalMonths)
	for _, wm := range cycle.WindowMonths() {
		line, err := planning.NewForecastLine(forecastID, wm.Month, wm.Segment, quantities[wm.Month.String()], unitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, nil
}

// lineInputsFrom preserves a forecast's current quantities as line inputs
func lineInputsFrom(forecast *planning.Forecast) []ForecastLineInput {
	inputs := make([]ForecastLineInput, 0, len(forecast.Lines))
	for _, line := range forecast.Lines {
		inputs = append(inputs, ForecastLineInput{
			Month:    line.YearMonth().String(),
			Quantity: line.Quantity,
		})
	}
	return inputs
}
