package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/infrastructure/logger"
	"github.com/sop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReportQueue hands a pending report to the background generation worker.
// A full queue returns an error; the caller decides what to do with the
// stranded report.
type ReportQueue interface {
	Enqueue(reportID uuid.UUID) error
}

// ReportService orchestrates the report cache: deduplicated background
// generation keyed by fingerprint, fresh-payload retrieval through the
// payload cache, synchronous generation, and retention cleanup.
type ReportService struct {
	reports  analytics.ReportRepository
	payloads analytics.PayloadCache
	engine   *AnalyticsService
	queue    ReportQueue
	maxAge   time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

// NewReportService creates a new ReportService
// maxAge bounds how old a completed report may be and still serve a get;
// zero or negative falls back to one hour
func NewReportService(
	reports analytics.ReportRepository,
	payloads analytics.PayloadCache,
	engine *AnalyticsService,
	queue ReportQueue,
	maxAge time.Duration,
	logger *zap.Logger,
) *ReportService {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ReportService{
		reports:  reports,
		payloads: payloads,
		engine:   engine,
		queue:    queue,
		maxAge:   maxAge,
		validate: validator.New(),
		logger:   logger,
	}
}

// ===================== Request / Response Types =====================

// ReportFilterRequest carries the optional report criteria
type ReportFilterRequest struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	ProductID  *uuid.UUID `json:"product_id,omitempty"`
	CycleID    *uuid.UUID `json:"cycle_id,omitempty"`
	Year       *int       `json:"year,omitempty"`
	Month      *int       `json:"month,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
}

func (r ReportFilterRequest) toDomain() analytics.Filter {
	return analytics.Filter{
		CustomerID: r.CustomerID,
		ProductID:  r.ProductID,
		CycleID:    r.CycleID,
		Year:       r.Year,
		Month:      r.Month,
		DateFrom:   r.DateFrom,
		DateTo:     r.DateTo,
	}
}

// RequestReportRequest asks for a report, generated in the background
type RequestReportRequest struct {
	ReportType  string              `json:"report_type" validate:"required"`
	RequestedBy uuid.UUID           `json:"requested_by" validate:"required"`
	Filter      ReportFilterRequest `json:"filter"`
}

// ReportListFilter carries list criteria for report metadata
type ReportListFilter struct {
	ReportType *string `json:"report_type" validate:"omitempty"`
	Status     *string `json:"status" validate:"omitempty,oneof=PENDING GENERATING COMPLETED FAILED"`
	Page       int     `json:"page" validate:"omitempty,min=1"`
	PageSize   int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ReportResponse represents report metadata with the payload when loaded
type ReportResponse struct {
	ID           string          `json:"id"`
	ReportType   string          `json:"report_type"`
	Status       string          `json:"status"`
	Fingerprint  string          `json:"fingerprint"`
	Filters      json.RawMessage `json:"filters"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ArtifactRef  string          `json:"artifact_ref,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RequestedBy  string          `json:"requested_by"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ToReportResponse converts report metadata to a response
func ToReportResponse(report *analytics.Report) ReportResponse {
	return ReportResponse{
		ID:           report.ID.String(),
		ReportType:   report.ReportType.String(),
		Status:       report.Status.String(),
		Fingerprint:  report.Fingerprint,
		Filters:      json.RawMessage(report.Filters),
		Payload:      json.RawMessage(report.Payload),
		ArtifactRef:  report.ArtifactRef,
		ErrorMessage: report.ErrorMessage,
		RequestedBy:  report.RequestedBy.String(),
		StartedAt:    report.StartedAt,
		CompletedAt:  report.CompletedAt,
		CreatedAt:    report.CreatedAt,
	}
}

// ===================== Report Cache Operations =====================

// Request asks for a background-generated report. A completed report with
// the same fingerprint still within maxAge is returned as-is; an in-flight
// generation for the fingerprint is shared instead of duplicated.
func (s *ReportService) Request(ctx context.Context, req RequestReportRequest) (*ReportResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	report, err := analytics.NewReport(
		analytics.ReportType(req.ReportType), req.Filter.toDomain(), req.RequestedBy)
	if err != nil {
		return nil, err
	}

	if fresh, err := s.reports.FindFreshByFingerprint(ctx, report.Fingerprint, s.maxAge); err == nil {
		response := ToReportResponse(fresh)
		return &response, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if inFlight, err := s.reports.FindInFlightByFingerprint(ctx, report.Fingerprint); err == nil {
		response := ToReportResponse(inFlight)
		return &response, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if err := s.reports.Create(ctx, report); err != nil {
		// Lost the insert race against the in-flight index: a concurrent
		// request created the row first, so share its generation.
		if errors.Is(err, shared.ErrConflict) {
			return s.findSurvivor(ctx, report.Fingerprint)
		}
		return nil, err
	}

	if err := s.queue.Enqueue(report.ID); err != nil {
		// The pending row must not strand: record the enqueue failure
		if failErr := report.Fail(fmt.Sprintf("enqueue: %v", err)); failErr == nil {
			if markErr := s.reports.MarkFailed(ctx, report); markErr != nil {
				s.logger.Error("Failed to mark unenqueued report",
					zap.String("report_id", report.ID.String()),
					zap.Error(markErr),
				)
			}
		}
		return nil, shared.NewConflictError("REPORT_QUEUE_FULL",
			"Report generation queue is full, try again later")
	}

	s.logger.Info("Report generation queued",
		zap.String("report_id", report.ID.String()),
		zap.String("report_type", req.ReportType),
		zap.String("fingerprint", report.Fingerprint),
	)

	response := ToReportResponse(report)
	return &response, nil
}

// findSurvivor resolves the report that won a concurrent-insert race for a
// fingerprint. The winner is normally still in flight; a winner that already
// finished shows up as a fresh completed report instead.
func (s *ReportService) findSurvivor(ctx context.Context, fingerprint string) (*ReportResponse, error) {
	if inFlight, err := s.reports.FindInFlightByFingerprint(ctx, fingerprint); err == nil {
		response := ToReportResponse(inFlight)
		return &response, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	fresh, err := s.reports.FindFreshByFingerprint(ctx, fingerprint, s.maxAge)
	if err != nil {
		return nil, err
	}
	response := ToReportResponse(fresh)
	return &response, nil
}

// GetFresh returns the completed payload for a report type and filter if
// one finished within maxAge. The payload is served from the payload cache
// when possible; a cache miss falls back to the stored row and backfills
// the cache. A stale or absent report is a not-found error.
func (s *ReportService) GetFresh(ctx context.Context, reportType string, filterReq ReportFilterRequest) (*ReportResponse, error) {
	rt := analytics.ReportType(reportType)
	if !rt.IsValid() {
		return nil, shared.NewValidationError("INVALID_REPORT_TYPE",
			fmt.Sprintf("Unknown report type %q", reportType))
	}
	filter := filterReq.toDomain()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	fingerprint := analytics.Fingerprint(rt, filter)
	report, err := s.reports.FindFreshByFingerprint(ctx, fingerprint, s.maxAge)
	if err != nil {
		return nil, err
	}

	response := ToReportResponse(report)
	payload, err := s.payloads.GetPayload(ctx, fingerprint)
	if err == nil && len(payload) > 0 {
		response.Payload = payload
		return &response, nil
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Payload cache read failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}

	full, err := s.reports.FindByID(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	response.Payload = json.RawMessage(full.Payload)
	s.cachePayload(ctx, fingerprint, full.Payload)

	return &response, nil
}

// GenerateNow computes a report synchronously. The result is persisted
// through the same lifecycle as background generation so later gets hit
// the cache, and a fresh completed report short-circuits the computation.
func (s *ReportService) GenerateNow(ctx context.Context, req RequestReportRequest) (*ReportResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	report, err := analytics.NewReport(
		analytics.ReportType(req.ReportType), req.Filter.toDomain(), req.RequestedBy)
	if err != nil {
		return nil, err
	}

	if _, err := s.reports.FindFreshByFingerprint(ctx, report.Fingerprint, s.maxAge); err == nil {
		return s.GetFresh(ctx, req.ReportType, req.Filter)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if err := s.reports.Create(ctx, report); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return s.findSurvivor(ctx, report.Fingerprint)
		}
		return nil, err
	}
	if err := s.generate(ctx, report); err != nil {
		return nil, err
	}

	response := ToReportResponse(report)
	return &response, nil
}

// ProcessReport runs one queued generation. It claims the pending report
// with a conditional transition, so a report already claimed or finished
// elsewhere is skipped without error. Failures are recorded on the report
// and never retried here.
func (s *ReportService) ProcessReport(ctx context.Context, reportID uuid.UUID) error {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Queued report vanished", zap.String("report_id", reportID.String()))
			return nil
		}
		return err
	}
	if report.Status != analytics.ReportStatusPending {
		s.logger.Debug("Skipping non-pending report",
			zap.String("report_id", reportID.String()),
			zap.String("status", report.Status.String()),
		)
		return nil
	}

	return s.generate(ctx, report)
}

// generate runs the PENDING -> GENERATING -> COMPLETED/FAILED lifecycle
func (s *ReportService) generate(ctx context.Context, report *analytics.Report) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "generate")
	defer span.End()

	// Generation logs carry the span IDs so a slow report can be matched
	// to its trace
	log := logger.WithTraceContext(ctx, s.logger)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrReportID, report.ID.String(),
		telemetry.SpanAttrReportType, report.ReportType.String(),
		telemetry.SpanAttrFingerprint, report.Fingerprint,
	)

	if err := report.Start(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := s.reports.MarkGenerating(ctx, report); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			log.Debug("Report claimed elsewhere", zap.String("report_id", report.ID.String()))
			return nil
		}
		telemetry.RecordError(span, err)
		return err
	}

	filter, err := report.Filter()
	if err == nil {
		if filter.CycleID != nil {
			telemetry.SetAttribute(span, telemetry.SpanAttrCycleID, filter.CycleID.String())
		}
		var payload []byte
		payload, err = s.engine.Generate(ctx, report.ReportType, filter)
		if err == nil {
			if completeErr := report.Complete(payload); completeErr != nil {
				telemetry.RecordError(span, completeErr)
				return completeErr
			}
			if markErr := s.reports.MarkCompleted(ctx, report); markErr != nil {
				telemetry.RecordError(span, markErr)
				return markErr
			}
			s.cachePayload(ctx, report.Fingerprint, payload)
			telemetry.AddEvent(span, "report_generated",
				"payload_bytes", len(payload),
			)
			log.Info("Report generated",
				zap.String("report_id", report.ID.String()),
				zap.String("report_type", report.ReportType.String()),
				zap.Int("payload_bytes", len(payload)),
			)
			return nil
		}
	}

	telemetry.RecordError(span, err)
	if failErr := report.Fail(err.Error()); failErr != nil {
		return failErr
	}
	if markErr := s.reports.MarkFailed(ctx, report); markErr != nil {
		return markErr
	}
	log.Warn("Report generation failed",
		zap.String("report_id", report.ID.String()),
		zap.String("report_type", report.ReportType.String()),
		zap.Error(err),
	)
	return err
}

// GetByID returns one report's metadata and payload
func (s *ReportService) GetByID(ctx context.Context, reportID uuid.UUID) (*ReportResponse, error) {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	response := ToReportResponse(report)
	return &response, nil
}

// List returns a page of report metadata matching the filter
func (s *ReportService) List(ctx context.Context, filter ReportListFilter) (shared.Paginated[ReportResponse], error) {
	if err := s.validate.Struct(filter); err != nil {
		return shared.Paginated[ReportResponse]{}, asValidationError(err)
	}

	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.ReportType != nil {
		domainFilter = domainFilter.WithFilter("report_type", *filter.ReportType)
	}
	if filter.Status != nil {
		domainFilter = domainFilter.WithFilter("status", *filter.Status)
	}

	reports, err := s.reports.FindAll(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[ReportResponse]{}, err
	}
	total, err := s.reports.Count(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[ReportResponse]{}, err
	}

	responses := make([]ReportResponse, len(reports))
	for i := range reports {
		responses[i] = ToReportResponse(&reports[i])
	}
	return shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize), nil
}

// AttachArtifact records the external renderer's artifact reference on a
// completed report
func (s *ReportService) AttachArtifact(ctx context.Context, reportID uuid.UUID, artifactRef string) (*ReportResponse, error) {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := report.AttachArtifact(artifactRef); err != nil {
		return nil, err
	}
	if err := s.reports.UpdateArtifactRef(ctx, report); err != nil {
		return nil, err
	}

	response := ToReportResponse(report)
	return &response, nil
}

// Cleanup removes finished reports older than the retention period.
// Cached payloads expire on their own TTL and need no sweep here.
func (s *ReportService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, shared.NewValidationError("INVALID_RETENTION", "Retention must be positive")
	}

	cutoff := time.Now().Add(-retention)
	removed, err := s.reports.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("Report cache cleaned",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}

// cachePayload backfills the payload cache; cache failures only warn
func (s *ReportService) cachePayload(ctx context.Context, fingerprint string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if err := s.payloads.SetPayload(ctx, fingerprint, payload, s.maxAge); err != nil {
		s.logger.Warn("Payload cache write failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}
}

// asValidationError converts a validator error into a typed domain error
func asValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return shared.NewValidationError("INVALID_REQUEST",
			fmt.Sprintf("Field %s failed validation rule %q", first.Field(), first.Tag()))
	}
	return shared.NewValidationError("INVALID_REQUEST", err.Error())
}
