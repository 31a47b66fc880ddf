package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReportRepository implements ReportRepository using GORM
//
// MarkGenerating doubles as the claim each background worker races for: the
// PENDING condition in its WHERE clause lets exactly one worker win, so a
// zero-row result is an expected outcome, reported as a conflict.
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// FindByID finds a report by its ID, payload included
func (r *GormReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*analytics.Report, error) {
	var report analytics.Report
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// FindFreshByFingerprint returns the newest completed report with the
// fingerprint whose generation finished within maxAge. The payload column is
// skipped; metadata checks must not drag megabytes of JSON off the table.
func (r *GormReportRepository) FindFreshByFingerprint(ctx context.Context, fingerprint string, maxAge time.Duration) (*analytics.Report, error) {
	var report analytics.Report
	err := r.db.WithContext(ctx).
		Omit("payload").
		Where("fingerprint = ? AND status = ? AND completed_at >= ?",
			fingerprint, analytics.ReportStatusCompleted, time.Now().Add(-maxAge)).
		Order("completed_at DESC").
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// FindInFlightByFingerprint returns a pending or generating report with the
// fingerprint, if any
func (r *GormReportRepository) FindInFlightByFingerprint(ctx context.Context, fingerprint string) (*analytics.Report, error) {
	var report analytics.Report
	err := r.db.WithContext(ctx).
		Where("fingerprint = ? AND status IN ?", fingerprint,
			[]analytics.ReportStatus{analytics.ReportStatusPending, analytics.ReportStatusGenerating}).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// FindAll finds reports matching the filter
func (r *GormReportRepository) FindAll(ctx context.Context, filter shared.Filter) ([]analytics.Report, error) {
	var reports []analytics.Report
	query := r.db.WithContext(ctx).Model(&analytics.Report{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// Count counts reports matching the filter
func (r *GormReportRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&analytics.Report{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create persists new pending report metadata. A concurrent insert for the
// same fingerprint loses against the partial unique index over in-flight
// rows, so two requests never start the same generation twice.
func (r *GormReportRepository) Create(ctx context.Context, report *analytics.Report) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(report)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("REPORT_IN_FLIGHT",
				"A generation for this report is already in flight")
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("REPORT_IN_FLIGHT",
			"A generation for this report is already in flight")
	}
	return nil
}

// MarkGenerating persists the PENDING -> GENERATING transition
func (r *GormReportRepository) MarkGenerating(ctx context.Context, report *analytics.Report) error {
	result := r.db.WithContext(ctx).Model(&analytics.Report{}).
		Where("id = ? AND status = ?", report.ID, analytics.ReportStatusPending).
		Updates(map[string]any{
			"status":     report.Status,
			"started_at": report.StartedAt,
			"updated_at": report.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyTransitionMiss(ctx, report.ID, analytics.ReportStatusPending)
	}
	return nil
}

// MarkCompleted persists the GENERATING -> COMPLETED transition with the payload
func (r *GormReportRepository) MarkCompleted(ctx context.Context, report *analytics.Report) error {
	result := r.db.WithContext(ctx).Model(&analytics.Report{}).
		Where("id = ? AND status = ?", report.ID, analytics.ReportStatusGenerating).
		Updates(map[string]any{
			"status":        report.Status,
			"payload":       report.Payload,
			"error_message": "",
			"completed_at":  report.CompletedAt,
			"updated_at":    report.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyTransitionMiss(ctx, report.ID, analytics.ReportStatusGenerating)
	}
	return nil
}

// MarkFailed moves an in-flight report to FAILED with its error message
func (r *GormReportRepository) MarkFailed(ctx context.Context, report *analytics.Report) error {
	result := r.db.WithContext(ctx).Model(&analytics.Report{}).
		Where("id = ? AND status IN ?", report.ID,
			[]analytics.ReportStatus{analytics.ReportStatusPending, analytics.ReportStatusGenerating}).
		Updates(map[string]any{
			"status":        report.Status,
			"error_message": report.ErrorMessage,
			"completed_at":  report.CompletedAt,
			"updated_at":    report.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, report.ID); err != nil {
			return err
		}
		return shared.NewConflictError("REPORT_FINISHED", "Report generation already finished")
	}
	return nil
}

// UpdateArtifactRef records the renderer's artifact reference on a completed report
func (r *GormReportRepository) UpdateArtifactRef(ctx context.Context, report *analytics.Report) error {
	result := r.db.WithContext(ctx).Model(&analytics.Report{}).
		Where("id = ? AND status = ?", report.ID, analytics.ReportStatusCompleted).
		Updates(map[string]any{
			"artifact_ref": report.ArtifactRef,
			"updated_at":   report.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyTransitionMiss(ctx, report.ID, analytics.ReportStatusCompleted)
	}
	return nil
}

// DeleteFinishedBefore removes completed and failed reports whose generation
// finished before the cutoff, returning the removed count
func (r *GormReportRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?",
			[]analytics.ReportStatus{analytics.ReportStatusCompleted, analytics.ReportStatusFailed}, cutoff).
		Delete(&analytics.Report{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// classifyTransitionMiss names the reason a status-conditioned write matched
// zero rows
func (r *GormReportRepository) classifyTransitionMiss(ctx context.Context, id uuid.UUID, expected analytics.ReportStatus) error {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return shared.NewConflictError("REPORT_NOT_"+string(expected),
		fmt.Sprintf("Report is %s, not %s", current.Status, expected))
}

// applyFilter applies filter conditions to query
func (r *GormReportRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(SortClause(filter.OrderBy, filter.OrderDir, ReportSortFields, "created_at"))

	// Apply pagination
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if offset := filter.Offset(); offset > 0 {
			query = query.Offset(offset)
		}
	}

	return query
}

// applyFilterWithoutPagination applies filter conditions without pagination
func (r *GormReportRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "report_type":
			query = query.Where("report_type = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		case "requested_by":
			query = query.Where("requested_by = ?", value)
		}
	}

	return query
}

// Ensure GormReportRepository implements analytics.ReportRepository
var _ analytics.ReportRepository = (*GormReportRepository)(nil)
