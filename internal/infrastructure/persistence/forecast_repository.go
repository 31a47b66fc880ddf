package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormForecastRepository implements ForecastRepository using GORM
//
// Uniqueness of the active (cycle, customer, product, submitter) key is
// enforced by a partial unique index over non-rejected rows; CreateExclusive
// inserts against it instead of checking first. Status transitions carry the
// expected prior status in the WHERE clause and classify a zero-row result
// by reloading once.
type GormForecastRepository struct {
	db *gorm.DB
}

// NewGormForecastRepository creates a new GormForecastRepository
func NewGormForecastRepository(db *gorm.DB) *GormForecastRepository {
	return &GormForecastRepository{db: db}
}

// withLines preloads the 16 window lines in chronological order
func withLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("year ASC, month ASC")
	})
}

// FindByID finds a forecast by its ID with its lines
func (r *GormForecastRepository) FindByID(ctx context.Context, id uuid.UUID) (*planning.Forecast, error) {
	var forecast planning.Forecast
	if err := withLines(r.db.WithContext(ctx)).First(&forecast, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &forecast, nil
}

// FindActiveByKey finds the non-rejected forecast for a
// (cycle, customer, product, submitter) key
func (r *GormForecastRepository) FindActiveByKey(ctx context.Context, cycleID, customerID, productID, submitterID uuid.UUID) (*planning.Forecast, error) {
	var forecast planning.Forecast
	err := withLines(r.db.WithContext(ctx)).
		Where("cycle_id = ? AND customer_id = ? AND product_id = ? AND submitter_id = ?",
			cycleID, customerID, productID, submitterID).
		Where("status <> ?", planning.ForecastStatusRejected).
		First(&forecast).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &forecast, nil
}

// FindAll finds forecasts matching the filter, lines included
func (r *GormForecastRepository) FindAll(ctx context.Context, filter shared.Filter) ([]planning.Forecast, error) {
	var forecasts []planning.Forecast
	query := withLines(r.db.WithContext(ctx)).Model(&planning.Forecast{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&forecasts).Error; err != nil {
		return nil, err
	}
	return forecasts, nil
}

// Count counts forecasts matching the filter
func (r *GormForecastRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&planning.Forecast{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateExclusive persists a new draft forecast and its lines. A concurrent
// insert for the same active key loses against the partial unique index.
func (r *GormForecastRepository) CreateExclusive(ctx context.Context, forecast *planning.Forecast) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Omit("Lines").
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(forecast)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return shared.NewConflictError("FORECAST_EXISTS",
					"An active forecast already exists for this customer, product and submitter in the cycle")
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewConflictError("FORECAST_EXISTS",
				"An active forecast already exists for this customer, product and submitter in the cycle")
		}
		if len(forecast.Lines) == 0 {
			return nil
		}
		return tx.Create(&forecast.Lines).Error
	})
}

// Update rewrites a draft forecast's header and all lines. The header update
// is guarded by the stored version and the DRAFT status so a concurrent
// editor or submitter makes this writer lose rather than overwrite.
func (r *GormForecastRepository) Update(ctx context.Context, forecast *planning.Forecast) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&planning.Forecast{}).
			Where("id = ? AND status = ? AND version = ?",
				forecast.ID, planning.ForecastStatusDraft, forecast.Version).
			Updates(map[string]any{
				"use_customer_price":  forecast.UseCustomerPrice,
				"override_price":      forecast.OverridePrice,
				"total_quantity":      forecast.TotalQuantity,
				"total_revenue":       forecast.TotalRevenue,
				"previous_version_id": forecast.PreviousVersionID,
				"updated_at":          forecast.UpdatedAt,
				"version":             gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.classifyDraftMiss(tx, forecast.ID)
		}
		if err := tx.Where("forecast_id = ?", forecast.ID).Delete(&planning.ForecastLine{}).Error; err != nil {
			return err
		}
		return tx.Create(&forecast.Lines).Error
	})
	if err != nil {
		return err
	}
	forecast.IncrementVersion()
	return nil
}

// MarkSubmitted persists the DRAFT -> SUBMITTED transition
func (r *GormForecastRepository) MarkSubmitted(ctx context.Context, forecast *planning.Forecast) error {
	result := r.db.WithContext(ctx).Model(&planning.Forecast{}).
		Where("id = ? AND status = ?", forecast.ID, planning.ForecastStatusDraft).
		Updates(map[string]any{
			"status":       forecast.Status,
			"submitted_at": forecast.SubmittedAt,
			"updated_at":   forecast.UpdatedAt,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyDraftMiss(r.db.WithContext(ctx), forecast.ID)
	}
	forecast.IncrementVersion()
	return nil
}

// MarkReviewed persists the SUBMITTED -> APPROVED/REJECTED transition
func (r *GormForecastRepository) MarkReviewed(ctx context.Context, forecast *planning.Forecast) error {
	result := r.db.WithContext(ctx).Model(&planning.Forecast{}).
		Where("id = ? AND status = ?", forecast.ID, planning.ForecastStatusSubmitted).
		Updates(map[string]any{
			"status":         forecast.Status,
			"reviewed_at":    forecast.ReviewedAt,
			"reviewer_id":    forecast.ReviewerID,
			"review_comment": forecast.ReviewComment,
			"updated_at":     forecast.UpdatedAt,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var current planning.Forecast
		if err := r.db.WithContext(ctx).First(&current, "id = ?", forecast.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		return shared.NewStateError("FORECAST_NOT_SUBMITTED",
			fmt.Sprintf("Forecast is %s, not SUBMITTED", current.Status))
	}
	forecast.IncrementVersion()
	return nil
}

// DeleteDraft removes a draft forecast owned by the submitter, lines included
func (r *GormForecastRepository) DeleteDraft(ctx context.Context, id, submitterID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&planning.Forecast{},
			"id = ? AND submitter_id = ? AND status = ?", id, submitterID, planning.ForecastStatusDraft)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var current planning.Forecast
			if err := tx.First(&current, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return shared.ErrNotFound
				}
				return err
			}
			if current.Status != planning.ForecastStatusDraft {
				return shared.NewStateError("FORECAST_NOT_DRAFT",
					fmt.Sprintf("Cannot delete a %s forecast", current.Status))
			}
			return shared.NewValidationError("FORECAST_NOT_OWNED",
				"Forecast belongs to another submitter")
		}
		return tx.Where("forecast_id = ?", id).Delete(&planning.ForecastLine{}).Error
	})
}

// ComputeCycleStatistics aggregates the cycle's submission counters in one
// pass. Rejected forecasts count toward neither total nor submitted.
func (r *GormForecastRepository) ComputeCycleStatistics(ctx context.Context, cycleID uuid.UUID) (planning.CycleStatistics, error) {
	type statsResult struct {
		TotalForecasts     int
		SubmittedForecasts int
		TotalReps          int
		SubmittedReps      int
	}

	var result statsResult
	err := r.db.WithContext(ctx).Table("forecasts").
		Select(`
			COUNT(CASE WHEN status <> 'REJECTED' THEN 1 END) as total_forecasts,
			COUNT(CASE WHEN status IN ('SUBMITTED', 'APPROVED') THEN 1 END) as submitted_forecasts,
			COUNT(DISTINCT CASE WHEN status <> 'REJECTED' THEN submitter_id END) as total_reps,
			COUNT(DISTINCT CASE WHEN status IN ('SUBMITTED', 'APPROVED') THEN submitter_id END) as submitted_reps
		`).
		Where("cycle_id = ?", cycleID).
		Scan(&result).Error
	if err != nil {
		return planning.CycleStatistics{}, err
	}

	return planning.CycleStatistics{
		TotalForecasts:     result.TotalForecasts,
		SubmittedForecasts: result.SubmittedForecasts,
		TotalReps:          result.TotalReps,
		SubmittedReps:      result.SubmittedReps,
	}, nil
}

// ComputeSubmitterProgress aggregates per-submitter submission progress for a cycle
func (r *GormForecastRepository) ComputeSubmitterProgress(ctx context.Context, cycleID uuid.UUID) ([]planning.SubmitterProgress, error) {
	type progressResult struct {
		SubmitterID uuid.UUID
		Total       int
		Submitted   int
	}

	var results []progressResult
	err := r.db.WithContext(ctx).Table("forecasts").
		Select(`
			submitter_id,
			COUNT(CASE WHEN status <> 'REJECTED' THEN 1 END) as total,
			COUNT(CASE WHEN status IN ('SUBMITTED', 'APPROVED') THEN 1 END) as submitted
		`).
		Where("cycle_id = ?", cycleID).
		Group("submitter_id").
		Order("submitter_id ASC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	progress := make([]planning.SubmitterProgress, len(results))
	for i, row := range results {
		progress[i] = planning.SubmitterProgress{
			SubmitterID: row.SubmitterID,
			Total:       row.Total,
			Submitted:   row.Submitted,
		}
	}
	return progress, nil
}

// classifyDraftMiss names the reason a DRAFT-conditioned write matched zero
// rows: the forecast is gone, no longer DRAFT, or changed underneath a
// version-guarded statement
func (r *GormForecastRepository) classifyDraftMiss(tx *gorm.DB, id uuid.UUID) error {
	var current planning.Forecast
	if err := tx.First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if current.Status != planning.ForecastStatusDraft {
		return shared.NewStateError("FORECAST_NOT_DRAFT",
			fmt.Sprintf("Forecast is %s, not DRAFT", current.Status))
	}
	return shared.NewConflictError("FORECAST_MODIFIED", "Forecast was modified concurrently")
}

// applyFilter applies filter conditions to query
func (r *GormForecastRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(SortClause(filter.OrderBy, filter.OrderDir, ForecastSortFields, "created_at"))

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
func (r *GormForecastRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "cycle_id":
			query = query.Where("cycle_id = ?", value)
		case "customer_id":
			query = query.Where("customer_id = ?", value)
		case "product_id":
			query = query.Where("product_id = ?", value)
		case "submitter_id":
			query = query.Where("submitter_id = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		}
	}

	return query
}

// Ensure GormForecastRepository implements planning.ForecastRepository
var _ planning.ForecastRepository = (*GormForecastRepository)(nil)
