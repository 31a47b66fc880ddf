package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCycleRepository implements CycleRepository using GORM
//
// Status transitions are single conditional UPDATE statements carrying the
// expected prior status (and the no-other-open check) in the WHERE clause.
// A transition that matches zero rows reloads the row once to name the
// conflict; it never retries.
type GormCycleRepository struct {
	db *gorm.DB
}

// NewGormCycleRepository creates a new GormCycleRepository
func NewGormCycleRepository(db *gorm.DB) *GormCycleRepository {
	return &GormCycleRepository{db: db}
}

// FindByID finds a cycle by its ID
func (r *GormCycleRepository) FindByID(ctx context.Context, id uuid.UUID) (*planning.Cycle, error) {
	var cycle planning.Cycle
	if err := r.db.WithContext(ctx).First(&cycle, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cycle, nil
}

// FindByName finds a cycle by its unique name
func (r *GormCycleRepository) FindByName(ctx context.Context, name string) (*planning.Cycle, error) {
	var cycle planning.Cycle
	if err := r.db.WithContext(ctx).First(&cycle, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cycle, nil
}

// FindOpen returns the currently open cycle, if any
func (r *GormCycleRepository) FindOpen(ctx context.Context) (*planning.Cycle, error) {
	var cycle planning.Cycle
	if err := r.db.WithContext(ctx).
		First(&cycle, "status = ?", planning.CycleStatusOpen).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cycle, nil
}

// FindAll finds cycles matching the filter
func (r *GormCycleRepository) FindAll(ctx context.Context, filter shared.Filter) ([]planning.Cycle, error) {
	var cycles []planning.Cycle
	query := r.db.WithContext(ctx).Model(&planning.Cycle{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

// Count counts cycles matching the filter
func (r *GormCycleRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&planning.Cycle{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create persists a new draft cycle. A second cycle with the same name loses
// against the unique index rather than against a lookup that could race.
func (r *GormCycleRepository) Create(ctx context.Context, cycle *planning.Cycle) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cycle)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("CYCLE_NAME_EXISTS",
				fmt.Sprintf("A planning cycle named %q already exists", cycle.Name))
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("CYCLE_NAME_EXISTS",
			fmt.Sprintf("A planning cycle named %q already exists", cycle.Name))
	}
	return nil
}

// TransitionToOpen moves a draft cycle to OPEN. The statement only matches
// while the cycle is still DRAFT and no other cycle is OPEN, so concurrent
// openers lose at the database.
func (r *GormCycleRepository) TransitionToOpen(ctx context.Context, cycle *planning.Cycle) error {
	result := r.db.WithContext(ctx).Model(&planning.Cycle{}).
		Where("id = ? AND status = ?", cycle.ID, planning.CycleStatusDraft).
		Where("NOT EXISTS (SELECT 1 FROM planning_cycles other WHERE other.status = ? AND other.id <> ?)",
			planning.CycleStatusOpen, cycle.ID).
		Updates(map[string]any{
			"status":     cycle.Status,
			"opened_at":  cycle.OpenedAt,
			"updated_at": cycle.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, cycle.ID)
		if err != nil {
			return err
		}
		if current.Status != planning.CycleStatusDraft {
			return shared.NewStateError("CYCLE_NOT_DRAFT",
				fmt.Sprintf("Cycle is %s, not DRAFT", current.Status))
		}
		return shared.NewConflictError("CYCLE_ALREADY_OPEN",
			"Another planning cycle is already open")
	}
	return nil
}

// TransitionToClosed moves an open cycle to CLOSED
func (r *GormCycleRepository) TransitionToClosed(ctx context.Context, cycle *planning.Cycle) error {
	result := r.db.WithContext(ctx).Model(&planning.Cycle{}).
		Where("id = ? AND status = ?", cycle.ID, planning.CycleStatusOpen).
		Updates(map[string]any{
			"status":     cycle.Status,
			"closed_at":  cycle.ClosedAt,
			"updated_at": cycle.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, cycle.ID)
		if err != nil {
			return err
		}
		return shared.NewStateError("CYCLE_NOT_OPEN",
			fmt.Sprintf("Cycle is %s, not OPEN", current.Status))
	}
	return nil
}

// RevertToDraft moves an open cycle back to DRAFT while its submitted
// counter is still zero. The counter lives in the same row, so the check and
// the transition are one statement.
func (r *GormCycleRepository) RevertToDraft(ctx context.Context, cycle *planning.Cycle) error {
	result := r.db.WithContext(ctx).Model(&planning.Cycle{}).
		Where("id = ? AND status = ? AND submitted_forecasts = 0", cycle.ID, planning.CycleStatusOpen).
		Updates(map[string]any{
			"status":     cycle.Status,
			"opened_at":  nil,
			"updated_at": cycle.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, cycle.ID)
		if err != nil {
			return err
		}
		if current.Status != planning.CycleStatusOpen {
			return shared.NewStateError("CYCLE_NOT_OPEN",
				fmt.Sprintf("Cycle is %s, not OPEN", current.Status))
		}
		return shared.NewStateError("CYCLE_HAS_SUBMISSIONS",
			fmt.Sprintf("Cycle already has %d submitted forecasts", current.SubmittedForecasts))
	}
	return nil
}

// UpdateStatistics replaces the cycle's aggregate submission counters
func (r *GormCycleRepository) UpdateStatistics(ctx context.Context, id uuid.UUID, stats planning.CycleStatistics) error {
	result := r.db.WithContext(ctx).Model(&planning.Cycle{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_forecasts":     stats.TotalForecasts,
			"submitted_forecasts": stats.SubmittedForecasts,
			"total_reps":          stats.TotalReps,
			"submitted_reps":      stats.SubmittedReps,
			"completion_pct":      stats.CompletionPct(),
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateDeadline replaces the submission deadline of a non-closed cycle
func (r *GormCycleRepository) UpdateDeadline(ctx context.Context, cycle *planning.Cycle) error {
	result := r.db.WithContext(ctx).Model(&planning.Cycle{}).
		Where("id = ? AND status <> ?", cycle.ID, planning.CycleStatusClosed).
		Updates(map[string]any{
			"deadline":   cycle.Deadline,
			"updated_at": cycle.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, cycle.ID); err != nil {
			return err
		}
		return shared.NewStateError("CYCLE_CLOSED",
			"Cannot change the deadline of a closed cycle")
	}
	return nil
}

// DeleteDraft removes a cycle while it is still in draft status
func (r *GormCycleRepository) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&planning.Cycle{}, "id = ? AND status = ?", id, planning.CycleStatusDraft)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return shared.NewStateError("CYCLE_NOT_DRAFT",
			fmt.Sprintf("Cannot delete a %s cycle", current.Status))
	}
	return nil
}

// applyFilter applies filter conditions to query
func (r *GormCycleRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(SortClause(filter.OrderBy, filter.OrderDir, CycleSortFields, "created_at"))

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
func (r *GormCycleRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "anchor_month":
			query = query.Where("anchor_month = ?", value)
		}
	}

	return query
}

// Ensure GormCycleRepository implements planning.CycleRepository
var _ planning.CycleRepository = (*GormCycleRepository)(nil)
