package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/pricing"
	"github.com/sop/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMatrixRepository implements MatrixRepository using GORM
type GormMatrixRepository struct {
	db *gorm.DB
}

// NewGormMatrixRepository creates a new GormMatrixRepository
func NewGormMatrixRepository(db *gorm.DB) *GormMatrixRepository {
	return &GormMatrixRepository{db: db}
}

// FindByID finds a matrix entry by its ID
func (r *GormMatrixRepository) FindByID(ctx context.Context, id uuid.UUID) (*pricing.MatrixEntry, error) {
	var entry pricing.MatrixEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByPair finds the entry for a customer/product pair
func (r *GormMatrixRepository) FindByPair(ctx context.Context, customerID, productID uuid.UUID) (*pricing.MatrixEntry, error) {
	var entry pricing.MatrixEntry
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindActiveByPair finds the active entry for a customer/product pair
func (r *GormMatrixRepository) FindActiveByPair(ctx context.Context, customerID, productID uuid.UUID) (*pricing.MatrixEntry, error) {
	var entry pricing.MatrixEntry
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ? AND is_active = ?", customerID, productID, true).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindActiveByCustomer finds all active entries for a customer
func (r *GormMatrixRepository) FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]pricing.MatrixEntry, error) {
	var entries []pricing.MatrixEntry
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND is_active = ?", customerID, true).
		Order("product_id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindAll finds matrix entries matching the filter
func (r *GormMatrixRepository) FindAll(ctx context.Context, filter shared.Filter) ([]pricing.MatrixEntry, error) {
	var entries []pricing.MatrixEntry
	query := r.db.WithContext(ctx).Model(&pricing.MatrixEntry{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count counts matrix entries matching the filter
func (r *GormMatrixRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&pricing.MatrixEntry{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a matrix entry
func (r *GormMatrixRepository) Save(ctx context.Context, entry *pricing.MatrixEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// Upsert creates the entry for its customer/product pair or updates the
// existing one in place
func (r *GormMatrixRepository) Upsert(ctx context.Context, entry *pricing.MatrixEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price",
			"cost",
			"is_active",
			"updated_at",
		}),
	}).Create(entry).Error
}

// Delete removes a matrix entry
func (r *GormMatrixRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&pricing.MatrixEntry{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// applyFilter applies filter conditions to query
func (r *GormMatrixRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(SortClause(filter.OrderBy, filter.OrderDir, MatrixEntrySortFields, "created_at"))

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
func (r *GormMatrixRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "customer_id":
			query = query.Where("customer_id = ?", value)
		case "product_id":
			query = query.Where("product_id = ?", value)
		case "is_active":
			query = query.Where("is_active = ?", value)
		}
	}

	return query
}

// Ensure GormMatrixRepository implements pricing.MatrixRepository
var _ pricing.MatrixRepository = (*GormMatrixRepository)(nil)
