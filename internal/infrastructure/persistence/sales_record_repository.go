package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/sales"
	"github.com/sop/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// salesRecordUpsertBatchSize bounds the VALUES list of one upsert statement
const salesRecordUpsertBatchSize = 200

// GormSalesRecordRepository implements SalesRecordRepository using GORM
type GormSalesRecordRepository struct {
	db *gorm.DB
}

// NewGormSalesRecordRepository creates a new GormSalesRecordRepository
func NewGormSalesRecordRepository(db *gorm.DB) *GormSalesRecordRepository {
	return &GormSalesRecordRepository{db: db}
}

// FindByID finds a sales record by its ID
func (r *GormSalesRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.SalesRecord, error) {
	var record sales.SalesRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// FindByKey finds the record for a (customer, product, year, month) key
func (r *GormSalesRecordRepository) FindByKey(ctx context.Context, customerID, productID uuid.UUID, year, month int) (*sales.SalesRecord, error) {
	var record sales.SalesRecord
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ? AND year = ? AND month = ?",
			customerID, productID, year, month).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// FindAll finds sales records matching the filter
func (r *GormSalesRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]sales.SalesRecord, error) {
	var records []sales.SalesRecord
	query := r.db.WithContext(ctx).Model(&sales.SalesRecord{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Count counts sales records matching the filter
func (r *GormSalesRecordRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&sales.SalesRecord{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a sales record
func (r *GormSalesRecordRepository) Save(ctx context.Context, record *sales.SalesRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// BatchUpsert inserts records, replacing quantity, price and revenue of
// records that already exist for the same (customer, product, year, month)
// key. Ingestion runs replay the same file without duplicating rows.
func (r *GormSalesRecordRepository) BatchUpsert(ctx context.Context, records []sales.SalesRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "customer_id"},
			{Name: "product_id"},
			{Name: "year"},
			{Name: "month"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity",
			"unit_price",
			"revenue",
			"updated_at",
		}),
	}).CreateInBatches(records, salesRecordUpsertBatchSize).Error
}

// Delete removes a sales record
func (r *GormSalesRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&sales.SalesRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// applyFilter applies filter conditions to query
func (r *GormSalesRecordRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(SortClause(filter.OrderBy, filter.OrderDir, SalesRecordSortFields, "created_at"))

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
func (r *GormSalesRecordRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "customer_id":
			query = query.Where("customer_id = ?", value)
		case "product_id":
			query = query.Where("product_id = ?", value)
		case "year":
			query = query.Where("year = ?", value)
		case "month":
			query = query.Where("month = ?", value)
		}
	}

	return query
}

// Ensure GormSalesRecordRepository implements sales.SalesRecordRepository
var _ sales.SalesRecordRepository = (*GormSalesRecordRepository)(nil)
