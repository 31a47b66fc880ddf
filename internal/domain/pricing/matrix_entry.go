package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
)

// MatrixEntry represents a customer-specific price and cost record for a
// product. It is the pricing source of truth when a forecast opts into
// customer pricing.
type MatrixEntry struct {
	shared.BaseEntity
	CustomerID uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_price_matrix_pair"`
	ProductID  uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_price_matrix_pair"`
	Price      *decimal.Decimal `gorm:"type:numeric(20,4)"`
	Cost       *decimal.Decimal `gorm:"type:numeric(20,4)"`
	IsActive   bool             `gorm:"not null;default:true"`
}

// TableName returns the database table name
func (MatrixEntry) TableName() string {
	return "price_matrix_entries"
}

// NewMatrixEntry creates an active matrix entry for a customer/product pair
func NewMatrixEntry(customerID, productID uuid.UUID, price, cost *decimal.Decimal) (*MatrixEntry, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if price != nil && price.IsNegative() {
		return nil, shared.NewValidationError("INVALID_PRICE", "Price cannot be negative")
	}
	if cost != nil && cost.IsNegative() {
		return nil, shared.NewValidationError("INVALID_COST", "Cost cannot be negative")
	}

	return &MatrixEntry{
		BaseEntity: shared.NewBaseEntity(),
		CustomerID: customerID,
		ProductID:  productID,
		Price:      price,
		Cost:       cost,
		IsActive:   true,
	}, nil
}

// HasPrice checks whether the entry carries a customer price.
// A zero price is a legitimate price; only absence counts as unpriced.
func (e *MatrixEntry) HasPrice() bool {
	return e.Price != nil
}

// CostOrZero returns the entry cost, treating absence as zero
func (e *MatrixEntry) CostOrZero() decimal.Decimal {
	if e.Cost == nil {
		return decimal.Zero
	}
	return *e.Cost
}

// UpdatePrice replaces the customer price
func (e *MatrixEntry) UpdatePrice(price *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return shared.NewValidationError("INVALID_PRICE", "Price cannot be negative")
	}
	e.Price = price
	return nil
}

// UpdateCost replaces the product cost
func (e *MatrixEntry) UpdateCost(cost *decimal.Decimal) error {
	if cost != nil && cost.IsNegative() {
		return shared.NewValidationError("INVALID_COST", "Cost cannot be negative")
	}
	e.Cost = cost
	return nil
}

// Activate marks the entry as usable for price resolution
func (e *MatrixEntry) Activate() {
	e.IsActive = true
}

// Deactivate withdraws the entry from price resolution
func (e *MatrixEntry) Deactivate() {
	e.IsActive = false
}
