package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
)

// SalesRecord represents one month of actual sales for a customer/product
// pair. Records are immutable facts produced by an external ingestion
// collaborator and consumed read-only by the analytics engine.
type SalesRecord struct {
	shared.BaseEntity
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_sales_record_key"`
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_sales_record_key"`
	Year       int             `gorm:"not null;uniqueIndex:ux_sales_record_key"`
	Month      int             `gorm:"not null;uniqueIndex:ux_sales_record_key"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Revenue    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
}

// TableName returns the database table name
func (SalesRecord) TableName() string {
	return "sales_records"
}

// NewSalesRecord creates an actual-sales fact for one calendar month
// Revenue is always Quantity * UnitPrice
func NewSalesRecord(customerID, productID uuid.UUID, month valueobject.YearMonth, quantity, unitPrice decimal.Decimal) (*SalesRecord, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if month.IsZero() {
		return nil, shared.NewValidationError("INVALID_MONTH", "Sales month is required")
	}
	if quantity.IsNegative() {
		return nil, shared.NewValidationError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewValidationError("INVALID_PRICE", "Unit price cannot be negative")
	}

	return &SalesRecord{
		BaseEntity: shared.NewBaseEntity(),
		CustomerID: customerID,
		ProductID:  productID,
		Year:       month.Year(),
		Month:      int(month.Month()),
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Revenue:    quantity.Mul(unitPrice),
	}, nil
}

// YearMonth returns the record's calendar month
func (r *SalesRecord) YearMonth() valueobject.YearMonth {
	ym, _ := valueobject.NewYearMonth(r.Year, time.Month(r.Month))
	return ym
}
