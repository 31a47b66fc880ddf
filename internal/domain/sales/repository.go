package sales

import (
	"context"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
)

// SalesRecordRepository defines the interface for actual-sales persistence.
// Writes come from the external ingestion collaborator; the analytics engine
// only ever reads.
type SalesRecordRepository interface {
	shared.Repository[SalesRecord]

	// FindByKey finds the record for a (customer, product, year, month) key
	FindByKey(ctx context.Context, customerID, productID uuid.UUID, year, month int) (*SalesRecord, error)

	// BatchUpsert inserts records, replacing quantity and price of records
	// that already exist for the same key
	BatchUpsert(ctx context.Context, records []SalesRecord) error
}
