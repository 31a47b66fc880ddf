package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
)

// MatrixRepository defines the interface for price matrix persistence
type MatrixRepository interface {
	shared.Repository[MatrixEntry]

	// FindByPair finds the entry for a customer/product pair
	FindByPair(ctx context.Context, customerID, productID uuid.UUID) (*MatrixEntry, error)

	// FindActiveByPair finds the active entry for a customer/product pair
	FindActiveByPair(ctx context.Context, customerID, productID uuid.UUID) (*MatrixEntry, error)

	// FindActiveByCustomer finds all active entries for a customer
	FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]MatrixEntry, error)

	// Upsert creates the entry for its customer/product pair or updates the
	// existing one
	Upsert(ctx context.Context, entry *MatrixEntry) error
}
