package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sop/backend/internal/domain/shared"
)

// Resolver is a domain service that resolves the effective unit price for a
// forecast line. Resolution is deterministic and side-effect free: it either
// reads the price matrix or validates the caller-supplied override, and never
// writes anything.
type Resolver struct {
	matrix MatrixRepository
}

// NewResolver creates a new price resolver
func NewResolver(matrix MatrixRepository) *Resolver {
	return &Resolver{matrix: matrix}
}

// Resolve returns the unit price for a customer/product pair.
//
// With useCustomerPrice the active matrix entry's price is authoritative and
// any override is ignored; a missing or unpriced entry is a resolution
// failure. Without it the override must be present and non-negative.
func (r *Resolver) Resolve(ctx context.Context, customerID, productID uuid.UUID, useCustomerPrice bool, override *decimal.Decimal) (decimal.Decimal, error) {
	if !useCustomerPrice {
		return resolveOverride(override)
	}

	entry, err := r.matrix.FindActiveByPair(ctx, customerID, productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, shared.NewPricingUnresolvedError(
				fmt.Sprintf("No active customer price for customer %s and product %s", customerID, productID))
		}
		return decimal.Zero, err
	}
	if !entry.HasPrice() {
		return decimal.Zero, shared.NewPricingUnresolvedError(
			fmt.Sprintf("Matrix entry for customer %s and product %s has no price", customerID, productID))
	}

	return *entry.Price, nil
}

func resolveOverride(override *decimal.Decimal) (decimal.Decimal, error) {
	if override == nil {
		return decimal.Zero, shared.NewPricingUnresolvedError("Override price is required when customer pricing is disabled")
	}
	if override.IsNegative() {
		return decimal.Zero, shared.NewPricingUnresolvedError("Override price cannot be negative")
	}
	return *override, nil
}

// BatchPriceRequest is one product's pricing input for batch resolution
type BatchPriceRequest struct {
	ProductID        uuid.UUID
	UseCustomerPrice bool
	OverridePrice    *decimal.Decimal
}

// BatchPriceResult carries per-product prices and per-product resolution
// failures; one failed product never aborts the batch
type BatchPriceResult struct {
	Prices map[uuid.UUID]decimal.Decimal
	Errors map[uuid.UUID]error
}

// ResolveBatch resolves prices for many products of one customer using a
// single matrix scan. Storage failures abort the batch; per-product
// resolution failures are collected in the result.
func (r *Resolver) ResolveBatch(ctx context.Context, customerID uuid.UUID, requests []BatchPriceRequest) (*BatchPriceResult, error) {
	result := &BatchPriceResult{
		Prices: make(map[uuid.UUID]decimal.Decimal, len(requests)),
		Errors: make(map[uuid.UUID]error),
	}

	needsMatrix := false
	for _, req := range requests {
		if req.UseCustomerPrice {
			needsMatrix = true
			break
		}
	}

	matrixPrices := make(map[uuid.UUID]*decimal.Decimal)
	if needsMatrix {
		entries, err := r.matrix.FindActiveByCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			matrixPrices[entries[i].ProductID] = entries[i].Price
		}
	}

	for _, req := range requests {
		if !req.UseCustomerPrice {
			price, err := resolveOverride(req.OverridePrice)
			if err != nil {
				result.Errors[req.ProductID] = err
				continue
			}
			result.Prices[req.ProductID] = price
			continue
		}

		price, ok := matrixPrices[req.ProductID]
		if !ok {
			result.Errors[req.ProductID] = shared.NewPricingUnresolvedError(
				fmt.Sprintf("No active customer price for customer %s and product %s", customerID, req.ProductID))
			continue
		}
		if price == nil {
			result.Errors[req.ProductID] = shared.NewPricingUnresolvedError(
				fmt.Sprintf("Matrix entry for customer %s and product %s has no price", customerID, req.ProductID))
			continue
		}
		result.Prices[req.ProductID] = *price
	}

	return result, nil
}
