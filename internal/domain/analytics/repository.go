package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
)

// ReportRepository defines the interface for report cache metadata
// persistence. Status transitions are conditional writes keyed on the
// expected prior status.
type ReportRepository interface {
	// FindByID finds a report by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Report, error)

	// FindFreshByFingerprint returns the newest completed report with the
	// fingerprint whose generation finished within maxAge. The payload
	// column is not loaded; callers fetch it from the payload cache or via
	// FindByID.
	FindFreshByFingerprint(ctx context.Context, fingerprint string, maxAge time.Duration) (*Report, error)

	// FindInFlightByFingerprint returns a pending or generating report with
	// the fingerprint, if any
	FindInFlightByFingerprint(ctx context.Context, fingerprint string) (*Report, error)

	// FindAll finds reports with filtering
	FindAll(ctx context.Context, filter shared.Filter) ([]Report, error)

	// Count counts reports matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Create persists new pending report metadata, failing with a conflict
	// when a pending or generating report already exists for the same
	// fingerprint
	Create(ctx context.Context, report *Report) error

	// MarkGenerating persists the PENDING -> GENERATING transition
	MarkGenerating(ctx context.Context, report *Report) error

	// MarkCompleted persists the GENERATING -> COMPLETED transition with the
	// payload
	MarkCompleted(ctx context.Context, report *Report) error

	// MarkFailed moves an in-flight report to FAILED with its error message
	MarkFailed(ctx context.Context, report *Report) error

	// UpdateArtifactRef records the renderer's artifact reference
	UpdateArtifactRef(ctx context.Context, report *Report) error

	// DeleteFinishedBefore removes completed and failed reports whose
	// generation finished before the cutoff, returning the removed count
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PayloadCache is a fast lookaside store for completed report payloads keyed
// by fingerprint. Implementations must degrade gracefully: a cache failure
// is never fatal to report retrieval.
type PayloadCache interface {
	// GetPayload returns the cached payload for a fingerprint.
	// A miss is reported as shared.ErrNotFound.
	GetPayload(ctx context.Context, fingerprint string) ([]byte, error)

	// SetPayload stores a payload with a time-to-live
	SetPayload(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error

	// DeletePayload drops the cached payload for a fingerprint
	DeletePayload(ctx context.Context, fingerprint string) error
}
