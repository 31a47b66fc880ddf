package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
)

// ReportType identifies one of the eight report kinds
type ReportType string

const (
	ReportTypeSalesSummary        ReportType = "SALES_SUMMARY"
	ReportTypeForecastVsActual    ReportType = "FORECAST_VS_ACTUAL"
	ReportTypeMonthlyDashboard    ReportType = "MONTHLY_DASHBOARD"
	ReportTypeCustomerPerformance ReportType = "CUSTOMER_PERFORMANCE"
	ReportTypeProductPerformance  ReportType = "PRODUCT_PERFORMANCE"
	ReportTypeCycleSubmission     ReportType = "CYCLE_SUBMISSION_STATUS"
	ReportTypeGrossProfit         ReportType = "GROSS_PROFIT"
	ReportTypeForecastAccuracy    ReportType = "FORECAST_ACCURACY"
)

// IsValid checks if the type is a known ReportType
func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeSalesSummary, ReportTypeForecastVsActual, ReportTypeMonthlyDashboard,
		ReportTypeCustomerPerformance, ReportTypeProductPerformance, ReportTypeCycleSubmission,
		ReportTypeGrossProfit, ReportTypeForecastAccuracy:
		return true
	}
	return false
}

// String returns the string representation of ReportType
func (t ReportType) String() string {
	return string(t)
}

// ReportStatus represents the generation status of a cached report
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "PENDING"
	ReportStatusGenerating ReportStatus = "GENERATING"
	ReportStatusCompleted  ReportStatus = "COMPLETED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// IsValid checks if the status is a valid ReportStatus
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusPending, ReportStatusGenerating, ReportStatusCompleted, ReportStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of ReportStatus
func (s ReportStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s ReportStatus) CanTransitionTo(target ReportStatus) bool {
	switch s {
	case ReportStatusPending:
		return target == ReportStatusGenerating || target == ReportStatusFailed
	case ReportStatusGenerating:
		return target == ReportStatusCompleted || target == ReportStatusFailed
	case ReportStatusCompleted, ReportStatusFailed:
		return false // Terminal states
	}
	return false
}

// IsInFlight reports whether generation is still pending or running
func (s ReportStatus) IsInFlight() bool {
	return s == ReportStatusPending || s == ReportStatusGenerating
}

// Report represents cached report metadata. The payload is the generated
// aggregate document; the rendered artifact itself is owned by the external
// renderer and only referenced here.
type Report struct {
	shared.BaseEntity
	ReportType   ReportType   `gorm:"type:varchar(32);not null;index"`
	Fingerprint  string       `gorm:"type:char(64);not null;index"`
	Status       ReportStatus `gorm:"type:varchar(16);not null;index"`
	Filters      string       `gorm:"type:text;not null"`
	Payload      []byte       `gorm:"type:jsonb"`
	ArtifactRef  string       `gorm:"type:varchar(255)"`
	ErrorMessage string       `gorm:"type:text"`
	RequestedBy  uuid.UUID    `gorm:"type:uuid;not null"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// TableName returns the database table name
func (Report) TableName() string {
	return "reports"
}

// NewReport creates PENDING report metadata for a request
func NewReport(reportType ReportType, filter Filter, requestedBy uuid.UUID) (*Report, error) {
	if !reportType.IsValid() {
		return nil, shared.NewValidationError("INVALID_REPORT_TYPE",
			fmt.Sprintf("Unknown report type %q", string(reportType)))
	}
	if requestedBy == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_REQUESTER", "Requester ID cannot be empty")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	filters, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal report filter: %w", err)
	}

	return &Report{
		BaseEntity:  shared.NewBaseEntity(),
		ReportType:  reportType,
		Fingerprint: Fingerprint(reportType, filter),
		Status:      ReportStatusPending,
		Filters:     string(filters),
		RequestedBy: requestedBy,
	}, nil
}

// Filter decodes the stored filter criteria
func (r *Report) Filter() (Filter, error) {
	var filter Filter
	if err := json.Unmarshal([]byte(r.Filters), &filter); err != nil {
		return Filter{}, fmt.Errorf("unmarshal report filter: %w", err)
	}
	return filter, nil
}

// Start transitions the report from PENDING to GENERATING
func (r *Report) Start() error {
	if !r.Status.CanTransitionTo(ReportStatusGenerating) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot start generating report in %s status", r.Status))
	}
	now := time.Now()
	r.Status = ReportStatusGenerating
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete transitions the report to COMPLETED and stores the payload
func (r *Report) Complete(payload []byte) error {
	if !r.Status.CanTransitionTo(ReportStatusCompleted) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot complete report in %s status", r.Status))
	}
	now := time.Now()
	r.Status = ReportStatusCompleted
	r.Payload = payload
	r.ErrorMessage = ""
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail transitions the report to FAILED and records the error description
func (r *Report) Fail(message string) error {
	if !r.Status.CanTransitionTo(ReportStatusFailed) {
		return shared.NewStateError("INVALID_STATE",
			fmt.Sprintf("Cannot fail report in %s status", r.Status))
	}
	now := time.Now()
	r.Status = ReportStatusFailed
	r.ErrorMessage = message
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// AttachArtifact records the external renderer's artifact reference
// Only allowed on a completed report
func (r *Report) AttachArtifact(artifactRef string) error {
	if r.Status != ReportStatusCompleted {
		return shared.NewStateError("INVALID_STATE", "Cannot attach an artifact to an incomplete report")
	}
	artifactRef = strings.TrimSpace(artifactRef)
	if artifactRef == "" {
		return shared.NewValidationError("INVALID_ARTIFACT_REF", "Artifact reference cannot be empty")
	}
	r.ArtifactRef = artifactRef
	r.Touch()
	return nil
}

// FreshAt checks whether a completed report is still within maxAge
func (r *Report) FreshAt(now time.Time, maxAge time.Duration) bool {
	if r.Status != ReportStatusCompleted || r.CompletedAt == nil {
		return false
	}
	return now.Sub(*r.CompletedAt) <= maxAge
}
