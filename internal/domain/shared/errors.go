package shared

// DomainError represents a domain-level error with a machine-readable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	kind    error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap exposes the error kind so callers can match with errors.Is
func (e *DomainError) Unwrap() error {
	return e.kind
}

// Error kinds. Every error produced by the domain matches exactly one of
// these via errors.Is.
var (
	ErrInvalidInput      = &DomainError{Code: "INVALID_INPUT", Message: "invalid input provided"}
	ErrConflict          = &DomainError{Code: "CONFLICT", Message: "resource conflicts with existing state"}
	ErrNotFound          = &DomainError{Code: "NOT_FOUND", Message: "resource not found"}
	ErrInvalidState      = &DomainError{Code: "INVALID_STATE", Message: "operation not allowed in current state"}
	ErrPricingUnresolved = &DomainError{Code: "PRICING_UNRESOLVED", Message: "no applicable price found"}
)

// NewValidationError creates an error for malformed or out-of-range input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, kind: ErrInvalidInput}
}

// NewConflictError creates an error for uniqueness or concurrency violations
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, kind: ErrConflict}
}

// NewNotFoundError creates an error for missing resources
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, kind: ErrNotFound}
}

// NewStateError creates an error for operations rejected by lifecycle state
func NewStateError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, kind: ErrInvalidState}
}

// NewPricingUnresolvedError creates an error for price lookups with no match
func NewPricingUnresolvedError(message string) *DomainError {
	return &DomainError{Code: "PRICING_UNRESOLVED", Message: message, kind: ErrPricingUnresolved}
}
