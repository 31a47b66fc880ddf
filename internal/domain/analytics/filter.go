package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/domain/shared/valueobject"
)

// Filter is the uniform criteria record accepted by every report function.
// All fields are optional; a report that needs one of them (such as the
// cycle-scoped reports) validates its presence itself.
//
// Year/Month and the date range express the same month-matching predicate;
// when both are supplied they must agree.
type Filter struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	ProductID  *uuid.UUID `json:"product_id,omitempty"`
	CycleID    *uuid.UUID `json:"cycle_id,omitempty"`
	Year       *int       `json:"year,omitempty"`
	Month      *int       `json:"month,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
}

// Validate checks field ranges and the consistency of the two period forms
func (f Filter) Validate() error {
	if f.Month != nil {
		if *f.Month < 1 || *f.Month > 12 {
			return shared.NewValidationError("INVALID_FILTER_MONTH",
				fmt.Sprintf("Month must be between 1 and 12, got %d", *f.Month))
		}
		if f.Year == nil {
			return shared.NewValidationError("INVALID_FILTER_MONTH", "Month filter requires a year")
		}
	}
	if f.Year != nil && (*f.Year < 1 || *f.Year > 9999) {
		return shared.NewValidationError("INVALID_FILTER_YEAR",
			fmt.Sprintf("Year out of range: %d", *f.Year))
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return shared.NewValidationError("INVALID_FILTER_RANGE", "Date range start is after its end")
	}

	if _, _, err := f.MonthBounds(); err != nil {
		return err
	}
	return nil
}

// MonthBounds resolves the filter's period to inclusive month bounds.
// A nil bound means the side is unbounded. Disagreement between the
// year/month form and the date-range form is a validation error.
func (f Filter) MonthBounds() (*valueobject.YearMonth, *valueobject.YearMonth, error) {
	var from, to *valueobject.YearMonth

	if f.Year != nil {
		var lo, hi valueobject.YearMonth
		var err error
		if f.Month != nil {
			lo, err = valueobject.NewYearMonth(*f.Year, time.Month(*f.Month))
			hi = lo
		} else {
			lo, err = valueobject.NewYearMonth(*f.Year, time.January)
			if err == nil {
				hi, err = valueobject.NewYearMonth(*f.Year, time.December)
			}
		}
		if err != nil {
			return nil, nil, shared.NewValidationError("INVALID_FILTER_YEAR", err.Error())
		}
		from, to = &lo, &hi
	}

	if f.DateFrom != nil {
		lo := valueobject.YearMonthOf(*f.DateFrom)
		if from != nil && !lo.Equal(*from) {
			return nil, nil, shared.NewValidationError("INVALID_FILTER_RANGE",
				"Date range disagrees with the year/month filter")
		}
		from = &lo
	}
	if f.DateTo != nil {
		hi := valueobject.YearMonthOf(*f.DateTo)
		if to != nil && !hi.Equal(*to) {
			return nil, nil, shared.NewValidationError("INVALID_FILTER_RANGE",
				"Date range disagrees with the year/month filter")
		}
		to = &hi
	}

	if from != nil && to != nil && from.After(*to) {
		return nil, nil, shared.NewValidationError("INVALID_FILTER_RANGE", "Month range start is after its end")
	}
	return from, to, nil
}

// Canonical returns the filter in canonical sorted-key form. Equal filter
// content yields equal canonical strings regardless of construction order;
// dates are normalized to day precision.
func (f Filter) Canonical() string {
	parts := make([]string, 0, 7)
	if f.CustomerID != nil {
		parts = append(parts, "customer_id="+f.CustomerID.String())
	}
	if f.ProductID != nil {
		parts = append(parts, "product_id="+f.ProductID.String())
	}
	if f.CycleID != nil {
		parts = append(parts, "cycle_id="+f.CycleID.String())
	}
	if f.Year != nil {
		parts = append(parts, "year="+strconv.Itoa(*f.Year))
	}
	if f.Month != nil {
		parts = append(parts, "month="+strconv.Itoa(*f.Month))
	}
	if f.DateFrom != nil {
		parts = append(parts, "date_from="+f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		parts = append(parts, "date_to="+f.DateTo.Format("2006-01-02"))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Fingerprint returns the stable cache key for a report type and filter:
// the hex SHA-256 of the type concatenated with the canonical filter form.
func Fingerprint(reportType ReportType, filter Filter) string {
	sum := sha256.Sum256([]byte(string(reportType) + "|" + filter.Canonical()))
	return hex.EncodeToString(sum[:])
}
