package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// YearMonthFormat is the canonical string layout for a calendar month
const YearMonthFormat = "2006-01"

// YearMonth is a value object representing a calendar month ("YYYY-MM")
// It is immutable - all operations return new YearMonth instances
type YearMonth struct {
	year  int
	month time.Month
}

// NewYearMonth creates a YearMonth from a year and month
func NewYearMonth(year int, month time.Month) (YearMonth, error) {
	if year < 1 || year > 9999 {
		return YearMonth{}, fmt.Errorf("year out of range: %d", year)
	}
	if month < time.January || month > time.December {
		return YearMonth{}, fmt.Errorf("month out of range: %d", int(month))
	}
	return YearMonth{year: year, month: month}, nil
}

// ParseYearMonth parses the canonical "YYYY-MM" representation
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(YearMonthFormat, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return YearMonth{year: t.Year(), month: t.Month()}, nil
}

// YearMonthOf returns the calendar month containing the given instant
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{year: t.Year(), month: t.Month()}
}

// Year returns the calendar year
func (ym YearMonth) Year() int {
	return ym.year
}

// Month returns the calendar month
func (ym YearMonth) Month() time.Month {
	return ym.month
}

// IsZero checks whether the value is the uninitialized YearMonth
func (ym YearMonth) IsZero() bool {
	return ym.year == 0 && ym.month == 0
}

// AddMonths returns the month n months after (or before, if negative) this one
func (ym YearMonth) AddMonths(n int) YearMonth {
	t := time.Date(ym.year, ym.month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return YearMonth{year: t.Year(), month: t.Month()}
}

// Next returns the following calendar month
func (ym YearMonth) Next() YearMonth {
	return ym.AddMonths(1)
}

// MonthsUntil returns the signed number of months from this month to other
func (ym YearMonth) MonthsUntil(other YearMonth) int {
	return (other.year-ym.year)*12 + int(other.month) - int(ym.month)
}

// Compare returns -1, 0, or 1 depending on chronological order
func (ym YearMonth) Compare(other YearMonth) int {
	switch {
	case ym.year < other.year:
		return -1
	case ym.year > other.year:
		return 1
	case ym.month < other.month:
		return -1
	case ym.month > other.month:
		return 1
	default:
		return 0
	}
}

// Before checks if this month is strictly before the other
func (ym YearMonth) Before(other YearMonth) bool {
	return ym.Compare(other) < 0
}

// After checks if this month is strictly after the other
func (ym YearMonth) After(other YearMonth) bool {
	return ym.Compare(other) > 0
}

// Equal checks value equality
func (ym YearMonth) Equal(other YearMonth) bool {
	return ym.year == other.year && ym.month == other.month
}

// FirstDay returns midnight UTC on the first day of the month
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.year, ym.month, 1, 0, 0, 0, 0, time.UTC)
}

// String returns the canonical "YYYY-MM" representation
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.year, int(ym.month))
}

// Value implements driver.Valuer for database storage
func (ym YearMonth) Value() (driver.Value, error) {
	return ym.String(), nil
}

// Scan implements sql.Scanner for database retrieval
func (ym *YearMonth) Scan(value any) error {
	if value == nil {
		return errors.New("cannot scan nil into YearMonth")
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into YearMonth", value)
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (ym *YearMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
