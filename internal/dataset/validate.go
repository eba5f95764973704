package dataset

import (
	"fmt"
	"strings"
	"time"
)

// MinRows is the smallest dataset the fitting routine accepts.
const MinRows = 15

const dateLayout = "2006-01-02"

// Requirements names the columns a fit reads.
type Requirements struct {
	DateColumn     string
	TargetColumn   string
	ChannelColumns []string
	ControlColumns []string
}

// Validate checks row count, date format and that every numeric column
// parses. Checks run in that order so the first reported problem is the
// most fundamental one.
func Validate(f *Frame, req Requirements) error {
	if f.Len() < MinRows {
		return fmt.Errorf("%w: dataset must have at least %d rows for reliable model fitting, got %d",
			ErrInsufficientData, MinRows, f.Len())
	}

	if err := ValidateDates(f, req.DateColumn); err != nil {
		return err
	}

	numeric := append([]string{req.TargetColumn}, req.ChannelColumns...)
	numeric = append(numeric, req.ControlColumns...)
	for _, col := range numeric {
		if _, err := f.Floats(col); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDates checks that every value of column is a YYYY-MM-DD date.
func ValidateDates(f *Frame, column string) error {
	cells, err := f.Column(column)
	if err != nil {
		return fmt.Errorf("%w: date column: %w", ErrDateFormat, err)
	}
	for i, v := range cells {
		if _, err := time.Parse(dateLayout, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: column %q row %d value %q is not YYYY-MM-DD", ErrDateFormat, column, i, v)
		}
	}
	return nil
}

// ParseDates parses column as YYYY-MM-DD dates.
func ParseDates(f *Frame, column string) ([]time.Time, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(cells))
	for i, v := range cells {
		t, err := time.Parse(dateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: column %q row %d value %q is not YYYY-MM-DD", ErrDateFormat, column, i, v)
		}
		out[i] = t
	}
	return out, nil
}

// ResolveTarget returns the target column: the requested one, else "y",
// else "sales".
func ResolveTarget(f *Frame, requested, primary, fallback string) string {
	if requested != "" {
		return requested
	}
	if !f.Has(primary) && f.Has(fallback) {
		return fallback
	}
	return primary
}
