package dataset

import "errors"

var (
	ErrNoSource         = errors.New("request carries neither an inline table nor a file reference")
	ErrParse            = errors.New("dataset could not be parsed")
	ErrFetch            = errors.New("dataset fetch failed")
	ErrFetchTimeout     = errors.New("dataset fetch timed out")
	ErrInsufficientData = errors.New("insufficient data")
	ErrDateFormat       = errors.New("invalid date format")
	ErrMissingColumn    = errors.New("missing column")
	ErrNonNumeric       = errors.New("non-numeric value")
)
