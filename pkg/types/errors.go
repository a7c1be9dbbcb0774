package types

import "errors"

// Provider errors
var (
	// ErrNotFound is returned by a StatisticsProvider when no statistics exist for a column or table
	ErrNotFound = errors.New("not found")

	// ErrEmptyQuery is returned when a recorded query has no text
	ErrEmptyQuery = errors.New("empty query text")
)
