package types

import "errors"

// Table-related errors
var (
	// ErrColumnLength is returned when a column's length disagrees with the table index
	ErrColumnLength = errors.New("column length does not match index")
	// ErrColumnNotFound is returned when a named column is not in the table
	ErrColumnNotFound = errors.New("column not found")
)
