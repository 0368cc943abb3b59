package files

import "errors"

// Sentinel error kinds for file adapters.
var (
	ErrMissingColumn   = errors.New("required column missing")
	ErrMalformedRecord = errors.New("malformed record")
	ErrMatrixShape     = errors.New("contact matrix has unexpected shape")
	ErrEmptyInput      = errors.New("input is empty")
)
