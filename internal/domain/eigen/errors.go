package eigen

import "errors"

// Sentinel error kinds for contact-matrix eigen analysis.
var (
	ErrNotSquare       = errors.New("matrix is not square")
	ErrEmptyMatrix     = errors.New("matrix is empty")
	ErrNegativeEntry   = errors.New("matrix contains negative entries")
	ErrNonFiniteEntry  = errors.New("matrix contains non-finite entries")
	ErrIndexOutOfRange = errors.New("exclusion index out of range")
	ErrNoConvergence   = errors.New("eigen decomposition failed")
)
