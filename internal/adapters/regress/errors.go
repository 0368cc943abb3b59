package regress

import "errors"

// Sentinel error kinds for regressors.
var (
	ErrCommandFailed = errors.New("regression command failed")
	ErrTimeout       = errors.New("regression timed out")
	ErrInvalidWeight = errors.New("point error must be positive and finite")
	ErrDegenerate    = errors.New("points do not determine a slope")
	ErrEmptyCommand  = errors.New("regression command is empty")
)
