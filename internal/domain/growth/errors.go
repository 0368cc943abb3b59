package growth

import "errors"

// Sentinel error kinds for growth-rate estimation.
var (
	ErrThresholdNotReached = errors.New("threshold never reached")
	ErrInsufficientPoints  = errors.New("insufficient regression points")
	ErrSlopeMarkerNotFound = errors.New("slope coefficient line not found")
	ErrTableMarkerNotFound = errors.New("observation table header not found")
	ErrMalformedReport     = errors.New("malformed regression report")
	ErrRegressionFailed    = errors.New("regression failed")
)
