package service

import "errors"

// Sentinel kinds for pipeline errors.
var (
	ErrStageInput  = errors.New("stage input unavailable")
	ErrStageOutput = errors.New("stage output not written")
)
