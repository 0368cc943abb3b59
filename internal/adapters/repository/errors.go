package repository

import "errors"

// Sentinel kinds for result store errors.
var (
	ErrNotFound = errors.New("run not found")
	ErrOpen     = errors.New("open result store")
	ErrWrite    = errors.New("write result store")
)
