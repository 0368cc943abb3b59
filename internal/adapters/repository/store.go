// Package repository persists pipeline runs and their R0 rows.
package repository

import (
	"context"
	"time"

	"github.com/okian/rnaught/internal/domain/model"
)

// Run describes one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     string
	Excludes   string
	Joined     int
	NonFinite  int
	Failed     int
}

// Store provides read/write access to persisted runs.
type Store interface {
	// SaveRun writes a run and its rows atomically.
	SaveRun(ctx context.Context, run Run, records []model.R0Record) error

	// Run returns a stored run. Returns ErrNotFound if the id is unknown.
	Run(ctx context.Context, id string) (Run, error)

	// Records returns the rows of a run ordered by code.
	Records(ctx context.Context, runID string) ([]model.R0Record, error)

	// Close releases the underlying connection.
	Close() error
}
