package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/rnaught/internal/domain/model"
)

const defaultBatchSize = 200

// runRow is the runs table.
type runRow struct {
	ID         string `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     string
	Excludes   string
	Joined     int
	NonFinite  int
	Failed     int
}

func (runRow) TableName() string { return "runs" }

// r0Row is the r0_records table. R0 and R0Error are NULL when the transform
// left its domain.
type r0Row struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"index:idx_run_code,unique"`
	Code           string `gorm:"index:idx_run_code,unique"`
	Country        string
	Region         string
	SubRegion      string
	Slope          float64
	SlopeError     float64
	NumberOfPoints int
	StartDate      string
	EndDate        string
	R0             *float64
	R0Error        *float64
	Eigenvalues    []float64 `gorm:"serializer:json"`
}

func (r0Row) TableName() string { return "r0_records" }

// SQLiteStore implements Store on SQLite through gorm.
type SQLiteStore struct {
	db        *gorm.DB
	batchSize int
	logLevel  gormlogger.LogLevel
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates its tables. Use ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{batchSize: defaultBatchSize, logLevel: gormlogger.Silent}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(s.logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	sqlDB.SetMaxOpenConns(1)
	if err := db.WithContext(ctx).AutoMigrate(&runRow{}, &r0Row{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrOpen, err)
	}
	s.db = db
	return s, nil
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, records []model.R0Record) error {
	rows := make([]r0Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toRow(run.ID, rec))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&runRow{
			ID:         run.ID,
			StartedAt:  run.StartedAt.UTC(),
			FinishedAt: run.FinishedAt.UTC(),
			Stages:     run.Stages,
			Excludes:   run.Excludes,
			Joined:     run.Joined,
			NonFinite:  run.NonFinite,
			Failed:     run.Failed,
		}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("%w: run %s: %w", ErrWrite, run.ID, err)
	}
	return nil
}

// Run implements Store.
func (s *SQLiteStore) Run(ctx context.Context, id string) (Run, error) {
	var row runRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	return Run(row), nil
}

// Records implements Store.
func (s *SQLiteStore) Records(ctx context.Context, runID string) ([]model.R0Record, error) {
	var rows []r0Row
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.R0Record, 0, len(rows))
	for _, r := range rows {
		rec, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(runID string, rec model.R0Record) r0Row {
	row := r0Row{
		RunID:          runID,
		Code:           rec.Code,
		Country:        rec.Country,
		Region:         rec.Region,
		SubRegion:      rec.SubRegion,
		Slope:          rec.Slope,
		SlopeError:     rec.SlopeError,
		NumberOfPoints: rec.NumberOfPoints,
		StartDate:      rec.StartDate.Format(model.DateLayout),
		EndDate:        rec.EndDate.Format(model.DateLayout),
		Eigenvalues:    rec.Eigenvalues,
	}
	if rec.R0Valid && !math.IsNaN(rec.R0) && !math.IsNaN(rec.R0Error) {
		r0, r0Err := rec.R0, rec.R0Error
		row.R0, row.R0Error = &r0, &r0Err
	}
	return row
}

func fromRow(r r0Row) (model.R0Record, error) {
	start, err := time.Parse(model.DateLayout, r.StartDate)
	if err != nil {
		return model.R0Record{}, fmt.Errorf("run %s %s start date: %w", r.RunID, r.Code, err)
	}
	end, err := time.Parse(model.DateLayout, r.EndDate)
	if err != nil {
		return model.R0Record{}, fmt.Errorf("run %s %s end date: %w", r.RunID, r.Code, err)
	}
	rec := model.R0Record{
		Code:           r.Code,
		Country:        r.Country,
		Region:         r.Region,
		SubRegion:      r.SubRegion,
		Slope:          r.Slope,
		SlopeError:     r.SlopeError,
		NumberOfPoints: r.NumberOfPoints,
		StartDate:      start,
		EndDate:        end,
		R0:             math.NaN(),
		R0Error:        math.NaN(),
		Eigenvalues:    r.Eigenvalues,
	}
	if r.R0 != nil && r.R0Error != nil {
		rec.R0, rec.R0Error, rec.R0Valid = *r.R0, *r.R0Error, true
	}
	return rec, nil
}
