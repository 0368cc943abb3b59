package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/rnaught/internal/adapters/files"
	"github.com/okian/rnaught/internal/adapters/prem"
	"github.com/okian/rnaught/internal/adapters/regress"
	"github.com/okian/rnaught/internal/adapters/repository"
	"github.com/okian/rnaught/internal/config"
	"github.com/okian/rnaught/internal/domain/eigen"
	"github.com/okian/rnaught/internal/domain/growth"
	"github.com/okian/rnaught/internal/domain/join"
	"github.com/okian/rnaught/internal/domain/model"
	"github.com/okian/rnaught/internal/domain/r0"
	"github.com/okian/rnaught/pkg/logger"
	"github.com/okian/rnaught/pkg/metrics"
)

// errSkip marks a country without usable data. It is not a failure.
var errSkip = errors.New("country skipped")

// sinceMillis returns the elapsed time since start in fractional milliseconds.
func sinceMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, growth.ErrThresholdNotReached):
		return "threshold_not_reached"
	case errors.Is(err, growth.ErrInsufficientPoints):
		return "insufficient_points"
	default:
		return "no_data"
	}
}

func (s *Service) readRegions() (map[string]model.Region, error) {
	regions, err := files.ReadRegions(s.cfg.InputPath(s.cfg.CodesFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageInput, err)
	}
	return regions, nil
}

// premStage splits the Prem workbooks into the matrices directory.
func (s *Service) premStage(ctx context.Context, rep *Report) error {
	regions, err := s.readRegions()
	if err != nil {
		return err
	}
	im := prem.NewImporter(files.CountryCodes(regions), s.cfg.InputPath(s.cfg.MatricesDir))
	res, err := im.Run(ctx,
		s.cfg.InputPath(s.cfg.PremWithHeadingsFile),
		s.cfg.InputPath(s.cfg.PremWithoutHeadingsFile))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStageInput, err)
	}
	for range res.Written {
		metrics.RecordCountryProcessed(metrics.StagePrem)
	}
	for range res.Unresolved {
		metrics.RecordCountrySkipped(metrics.StagePrem, "unresolved_name")
	}
	rep.Unresolved = res.Unresolved
	rep.Stages[config.StagePrem] = StageReport{
		Attempted: len(res.Written) + len(res.Unresolved),
		Succeeded: len(res.Written),
		Skipped:   len(res.Unresolved),
	}
	return nil
}

// growthStage estimates the early growth rate of every country in the case
// file and writes the slope table.
func (s *Service) growthStage(ctx context.Context, rep *Report) ([]model.GrowthRecord, error) {
	series, malformed, err := files.ReadCases(s.cfg.InputPath(s.cfg.CasesFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageInput, err)
	}
	for _, ce := range malformed {
		metrics.RecordCountrySkipped(metrics.StageGrowth, "malformed_input")
		s.logger.Warn(ctx, "country case data malformed",
			logger.String("code", ce.Code),
			logger.Error(ce.Err))
	}

	var opts []growth.Option
	if _, ok := s.regressor.(*regress.Exec); !ok {
		dir := s.countriesDir()
		opts = append(opts, growth.WithPointsSink(func(code string, points []model.RegressionPoint) error {
			return files.WritePoints(filepath.Join(dir, code+".dat"), points)
		}))
	}
	est := growth.NewEstimator(growth.Params{
		ThresholdField: s.cfg.ThresholdField,
		ThresholdValue: s.cfg.ThresholdValue,
		NewCasesField:  s.cfg.NewCasesField,
		ErrorFactor:    s.cfg.StDevFactor,
	}, s.regressor, opts...)

	var (
		mu      sync.Mutex
		results = make(map[string]model.GrowthRecord)
	)
	sr, err := s.fanOut(ctx, metrics.StageGrowth, sortedKeys(series), func(ctx context.Context, code string) error {
		start := time.Now()
		rec, err := est.Estimate(ctx, series[code])
		if growth.NoData(err) {
			return fmt.Errorf("%w: %w", errSkip, err)
		}
		metrics.RecordRegressionLatency(sinceMillis(start))
		if err != nil {
			return err
		}
		mu.Lock()
		results[code] = rec
		mu.Unlock()
		return nil
	})
	sr.Attempted += len(malformed)
	sr.Skipped += len(malformed)
	rep.Stages[config.StageGrowth] = sr
	if err != nil {
		return nil, err
	}

	out := make([]model.GrowthRecord, 0, len(results))
	for _, code := range sortedKeys(results) {
		out = append(out, results[code])
	}
	if err := files.WriteSlopes(s.outputPath(SlopeFile), out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageOutput, err)
	}
	return out, nil
}

// eigenStage computes the PF eigenvalues of every discovered matrix and
// writes the eigenvalue table.
func (s *Service) eigenStage(ctx context.Context, rep *Report) ([]model.EigenRecord, error) {
	regions, err := s.readRegions()
	if err != nil {
		return nil, err
	}
	found, skipped, err := files.DiscoverMatrices(s.cfg.InputPath(s.cfg.MatricesDir))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageInput, err)
	}
	for _, name := range skipped {
		s.logger.Warn(ctx, "ignoring matrix file without a country code", logger.String("file", name))
	}

	paths := make(map[string]string, len(found))
	for _, m := range found {
		paths[m.Code] = m.Path
	}

	var (
		mu      sync.Mutex
		results = make(map[string]model.EigenRecord)
	)
	sr, err := s.fanOut(ctx, metrics.StageEigen, sortedKeys(paths), func(ctx context.Context, code string) error {
		cm, err := files.ReadMatrix(paths[code], code, s.cfg.MatrixDim)
		if err != nil {
			return err
		}
		country := code
		if r, ok := regions[code]; ok && r.Country != "" {
			country = r.Country
		}
		start := time.Now()
		rec, err := eigen.Record(cm, country, s.specs)
		metrics.RecordEigenLatency(sinceMillis(start))
		if err != nil {
			return err
		}
		mu.Lock()
		results[code] = rec
		mu.Unlock()
		return nil
	})
	rep.Stages[config.StageEigen] = sr
	if err != nil {
		return nil, err
	}

	out := make([]model.EigenRecord, 0, len(results))
	for _, code := range sortedKeys(results) {
		out = append(out, results[code])
	}
	if err := files.WriteEigen(s.outputPath(EigenFile), s.specs, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageOutput, err)
	}
	return out, nil
}

// r0Stage joins the growth, eigenvalue and region tables, converts growth
// rates to R0 and writes the R0 table. Tables not produced in this run are
// read back from the output directory.
func (s *Service) r0Stage(ctx context.Context, started time.Time, slopes []model.GrowthRecord, eigens []model.EigenRecord, rep *Report) error {
	var err error
	if !s.stages[config.StageGrowth] {
		if slopes, err = files.ReadSlopes(s.outputPath(SlopeFile)); err != nil {
			return fmt.Errorf("%w: %w", ErrStageInput, err)
		}
	}
	if !s.stages[config.StageEigen] {
		if eigens, err = files.ReadEigen(s.outputPath(EigenFile), s.specs); err != nil {
			return fmt.Errorf("%w: %w", ErrStageInput, err)
		}
	}
	gamma, err := files.ReadGenerationTime(s.cfg.InputPath(s.cfg.GenerationTimeFile))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStageInput, err)
	}
	regions, err := s.readRegions()
	if err != nil {
		return err
	}

	growthByCode := make(map[string]model.GrowthRecord, len(slopes))
	for _, g := range slopes {
		growthByCode[g.Code] = g
	}
	eigenByCode := make(map[string]model.EigenRecord, len(eigens))
	for _, e := range eigens {
		eigenByCode[e.Code] = e
	}

	res := join.Join(growthByCode, eigenByCode, regions, func(r, dr float64) (float64, float64, error) {
		return r0.Estimate(gamma, r, dr)
	})

	records := make([]model.R0Record, 0, len(res.Codes))
	for _, code := range res.Codes {
		records = append(records, res.Records[code])
	}
	if err := files.WriteR0(s.outputPath(R0File), s.specs, records); err != nil {
		return fmt.Errorf("%w: %w", ErrStageOutput, err)
	}

	metrics.UpdateJoinGaps(res.Gaps.MissingGrowth, res.Gaps.MissingEigen, res.Gaps.MissingRegion)
	metrics.UpdateJoinedRows(len(res.Codes))
	for _, code := range res.NonFinite {
		metrics.RecordNonFiniteR0()
		s.logger.Warn(ctx, "r0 outside the transform domain", logger.String("code", code))
	}
	for range res.Codes {
		metrics.RecordCountryProcessed(metrics.StageR0)
	}
	for range res.Gaps.Dropped {
		metrics.RecordCountrySkipped(metrics.StageR0, "join_gap")
	}

	rep.Joined = len(res.Codes)
	rep.NonFinite = res.NonFinite
	rep.Gaps = res.Gaps
	rep.Stages[config.StageR0] = StageReport{
		Attempted: len(res.Codes) + len(res.Gaps.Dropped),
		Succeeded: len(res.Codes),
		Skipped:   len(res.Gaps.Dropped),
	}

	if s.store == nil {
		return nil
	}
	failed := 0
	for _, sr := range rep.Stages {
		failed += sr.Failed
	}
	run := repository.Run{
		ID:         s.runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Stages:     s.cfg.Stages,
		Excludes:   s.cfg.Excludes,
		Joined:     len(res.Codes),
		NonFinite:  len(res.NonFinite),
		Failed:     failed,
	}
	if err := s.store.SaveRun(ctx, run, records); err != nil {
		return fmt.Errorf("%w: %w", ErrStageOutput, err)
	}
	return nil
}
