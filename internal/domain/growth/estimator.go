package growth

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/rnaught/internal/domain/model"
)

// Regressor fits the early exponential growth of a point sequence.
// The asymptotic regression may be an external tool or an in-process solver.
type Regressor interface {
	Regress(ctx context.Context, code string, points []model.RegressionPoint) (Fit, error)
}

// PointsSink receives the extracted points of every country that reaches regression.
type PointsSink func(code string, points []model.RegressionPoint) error

// Estimator runs extraction and regression for one country at a time.
// It is safe for concurrent use when its Regressor and sink are.
type Estimator struct {
	params    Params
	regressor Regressor
	sink      PointsSink
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithPointsSink sets a callback invoked with the points before regression.
func WithPointsSink(sink PointsSink) Option {
	return func(e *Estimator) {
		e.sink = sink
	}
}

// NewEstimator creates an Estimator.
func NewEstimator(params Params, regressor Regressor, opts ...Option) *Estimator {
	e := &Estimator{params: params, regressor: regressor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the GrowthRecord of a series. ErrThresholdNotReached and
// ErrInsufficientPoints mean there is not enough data; ErrRegressionFailed wraps
// regressor failures.
func (e *Estimator) Estimate(ctx context.Context, series model.Series) (model.GrowthRecord, error) {
	points, start, err := ExtractPoints(series, e.params)
	if err != nil {
		return model.GrowthRecord{}, err
	}
	if len(points) < MinPoints {
		return model.GrowthRecord{}, fmt.Errorf("%w: got %d", ErrInsufficientPoints, len(points))
	}
	if e.sink != nil {
		if err := e.sink(series.Code, points); err != nil {
			return model.GrowthRecord{}, fmt.Errorf("store points: %w", err)
		}
	}

	fit, err := e.regressor.Regress(ctx, series.Code, points)
	if err != nil {
		if errors.Is(err, ErrRegressionFailed) {
			return model.GrowthRecord{}, err
		}
		return model.GrowthRecord{}, fmt.Errorf("%w: %w", ErrRegressionFailed, err)
	}
	return fit.Record(series.Code, series.Country, start), nil
}

// NoData reports whether err means the series simply lacks usable data.
func NoData(err error) bool {
	return errors.Is(err, ErrThresholdNotReached) || errors.Is(err, ErrInsufficientPoints)
}
