package regress

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/rnaught/internal/domain/growth"
	"github.com/okian/rnaught/internal/domain/model"
)

// Linear fits y = a + b*x by weighted least squares with weights 1/error².
// Every point is in sample, so NumberOfPoints is len(points).
type Linear struct{}

// NewLinear creates a Linear regressor.
func NewLinear() *Linear { return &Linear{} }

// Regress implements growth.Regressor.
func (Linear) Regress(ctx context.Context, code string, points []model.RegressionPoint) (growth.Fit, error) {
	if err := ctx.Err(); err != nil {
		return growth.Fit{}, err
	}
	if len(points) < growth.MinPoints {
		return growth.Fit{}, fmt.Errorf("%w: %s has %d points", ErrDegenerate, code, len(points))
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	ws := make([]float64, len(points))
	for i, p := range points {
		if !(p.Error > 0) || math.IsInf(p.Error, 0) {
			return growth.Fit{}, fmt.Errorf("%w: %s point %d has error %v", ErrInvalidWeight, code, p.X, p.Error)
		}
		xs[i] = float64(p.X)
		ys[i] = p.Y
		ws[i] = 1 / (p.Error * p.Error)
	}

	xbar := stat.Mean(xs, ws)
	var sxx float64
	for i, x := range xs {
		d := x - xbar
		sxx += ws[i] * d * d
	}
	if !(sxx > 0) {
		return growth.Fit{}, fmt.Errorf("%w: %s has no spread in x", ErrDegenerate, code)
	}

	_, beta := stat.LinearRegression(xs, ys, ws, false)
	return growth.Fit{
		Slope:          beta,
		SlopeError:     math.Sqrt(1 / sxx),
		NumberOfPoints: len(points),
	}, nil
}
