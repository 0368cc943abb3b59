package r0_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okian/rnaught/internal/domain/model"
	"github.com/okian/rnaught/internal/domain/r0"
)

// gamma with mu = 5 and kappa = (2.5/5)^2 = 0.25.
var gamma = model.Gamma{Mean: 5, StandardDeviation: 2.5}

func TestGammaDerived(t *testing.T) {
	require.Equal(t, 5.0, gamma.Mu())
	require.InDelta(t, 0.25, gamma.Kappa(), 1e-15)
	require.NoError(t, gamma.Validate())
	require.Error(t, model.Gamma{Mean: 0, StandardDeviation: 1}.Validate())
	require.Error(t, model.Gamma{Mean: 1, StandardDeviation: -1}.Validate())
}

// TestR0Literal: 1.125^4 = 1.601806640625 and 0.01*5*1.125^3 = 0.0711914...
func TestR0Literal(t *testing.T) {
	require.InDelta(t, 1.6018, r0.R0(gamma, 0.1), 5e-5)
	require.InDelta(t, math.Pow(1.125, 4), r0.R0(gamma, 0.1), 1e-12)

	require.InDelta(t, 0.0712, r0.Error(gamma, 0.1, 0.01), 5e-5)
	require.InDelta(t, 0.01*5*math.Pow(1.125, 3), r0.Error(gamma, 0.1, 0.01), 1e-12)
}

func TestR0ZeroGrowth(t *testing.T) {
	v, e, err := r0.Estimate(gamma, 0, 0.02)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-12)
	require.InDelta(t, 0.1, e, 1e-12)
}

func TestR0NegativeGrowthInDomain(t *testing.T) {
	v, _, err := r0.Estimate(gamma, -0.1, 0.01)
	require.NoError(t, err)
	require.InDelta(t, math.Pow(0.875, 4), v, 1e-12)
	require.Less(t, v, 1.0)
}

// TestR0OutOfDomain: 1 + r*mu*kappa < 0 with a fractional exponent gives NaN.
func TestR0OutOfDomain(t *testing.T) {
	g := model.Gamma{Mean: 5, StandardDeviation: 5 * math.Sqrt(0.3)} // kappa = 0.3
	_, _, err := r0.Estimate(g, -1, 0.01)
	require.True(t, errors.Is(err, r0.ErrNonFinite))
}
