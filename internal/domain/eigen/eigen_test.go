package eigen_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/rnaught/internal/domain/eigen"
	"github.com/okian/rnaught/internal/domain/model"
)

const tol = 1e-9

// TestEigenvalue2x2: [[2,1],[1,2]] has eigenvalues 1 and 3.
func TestEigenvalue2x2(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{2, 1, 1, 2})

	v, vec, err := eigen.PerronFrobenius(m)
	require.NoError(t, err)
	require.InDelta(t, 3.0, v, tol)
	require.Len(t, vec, 2)
	for _, c := range vec {
		require.GreaterOrEqual(t, c, 0.0, "PF vector must be nonnegative")
	}
	require.InDelta(t, vec[0], vec[1], tol)
}

// TestEigenvalue3x3: block matrix diag(2, [[3,4],[4,9]]) has eigenvalues 2, 1, 11.
func TestEigenvalue3x3(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 3, 4,
		0, 4, 9,
	})
	v, err := eigen.Eigenvalue(m)
	require.NoError(t, err)
	require.InDelta(t, 11.0, v, tol)
}

// TestEigenvalueDominatesSpectrum checks the PF value against every eigenvalue of an asymmetric matrix.
func TestEigenvalueDominatesSpectrum(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		0, 0, 1,
		1, 0, 0,
	})
	v, err := eigen.Eigenvalue(m)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, tol, "cyclic permutation has spectral radius 1")

	var e mat.Eigen
	require.True(t, e.Factorize(m, mat.EigenNone))
	for _, c := range e.Values(nil) {
		require.GreaterOrEqual(t, v+tol, real(c))
	}
}

func TestEigenvalueRejectsInvalidInput(t *testing.T) {
	_, err := eigen.Eigenvalue(mat.NewDense(2, 3, nil))
	require.True(t, errors.Is(err, eigen.ErrNotSquare))

	_, err = eigen.Eigenvalue(mat.NewDense(2, 2, []float64{1, -1, 0, 1}))
	require.True(t, errors.Is(err, eigen.ErrNegativeEntry))

	_, err = eigen.Eigenvalue(mat.NewDense(2, 2, []float64{1, math.NaN(), 0, 1}))
	require.True(t, errors.Is(err, eigen.ErrNonFiniteEntry))
}

// TestUnderExclusionsIndependent: every set is removed from the pristine base.
func TestUnderExclusionsIndependent(t *testing.T) {
	base := mat.NewDense(3, 3, []float64{
		1, 2, 0,
		3, 4, 5,
		0, 6, 7,
	})
	snapshot := mat.DenseCopyOf(base)

	values, err := eigen.UnderExclusions(base, model.ExclusionSpec{{0}, {0, 1}})
	require.NoError(t, err)
	require.Len(t, values, 3)

	baseline, err := eigen.Eigenvalue(base)
	require.NoError(t, err)
	require.InDelta(t, baseline, values[0], tol)

	// [[4,5],[6,7]]: (11 + sqrt(129)) / 2
	require.InDelta(t, (11+math.Sqrt(129))/2, values[1], tol)

	// Only the bottom-right entry survives.
	require.InDelta(t, 7.0, values[2], tol)

	// Compounding would drop index 1 of the already reduced matrix and leave [[4]].
	once, err := eigen.Exclude(base, []int{0})
	require.NoError(t, err)
	twice, err := eigen.Exclude(once, []int{1})
	require.NoError(t, err)
	compounded, err := eigen.Eigenvalue(twice)
	require.NoError(t, err)
	require.InDelta(t, 4.0, compounded, tol)
	require.NotEqual(t, compounded, values[2])

	require.True(t, mat.Equal(snapshot, base), "base matrix must not be modified")
}

func TestUnderExclusionsEdgeCases(t *testing.T) {
	base := mat.NewDense(2, 2, []float64{2, 1, 1, 2})

	values, err := eigen.UnderExclusions(base, nil)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.InDelta(t, 3.0, values[0], tol)

	_, err = eigen.UnderExclusions(base, model.ExclusionSpec{{2}})
	require.True(t, errors.Is(err, eigen.ErrIndexOutOfRange))

	_, err = eigen.UnderExclusions(base, model.ExclusionSpec{{0, 1}})
	require.True(t, errors.Is(err, eigen.ErrEmptyMatrix))
}

func TestRecord(t *testing.T) {
	cm := model.ContactMatrix{
		Code:   "AAA",
		Labels: []string{"0 to 4", "5 to 9"},
		Data:   mat.NewDense(2, 2, []float64{2, 1, 1, 2}),
	}
	rec, err := eigen.Record(cm, "Alpha", model.ExclusionSpec{{0}})
	require.NoError(t, err)
	require.Equal(t, "AAA", rec.Code)
	require.Equal(t, "Alpha", rec.Country)
	require.Len(t, rec.Values, 2)
	require.InDelta(t, 2.0, rec.Values[1], tol)
}
