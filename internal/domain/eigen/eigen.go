// Package eigen computes Perron-Frobenius eigenvalues of nonnegative contact
// matrices, optionally after excluding strata.
//
// Exclusion sets are applied independently: each set deletes its rows and
// columns from the original base matrix, never from the result of a previous
// set. For nested sets such as [0], [0 1], [0 1 2] both readings agree on which
// strata remain, but only independent application is implemented.
package eigen

import (
	"fmt"
	"math"

	"github.com/okian/rnaught/internal/domain/model"
	"gonum.org/v1/gonum/mat"
)

// Validate checks that m is non-empty, square and has finite nonnegative entries.
func Validate(m mat.Matrix) error {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return ErrEmptyMatrix
	}
	if r != c {
		return fmt.Errorf("%w: %dx%d", ErrNotSquare, r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: at (%d,%d)", ErrNonFiniteEntry, i, j)
			}
			if v < 0 {
				return fmt.Errorf("%w: %v at (%d,%d)", ErrNegativeEntry, v, i, j)
			}
		}
	}
	return nil
}

// Eigenvalue returns the Perron-Frobenius eigenvalue of m: the real part of the
// eigenvalue with the largest real part. On ties the first one in decomposition
// order wins, so the pick is unspecified for degenerate spectra.
func Eigenvalue(m mat.Matrix) (float64, error) {
	val, _, err := decompose(m, false)
	return val, err
}

// PerronFrobenius returns the Perron-Frobenius eigenvalue and the real part of its
// eigenvector. The vector's sign is flipped when any coordinate is negative.
func PerronFrobenius(m mat.Matrix) (float64, []float64, error) {
	return decompose(m, true)
}

func decompose(m mat.Matrix, withVector bool) (float64, []float64, error) {
	if err := Validate(m); err != nil {
		return 0, nil, err
	}

	kind := mat.EigenNone
	if withVector {
		kind = mat.EigenRight
	}
	var eig mat.Eigen
	if ok := eig.Factorize(m, kind); !ok {
		return 0, nil, ErrNoConvergence
	}

	values := eig.Values(nil)
	best := 0
	for i := 1; i < len(values); i++ {
		if real(values[i]) > real(values[best]) {
			best = i
		}
	}
	if !withVector {
		return real(values[best]), nil, nil
	}

	var vecs mat.CDense
	eig.VectorsTo(&vecs)
	n, _ := vecs.Dims()
	vec := make([]float64, n)
	flip := false
	for i := range vec {
		vec[i] = real(vecs.At(i, best))
		if vec[i] < 0 {
			flip = true
		}
	}
	if flip {
		for i := range vec {
			vec[i] = -vec[i]
		}
	}
	return real(values[best]), vec, nil
}

// Exclude returns a copy of base without the rows and columns listed in drop.
func Exclude(base mat.Matrix, drop []int) (*mat.Dense, error) {
	n, c := base.Dims()
	if n != c {
		return nil, fmt.Errorf("%w: %dx%d", ErrNotSquare, n, c)
	}
	dropped := make(map[int]bool, len(drop))
	for _, idx := range drop {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, idx, n)
		}
		dropped[idx] = true
	}

	keep := make([]int, 0, n-len(dropped))
	for i := 0; i < n; i++ {
		if !dropped[i] {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, ErrEmptyMatrix
	}

	out := mat.NewDense(len(keep), len(keep), nil)
	for i, ri := range keep {
		for j, cj := range keep {
			out.Set(i, j, base.At(ri, cj))
		}
	}
	return out, nil
}

// UnderExclusions returns the baseline eigenvalue of base followed by one
// eigenvalue per exclusion set, each computed on base with that set removed.
func UnderExclusions(base mat.Matrix, specs model.ExclusionSpec) ([]float64, error) {
	baseline, err := Eigenvalue(base)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(specs)+1)
	values = append(values, baseline)

	for i, set := range specs {
		sub, err := Exclude(base, set)
		if err != nil {
			return nil, fmt.Errorf("exclusion %s: %w", model.Label(specs[i]), err)
		}
		v, err := Eigenvalue(sub)
		if err != nil {
			return nil, fmt.Errorf("exclusion %s: %w", model.Label(specs[i]), err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Record computes a country's EigenRecord.
func Record(cm model.ContactMatrix, country string, specs model.ExclusionSpec) (model.EigenRecord, error) {
	values, err := UnderExclusions(cm.Data, specs)
	if err != nil {
		return model.EigenRecord{}, fmt.Errorf("%s: %w", cm.Code, err)
	}
	return model.EigenRecord{Code: cm.Code, Country: country, Values: values}, nil
}
