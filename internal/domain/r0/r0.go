// Package r0 converts an exponential growth rate into a basic reproduction
// number under a gamma-distributed generation time.
package r0

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/rnaught/internal/domain/model"
)

// ErrNonFinite is returned when the transform leaves its domain, i.e. 1 + r*mu*kappa < 0.
var ErrNonFinite = errors.New("r0 is not finite")

// R0 returns (1 + r*mu*kappa)^(1/kappa).
func R0(g model.Gamma, r float64) float64 {
	k := g.Kappa()
	return math.Pow(1+r*g.Mu()*k, 1/k)
}

// Error propagates the growth-rate error dr to first order:
// dr*mu*(1 + r*mu*kappa)^(1/kappa - 1).
func Error(g model.Gamma, r, dr float64) float64 {
	k := g.Kappa()
	return dr * g.Mu() * math.Pow(1+r*g.Mu()*k, 1/k-1)
}

// Estimate returns R0 and its error. When either is NaN or infinite the values
// are still returned together with ErrNonFinite so the caller can flag the row.
func Estimate(g model.Gamma, r, dr float64) (float64, float64, error) {
	v, e := R0(g, r), Error(g, r, dr)
	if !finite(v) || !finite(e) {
		return v, e, fmt.Errorf("%w: r=%v base=%v", ErrNonFinite, r, 1+r*g.Mu()*g.Kappa())
	}
	return v, e, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
