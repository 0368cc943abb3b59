// Package model contains domain records passed between pipeline stages.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// DateLayout is the calendar date format used by every input and output table.
const DateLayout = "2006-01-02"

// TimeSeriesPoint is one day of a country's case series.
// Values holds every numeric field present for that day (total_cases, new_cases, ...).
type TimeSeriesPoint struct {
	Date   time.Time
	Values map[string]float64
}

// Value returns the named field and whether it was present.
func (p TimeSeriesPoint) Value(field string) (float64, bool) {
	v, ok := p.Values[field]
	return v, ok
}

// Series is the date-ordered case series of one country.
type Series struct {
	Code    string
	Country string
	Points  []TimeSeriesPoint
}

// RegressionPoint is one (x, y, error) triple fed to the growth regression.
type RegressionPoint struct {
	X     int     // whole days since the series start date
	Y     float64 // ln(new cases)
	Error float64 // per-day error on the log scale
}

// GrowthRecord summarizes a converged early-growth regression.
type GrowthRecord struct {
	Code           string
	Country        string
	Slope          float64
	SlopeError     float64
	NumberOfPoints int
	StartDate      time.Time
	EndDate        time.Time
}

// ContactMatrix is a country's age-stratified contact matrix.
// Labels name the strata in row order; column i denotes the same stratum as row i.
type ContactMatrix struct {
	Code   string
	Labels []string
	Data   *mat.Dense
}

// ExclusionSpec is an ordered list of index sets. Every set is applied
// to the base matrix on its own.
type ExclusionSpec [][]int

// Label renders an exclusion set the way it appears in column headers, e.g. "[0, 1]".
func Label(set []int) string {
	parts := make([]string, len(set))
	for i, v := range set {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Validate checks that every set is strictly increasing and non-negative.
func (s ExclusionSpec) Validate() error {
	for i, set := range s {
		for j, v := range set {
			if v < 0 {
				return fmt.Errorf("exclusion %d: negative index %d", i, v)
			}
			if j > 0 && set[j-1] >= v {
				return fmt.Errorf("exclusion %d: indices must be strictly increasing", i)
			}
		}
	}
	return nil
}

// Nested reports whether every set contains the one before it, as in
// [[0], [0, 1], [0, 1, 2]].
func (s ExclusionSpec) Nested() bool {
	for i := 1; i < len(s); i++ {
		have := make(map[int]bool, len(s[i]))
		for _, v := range s[i] {
			have[v] = true
		}
		for _, v := range s[i-1] {
			if !have[v] {
				return false
			}
		}
	}
	return true
}

// EigenRecord holds a country's PF eigenvalues. Values[0] is the unexcluded
// baseline and Values[i+1] belongs to the i-th exclusion set.
type EigenRecord struct {
	Code    string
	Country string
	Values  []float64
}

// Gamma parameterizes a gamma-distributed generation time.
type Gamma struct {
	Mean              float64 `json:"mean"`
	StandardDeviation float64 `json:"standard_deviation"`
}

// Mu is the mean generation time.
func (g Gamma) Mu() float64 { return g.Mean }

// Kappa is the squared coefficient of variation.
func (g Gamma) Kappa() float64 {
	cv := g.StandardDeviation / g.Mean
	return cv * cv
}

// Validate rejects parameterizations the R0 transform cannot use.
func (g Gamma) Validate() error {
	if !(g.Mean > 0) || math.IsInf(g.Mean, 0) {
		return fmt.Errorf("generation time mean must be positive, got %v", g.Mean)
	}
	if !(g.StandardDeviation > 0) || math.IsInf(g.StandardDeviation, 0) {
		return fmt.Errorf("generation time standard deviation must be positive, got %v", g.StandardDeviation)
	}
	return nil
}

// Region is a row of the country code table.
type Region struct {
	Code      string
	Country   string
	Region    string
	SubRegion string
}

// R0Record is a joined output row.
type R0Record struct {
	Code           string
	Country        string
	Region         string
	SubRegion      string
	Slope          float64
	SlopeError     float64
	NumberOfPoints int
	StartDate      time.Time
	EndDate        time.Time
	R0             float64
	R0Error        float64
	R0Valid        bool // false when the transform left its domain
	Eigenvalues    []float64
}
