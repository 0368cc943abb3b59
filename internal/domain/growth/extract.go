// Package growth turns daily case series into early exponential-growth
// regression inputs and reassembles regression output into GrowthRecords.
package growth

import (
	"math"
	"time"

	"github.com/okian/rnaught/internal/domain/model"
)

// MinPoints is the smallest point count a regression is attempted on.
const MinPoints = 2

// stopNewCases ends the exponential regime: a day with this many new cases or fewer
// terminates the point sequence.
const stopNewCases = 1.0

const hoursPerDay = 24

// Params selects the series fields and constants used for point extraction.
type Params struct {
	ThresholdField string  // field that must reach ThresholdValue to start the series
	ThresholdValue float64 // e.g. 100 total cases
	NewCasesField  string  // field read as daily new cases
	ErrorFactor    float64 // scales the Poisson error, compensates for smoothing
}

// ExtractPoints scans the series in date order and returns the regression points
// together with the start date. It returns ErrThresholdNotReached when the
// threshold field never reaches the threshold value.
//
// Points start at the first entry whose threshold field reaches the threshold
// and stop at the first entry with new cases <= 1 (or without a new-cases value).
func ExtractPoints(series model.Series, p Params) ([]model.RegressionPoint, time.Time, error) {
	var (
		points  []model.RegressionPoint
		start   time.Time
		started bool
	)
	for _, entry := range series.Points {
		if !started {
			v, ok := entry.Value(p.ThresholdField)
			if !ok || v < p.ThresholdValue {
				continue
			}
			start = entry.Date
			started = true
		}

		newCases, ok := entry.Value(p.NewCasesField)
		if !ok || newCases <= stopNewCases {
			break
		}

		y := math.Log(newCases)
		points = append(points, model.RegressionPoint{
			X:     daysBetween(start, entry.Date),
			Y:     y,
			Error: math.Pow(y, -0.5) * p.ErrorFactor,
		})
	}
	if !started {
		return nil, time.Time{}, ErrThresholdNotReached
	}
	return points, start, nil
}

// daysBetween returns the whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / hoursPerDay))
}

// AddDays offsets a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
