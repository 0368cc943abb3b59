package growth

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/rnaught/internal/domain/model"
)

// Report markers written by the asymptotic regression tool.
const (
	SlopeMarker   = "beta1"
	TableMarker   = "X"
	InSampleFlag  = "1"
	slopeField    = 1
	slopeErrField = 3
	weightField   = 3
)

// Fit is the part of a regression result the pipeline consumes.
type Fit struct {
	Slope          float64
	SlopeError     float64
	NumberOfPoints int
}

type scanState int

const (
	seekSlope scanState = iota
	seekTable
	countRows
)

// ParseReport reads a regression report. The slope line is the first line starting
// with SlopeMarker; its second and fourth fields are the estimate and the standard
// error. The observation table starts after the first following line starting with
// TableMarker, and NumberOfPoints counts its leading rows whose weight flag is "1".
func ParseReport(r io.Reader) (Fit, error) {
	var (
		fit   Fit
		state = seekSlope
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch state {
		case seekSlope:
			if !strings.HasPrefix(line, SlopeMarker) {
				continue
			}
			if err := parseSlope(line, &fit); err != nil {
				return Fit{}, err
			}
			state = seekTable
		case seekTable:
			if strings.HasPrefix(line, TableMarker) {
				state = countRows
			}
		case countRows:
			fields := strings.Fields(line)
			if len(fields) <= weightField || fields[weightField] != InSampleFlag {
				return fit, nil
			}
			fit.NumberOfPoints++
		}
	}
	if err := sc.Err(); err != nil {
		return Fit{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}

	switch state {
	case seekSlope:
		return Fit{}, ErrSlopeMarkerNotFound
	case seekTable:
		return Fit{}, ErrTableMarkerNotFound
	}
	return fit, nil
}

func parseSlope(line string, fit *Fit) error {
	fields := strings.Fields(line)
	if len(fields) <= slopeErrField {
		return fmt.Errorf("%w: slope line has %d fields", ErrMalformedReport, len(fields))
	}
	slope, err := strconv.ParseFloat(fields[slopeField], 64)
	if err != nil {
		return fmt.Errorf("%w: slope: %w", ErrMalformedReport, err)
	}
	slopeErr, err := strconv.ParseFloat(fields[slopeErrField], 64)
	if err != nil {
		return fmt.Errorf("%w: slope error: %w", ErrMalformedReport, err)
	}
	fit.Slope = slope
	fit.SlopeError = slopeErr
	return nil
}

// Record builds the GrowthRecord for a fit whose first point lies on start.
func (f Fit) Record(code, country string, start time.Time) model.GrowthRecord {
	return model.GrowthRecord{
		Code:           code,
		Country:        country,
		Slope:          f.Slope,
		SlopeError:     f.SlopeError,
		NumberOfPoints: f.NumberOfPoints,
		StartDate:      start,
		EndDate:        AddDays(start, f.NumberOfPoints-1),
	}
}

// ParseRegressionOutput parses a report and assembles the country's GrowthRecord.
func ParseRegressionOutput(r io.Reader, start time.Time, code, country string) (model.GrowthRecord, error) {
	fit, err := ParseReport(r)
	if err != nil {
		return model.GrowthRecord{}, fmt.Errorf("parse report for %s: %w", code, err)
	}
	return fit.Record(code, country, start), nil
}
