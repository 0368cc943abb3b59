package files

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/rnaught/internal/domain/join"
	"github.com/okian/rnaught/internal/domain/model"
)

// Growth table columns.
const (
	ColSlope          = "slope"
	ColSlopeError     = "error"
	ColNumberOfPoints = "number_of_points"
	ColStartDate      = "start_date"
	ColEndDate        = "end_date"
	colGrowthCode     = "code"
	colGrowthCountry  = "country"
)

var slopeColumns = []string{
	colGrowthCode, colGrowthCountry, ColSlope, ColSlopeError,
	ColNumberOfPoints, ColStartDate, ColEndDate,
}

// WritePoints writes regression points as tab-separated "x y error" lines.
func WritePoints(path string, points []model.RegressionPoint) error {
	return create(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, p := range points {
			if _, err := fmt.Fprintf(bw, "%d\t%f\t%f\n", p.X, p.Y, p.Error); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// WriteSlopes writes the growth table in the order given.
func WriteSlopes(path string, recs []model.GrowthRecord) error {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, slopeColumns)
	for _, r := range recs {
		rows = append(rows, []string{
			r.Code,
			r.Country,
			join.FormatFloat(r.Slope),
			join.FormatFloat(r.SlopeError),
			strconv.Itoa(r.NumberOfPoints),
			r.StartDate.Format(model.DateLayout),
			r.EndDate.Format(model.DateLayout),
		})
	}
	return create(path, func(w io.Writer) error { return writeAll(w, rows) })
}

// ReadSlopes loads a growth table written by WriteSlopes.
func ReadSlopes(path string) ([]model.GrowthRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slopes: %w", err)
	}
	defer f.Close()
	return DecodeSlopes(f)
}

// DecodeSlopes parses a growth table.
func DecodeSlopes(r io.Reader) ([]model.GrowthRecord, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("%w: slopes header: %w", ErrMalformedRecord, err)
	}
	idx, err := columnIndex(header, slopeColumns...)
	if err != nil {
		return nil, err
	}

	var out []model.GrowthRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: slopes: %w", ErrMalformedRecord, err)
		}
		g := model.GrowthRecord{
			Code:    field(rec, idx[colGrowthCode]),
			Country: field(rec, idx[colGrowthCountry]),
		}
		var perr error
		g.Slope, perr = parseFloat(rec, idx[ColSlope], perr)
		g.SlopeError, perr = parseFloat(rec, idx[ColSlopeError], perr)
		g.StartDate, perr = parseDate(rec, idx[ColStartDate], perr)
		g.EndDate, perr = parseDate(rec, idx[ColEndDate], perr)
		if perr == nil {
			g.NumberOfPoints, perr = strconv.Atoi(field(rec, idx[ColNumberOfPoints]))
		}
		if perr != nil {
			return nil, fmt.Errorf("%w: slopes line %d: %w", ErrMalformedRecord, line, perr)
		}
		out = append(out, g)
	}
	return out, nil
}

// WriteEigen writes the eigenvalue table. Columns after the country are
// the baseline and one per exclusion set.
func WriteEigen(path string, specs model.ExclusionSpec, recs []model.EigenRecord) error {
	header := append([]string{ColCode, colGrowthCountry}, join.EigenColumns(specs)...)
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, header)
	for _, r := range recs {
		if len(r.Values) != len(specs)+1 {
			return fmt.Errorf("%w: %s has %d eigenvalues, want %d", ErrMalformedRecord, r.Code, len(r.Values), len(specs)+1)
		}
		row := make([]string, 0, len(header))
		row = append(row, r.Code, r.Country)
		for _, v := range r.Values {
			row = append(row, join.FormatFloat(v))
		}
		rows = append(rows, row)
	}
	return create(path, func(w io.Writer) error { return writeAll(w, rows) })
}

// ReadEigen loads an eigenvalue table written by WriteEigen.
func ReadEigen(path string, specs model.ExclusionSpec) ([]model.EigenRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open eigenvalues: %w", err)
	}
	defer f.Close()
	return DecodeEigen(f, specs)
}

// DecodeEigen parses an eigenvalue table; specs determine the expected columns.
func DecodeEigen(r io.Reader, specs model.ExclusionSpec) ([]model.EigenRecord, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("%w: eigenvalues header: %w", ErrMalformedRecord, err)
	}
	valueCols := join.EigenColumns(specs)
	idx, err := columnIndex(header, append([]string{ColCode, colGrowthCountry}, valueCols...)...)
	if err != nil {
		return nil, err
	}

	var out []model.EigenRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: eigenvalues: %w", ErrMalformedRecord, err)
		}
		e := model.EigenRecord{
			Code:    field(rec, idx[ColCode]),
			Country: field(rec, idx[colGrowthCountry]),
			Values:  make([]float64, len(valueCols)),
		}
		var perr error
		for i, c := range valueCols {
			e.Values[i], perr = parseFloat(rec, idx[c], perr)
		}
		if perr != nil {
			return nil, fmt.Errorf("%w: eigenvalues line %d: %w", ErrMalformedRecord, line, perr)
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteR0 writes the joined output table.
func WriteR0(path string, specs model.ExclusionSpec, recs []model.R0Record) error {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, join.Columns(specs))
	for _, r := range recs {
		rows = append(rows, join.Row(r))
	}
	return create(path, func(w io.Writer) error { return writeAll(w, rows) })
}

// create writes path through fn, creating parent directories.
func create(path string, fn func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func parseFloat(rec []string, i int, prev error) (float64, error) {
	if prev != nil {
		return 0, prev
	}
	return strconv.ParseFloat(field(rec, i), 64)
}

func parseDate(rec []string, i int, prev error) (time.Time, error) {
	if prev != nil {
		return time.Time{}, prev
	}
	return time.Parse(model.DateLayout, field(rec, i))
}
