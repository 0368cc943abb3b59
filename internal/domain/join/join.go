// Package join merges per-country growth, eigenvalue and region tables into
// R0 rows.
package join

import (
	"math"
	"sort"
	"strconv"

	"github.com/okian/rnaught/internal/domain/model"
)

// EigenColumn is the header of the unexcluded eigenvalue column. Excluded
// columns append the set label, e.g. "pf_eigenvalue [0, 1]".
const EigenColumn = "pf_eigenvalue"

// scalarColumns precede the eigenvalue columns in every output row.
var scalarColumns = []string{
	"code", "country", "region", "subregion",
	"slope", "slope_error", "number_of_points", "start_date", "end_date",
	"r0", "r0_error",
}

// Transform maps a growth rate and its error to R0 and its error.
type Transform func(r, dr float64) (float64, float64, error)

// Gaps counts codes dropped by the inner join, per missing table.
// A code missing from two tables is counted under both.
type Gaps struct {
	MissingGrowth int
	MissingEigen  int
	MissingRegion int
	Dropped       []string // sorted codes present somewhere but not everywhere
}

// Result is the outcome of a join.
type Result struct {
	Records   map[string]model.R0Record
	Codes     []string // sorted keys of Records
	NonFinite []string // codes whose transform left its domain
	Gaps      Gaps
}

// Join inner-joins the three tables on code. Fields are merged region first,
// then growth, then eigenvalues; r0 and r0_error come from transform.
func Join(
	growth map[string]model.GrowthRecord,
	eigen map[string]model.EigenRecord,
	regions map[string]model.Region,
	transform Transform,
) Result {
	res := Result{Records: make(map[string]model.R0Record)}

	all := make(map[string]struct{}, len(growth)+len(eigen)+len(regions))
	for c := range growth {
		all[c] = struct{}{}
	}
	for c := range eigen {
		all[c] = struct{}{}
	}
	for c := range regions {
		all[c] = struct{}{}
	}

	for code := range all {
		g, okG := growth[code]
		e, okE := eigen[code]
		reg, okR := regions[code]
		if !okG || !okE || !okR {
			if !okG {
				res.Gaps.MissingGrowth++
			}
			if !okE {
				res.Gaps.MissingEigen++
			}
			if !okR {
				res.Gaps.MissingRegion++
			}
			res.Gaps.Dropped = append(res.Gaps.Dropped, code)
			continue
		}

		rec := merge(reg, g, e)
		v, verr, err := transform(g.Slope, g.SlopeError)
		rec.R0, rec.R0Error, rec.R0Valid = v, verr, err == nil
		if err != nil {
			res.NonFinite = append(res.NonFinite, code)
		}
		res.Records[code] = rec
		res.Codes = append(res.Codes, code)
	}

	sort.Strings(res.Codes)
	sort.Strings(res.Gaps.Dropped)
	sort.Strings(res.NonFinite)
	return res
}

func merge(reg model.Region, g model.GrowthRecord, e model.EigenRecord) model.R0Record {
	rec := model.R0Record{
		Code:      reg.Code,
		Country:   reg.Country,
		Region:    reg.Region,
		SubRegion: reg.SubRegion,
	}
	if g.Country != "" {
		rec.Country = g.Country
	}
	rec.Slope = g.Slope
	rec.SlopeError = g.SlopeError
	rec.NumberOfPoints = g.NumberOfPoints
	rec.StartDate = g.StartDate
	rec.EndDate = g.EndDate
	if e.Country != "" {
		rec.Country = e.Country
	}
	rec.Eigenvalues = append([]float64(nil), e.Values...)
	return rec
}

// EigenColumns returns the eigenvalue headers in exclusion order.
func EigenColumns(specs model.ExclusionSpec) []string {
	cols := make([]string, 0, len(specs)+1)
	cols = append(cols, EigenColumn)
	for _, set := range specs {
		cols = append(cols, EigenColumn+" "+model.Label(set))
	}
	return cols
}

// Columns returns the full R0 table header: scalar columns, then eigenvalue columns.
func Columns(specs model.ExclusionSpec) []string {
	cols := append([]string(nil), scalarColumns...)
	return append(cols, EigenColumns(specs)...)
}

// Row renders rec in Columns order. Non-finite r0 values are written as NaN.
func Row(rec model.R0Record) []string {
	r0, r0Err := rec.R0, rec.R0Error
	if !rec.R0Valid {
		r0, r0Err = math.NaN(), math.NaN()
	}
	row := []string{
		rec.Code,
		rec.Country,
		rec.Region,
		rec.SubRegion,
		FormatFloat(rec.Slope),
		FormatFloat(rec.SlopeError),
		strconv.Itoa(rec.NumberOfPoints),
		rec.StartDate.Format(model.DateLayout),
		rec.EndDate.Format(model.DateLayout),
		FormatFloat(r0),
		FormatFloat(r0Err),
	}
	for _, v := range rec.Eigenvalues {
		row = append(row, FormatFloat(v))
	}
	return row
}

// FormatFloat writes the shortest representation that parses back to v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
