// Package prem splits the Prem 2017 contact matrix workbooks, exported as
// JSON, into one CSV matrix per country named by ISO-alpha3 code.
package prem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/rnaught/internal/adapters/files"
	"github.com/okian/rnaught/internal/domain/model"
	"github.com/okian/rnaught/pkg/logger"
)

// nameFixes maps sheet names that do not match the UNSD table, several of
// them truncated to 31 characters, to their codes.
var nameFixes = map[string]string{
	"Bolivia (Plurinational State of": "BOL",
	"Czech Republic":                  "CZE",
	"Hong Kong SAR, China":            "HKG",
	"Lao People's Democratic Republi": "LAO",
	"Sao Tome and Principe":           "STP",
	"Taiwan":                          "TWN",
	"TFYR of Macedonia":               "MKD",
	"United Kingdom of Great Britain": "GBR",
	"Venezuela (Bolivarian Republic":  "VEN",
	"MO":                              "MAC",
}

// Result lists what an import produced.
type Result struct {
	Written    []string // codes, in file order
	Unresolved []string // country names without a code
}

// Importer writes per-country matrices into a directory.
type Importer struct {
	codes  map[string]string
	outDir string
	labels []string
	log    logger.Logger
}

// NewImporter creates an Importer resolving names through codes (country
// name -> ISO-alpha3 code) and writing into outDir.
func NewImporter(codes map[string]string, outDir string) *Importer {
	return &Importer{codes: codes, outDir: outDir, log: logger.Named("prem")}
}

// Code resolves a sheet name to its code.
func (im *Importer) Code(name string) (string, bool) {
	if c, ok := im.codes[name]; ok && c != "" {
		return c, true
	}
	c, ok := nameFixes[strings.TrimSpace(name)]
	return c, ok
}

// Run imports the file with headings, then the file without.
func (im *Importer) Run(ctx context.Context, withHeadings, withoutHeadings string) (Result, error) {
	var res Result
	if err := im.importFile(ctx, withHeadings, true, &res); err != nil {
		return res, err
	}
	if err := im.importFile(ctx, withoutHeadings, false, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, path string, headings bool, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open prem file: %w", err)
	}
	defer f.Close()

	countries, err := decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for _, c := range countries {
		if err := ctx.Err(); err != nil {
			return err
		}
		var cm model.ContactMatrix
		if headings {
			cm, err = im.withHeadings(c)
		} else {
			cm, err = im.withoutHeadings(c)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}

		code, ok := im.Code(c.Name)
		if !ok {
			im.log.Warn(ctx, "no code for prem country", logger.String("country", c.Name))
			res.Unresolved = append(res.Unresolved, c.Name)
			continue
		}
		cm.Code = code
		if err := im.write(cm); err != nil {
			return err
		}
		res.Written = append(res.Written, code)
	}
	return nil
}

// withHeadings reads rows keyed by stratum label. The first country fixes
// the labels for both files.
func (im *Importer) withHeadings(c country) (model.ContactMatrix, error) {
	if len(c.Rows) == 0 {
		return model.ContactMatrix{}, fmt.Errorf("%w: no rows", ErrNotSquare)
	}
	if im.labels == nil {
		for _, cl := range c.Rows[0] {
			im.labels = append(im.labels, cl.Key)
		}
	}
	n := len(im.labels)
	if len(c.Rows) != n {
		return model.ContactMatrix{}, fmt.Errorf("%w: %d rows, %d strata", ErrNotSquare, len(c.Rows), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range c.Rows {
		if len(row) != n {
			return model.ContactMatrix{}, fmt.Errorf("%w: row %d", ErrStrataMismatch, i)
		}
		for j, cl := range row {
			if cl.Key != im.labels[j] {
				return model.ContactMatrix{}, fmt.Errorf("%w: row %d key %q", ErrStrataMismatch, i, cl.Key)
			}
			data = append(data, cl.Value)
		}
	}
	return model.ContactMatrix{Labels: im.labels, Data: mat.NewDense(n, n, data)}, nil
}

// withoutHeadings reads rows whose keys are the first row's values, so the
// matrix has one row fewer than it has strata.
func (im *Importer) withoutHeadings(c country) (model.ContactMatrix, error) {
	n := len(im.labels)
	if n == 0 {
		return model.ContactMatrix{}, ErrNoHeadings
	}
	if n < 2 || len(c.Rows) != n-1 {
		return model.ContactMatrix{}, fmt.Errorf("%w: %d rows, %d strata", ErrNotSquare, len(c.Rows)+1, n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range c.Rows {
		if len(row) != n {
			return model.ContactMatrix{}, fmt.Errorf("%w: row %d has %d values", ErrNotSquare, i, len(row))
		}
		if i == 0 {
			for _, cl := range row {
				v, err := strconv.ParseFloat(cl.Key, 64)
				if err != nil {
					return model.ContactMatrix{}, fmt.Errorf("%w: first row key %q: %w", ErrMalformedJSON, cl.Key, err)
				}
				data = append(data, v)
			}
		}
		for _, cl := range row {
			data = append(data, cl.Value)
		}
	}
	return model.ContactMatrix{Labels: im.labels, Data: mat.NewDense(n, n, data)}, nil
}

func (im *Importer) write(cm model.ContactMatrix) (err error) {
	if err := os.MkdirAll(im.outDir, 0o755); err != nil {
		return fmt.Errorf("create matrices dir: %w", err)
	}
	path := filepath.Join(im.outDir, cm.Code+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return files.WriteMatrix(f, cm)
}
