package files

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/rnaught/internal/domain/model"
)

// UNSD code table columns. Other columns are ignored because the published
// file has corrupt columns.
const (
	ColCountry   = "Country or Area"
	ColRegion    = "Region Name"
	ColSubRegion = "Sub-region Name"
	ColCode      = "ISO-alpha3 Code"
)

// ReadRegions loads the UNSD code table keyed by ISO-alpha3 code.
func ReadRegions(path string) (map[string]model.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open codes: %w", err)
	}
	defer f.Close()
	return DecodeRegions(f)
}

// DecodeRegions parses the UNSD code table. Rows without a code are skipped;
// the first row wins for a repeated code.
func DecodeRegions(r io.Reader) (map[string]model.Region, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("%w: codes header: %w", ErrMalformedRecord, err)
	}
	idx, err := columnIndex(header, ColCode, ColCountry, ColRegion, ColSubRegion)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.Region)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: codes: %w", ErrMalformedRecord, err)
		}
		code := field(rec, idx[ColCode])
		if code == "" {
			continue
		}
		if _, dup := out[code]; dup {
			continue
		}
		out[code] = model.Region{
			Code:      code,
			Country:   field(rec, idx[ColCountry]),
			Region:    field(rec, idx[ColRegion]),
			SubRegion: field(rec, idx[ColSubRegion]),
		}
	}
	return out, nil
}

// CountryCodes inverts a region table into country name -> code.
func CountryCodes(regions map[string]model.Region) map[string]string {
	out := make(map[string]string, len(regions))
	for code, r := range regions {
		if r.Country != "" {
			out[r.Country] = code
		}
	}
	return out
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

func columnIndex(header []string, names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	out := make(map[string]int, len(names))
	for _, n := range names {
		i, ok := idx[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, n)
		}
		out[n] = i
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
