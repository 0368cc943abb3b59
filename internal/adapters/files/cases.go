// Package files reads the pipeline's JSON and CSV inputs and writes its
// CSV tables.
package files

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/okian/rnaught/internal/domain/model"
)

var jsonNull = []byte("null")

// owidCountry is one entry of the OWID case file, keyed by ISO code.
type owidCountry struct {
	Location string                       `json:"location"`
	Data     []map[string]json.RawMessage `json:"data"`
}

// CaseError names a country dropped because its case data is malformed.
type CaseError struct {
	Code string
	Err  error
}

func (e *CaseError) Error() string { return fmt.Sprintf("cases %s: %v", e.Code, e.Err) }

func (e *CaseError) Unwrap() error { return e.Err }

// ReadCases loads the OWID case file. Files ending in .gz are decompressed.
// Countries with malformed data are returned separately; the error is set
// only when the file as a whole cannot be read.
func ReadCases(path string) (map[string]model.Series, []*CaseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cases: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open cases: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return DecodeCases(r)
}

// DecodeCases decodes OWID JSON into date-ordered series keyed by code.
// Every numeric field of an entry is kept; non-numeric and null fields are
// ignored. A country with an undecodable entry is dropped and reported as a
// CaseError without affecting the others.
func DecodeCases(r io.Reader) (map[string]model.Series, []*CaseError, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("%w: cases: %w", ErrMalformedRecord, err)
	}

	out := make(map[string]model.Series, len(raw))
	var dropped []*CaseError
	for code, body := range raw {
		s, err := decodeCountry(code, body)
		if err != nil {
			dropped = append(dropped, &CaseError{Code: code, Err: err})
			continue
		}
		out[code] = s
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Code < dropped[j].Code })
	return out, dropped, nil
}

func decodeCountry(code string, body json.RawMessage) (model.Series, error) {
	var c owidCountry
	if err := json.Unmarshal(body, &c); err != nil {
		return model.Series{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	s := model.Series{Code: code, Country: c.Location, Points: make([]model.TimeSeriesPoint, 0, len(c.Data))}
	for i, entry := range c.Data {
		p, err := decodeEntry(entry)
		if err != nil {
			return model.Series{}, fmt.Errorf("%w: entry %d: %w", ErrMalformedRecord, i, err)
		}
		s.Points = append(s.Points, p)
	}
	sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
	return s, nil
}

func decodeEntry(entry map[string]json.RawMessage) (model.TimeSeriesPoint, error) {
	var p model.TimeSeriesPoint
	rawDate, ok := entry["date"]
	if !ok {
		return p, fmt.Errorf("missing date")
	}
	var ds string
	if err := json.Unmarshal(rawDate, &ds); err != nil {
		return p, fmt.Errorf("date: %w", err)
	}
	d, err := time.Parse(model.DateLayout, ds)
	if err != nil {
		return p, fmt.Errorf("date: %w", err)
	}
	p.Date = d
	p.Values = make(map[string]float64, len(entry))
	for k, v := range entry {
		if k == "date" || bytes.Equal(v, jsonNull) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			p.Values[k] = f
		}
	}
	return p, nil
}
