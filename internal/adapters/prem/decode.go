package prem

import (
	"encoding/json"
	"fmt"
	"io"
)

// cell is one key/value pair of a row object, in file order.
type cell struct {
	Key   string
	Value float64
}

// country is one top-level entry: a name and its row objects.
type country struct {
	Name string
	Rows [][]cell
}

// decode reads {"name": [{"k": v, ...}, ...], ...} keeping key order, which
// encoding/json maps discard and the headless file depends on.
func decode(r io.Reader) ([]country, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []country
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, country{Name: name, Rows: rows})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeRows(dec *json.Decoder) ([][]cell, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var rows [][]cell
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		var row []cell
		for dec.More() {
			key, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
			}
			n, ok := tok.(json.Number)
			if !ok {
				return nil, fmt.Errorf("%w: value of %q is not a number", ErrMalformedJSON, key)
			}
			v, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
			}
			row = append(row, cell{Key: key, Value: v})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return rows, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedJSON, want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected key, got %v", ErrMalformedJSON, tok)
	}
	return s, nil
}
