package prem

import "errors"

// Sentinel error kinds for the Prem importer.
var (
	ErrMalformedJSON  = errors.New("malformed prem json")
	ErrNotSquare      = errors.New("prem matrix is not square")
	ErrStrataMismatch = errors.New("prem row strata differ from the first country")
	ErrNoHeadings     = errors.New("strata labels unknown; import the file with headings first")
)
