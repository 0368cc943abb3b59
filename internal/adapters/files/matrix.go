package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/rnaught/internal/domain/join"
	"github.com/okian/rnaught/internal/domain/model"
)

const codeLen = 3

// MatrixFile is a discovered contact matrix file.
type MatrixFile struct {
	Code string
	Path string
}

// CodeFromFilename returns the code of a "<CODE>.csv" file name, where CODE is
// three upper-case letters, or false.
func CodeFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, ".csv") {
		return "", false
	}
	code := strings.TrimSuffix(name, ".csv")
	if len(code) != codeLen {
		return "", false
	}
	for _, r := range code {
		if !unicode.IsUpper(r) {
			return "", false
		}
	}
	return code, true
}

// DiscoverMatrices lists "<CODE>.csv" files in dir sorted by name. Other
// entries are returned in skipped.
func DiscoverMatrices(dir string) (found []MatrixFile, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read matrices dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		code, ok := CodeFromFilename(e.Name())
		if !ok {
			skipped = append(skipped, e.Name())
			continue
		}
		found = append(found, MatrixFile{Code: code, Path: filepath.Join(dir, e.Name())})
	}
	return found, skipped, nil
}

// ReadMatrix loads a contact matrix CSV. dim > 0 enforces the dimension.
func ReadMatrix(path, code string, dim int) (model.ContactMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ContactMatrix{}, fmt.Errorf("open matrix: %w", err)
	}
	defer f.Close()
	return DecodeMatrix(f, code, dim)
}

// DecodeMatrix parses a matrix CSV whose header row names the strata and whose
// first column repeats them as row labels. The first column is dropped.
func DecodeMatrix(r io.Reader, code string, dim int) (model.ContactMatrix, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.ContactMatrix{}, ErrEmptyInput
		}
		return model.ContactMatrix{}, fmt.Errorf("%w: matrix header: %w", ErrMalformedRecord, err)
	}
	if len(header) < 2 {
		return model.ContactMatrix{}, fmt.Errorf("%w: header has %d columns", ErrMatrixShape, len(header))
	}
	labels := append([]string(nil), header[1:]...)
	n := len(labels)

	var data []float64
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.ContactMatrix{}, fmt.Errorf("%w: matrix: %w", ErrMalformedRecord, err)
		}
		if len(rec) != n+1 {
			return model.ContactMatrix{}, fmt.Errorf("%w: row %d has %d values, want %d", ErrMatrixShape, rows, len(rec)-1, n)
		}
		for j, s := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return model.ContactMatrix{}, fmt.Errorf("%w: row %d col %d: %w", ErrMalformedRecord, rows, j, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows != n {
		return model.ContactMatrix{}, fmt.Errorf("%w: %dx%d", ErrMatrixShape, rows, n)
	}
	if dim > 0 && n != dim {
		return model.ContactMatrix{}, fmt.Errorf("%w: %dx%d, want %dx%d", ErrMatrixShape, n, n, dim, dim)
	}
	return model.ContactMatrix{Code: code, Labels: labels, Data: mat.NewDense(n, n, data)}, nil
}

// WriteMatrix writes cm in the format DecodeMatrix reads.
func WriteMatrix(w io.Writer, cm model.ContactMatrix) error {
	n, _ := cm.Data.Dims()
	if len(cm.Labels) != n {
		return fmt.Errorf("%w: %d labels for %d rows", ErrMatrixShape, len(cm.Labels), n)
	}
	rows := make([][]string, 0, n+1)
	rows = append(rows, append([]string{""}, cm.Labels...))
	for i := 0; i < n; i++ {
		row := make([]string, 0, n+1)
		row = append(row, cm.Labels[i])
		for j := 0; j < n; j++ {
			row = append(row, join.FormatFloat(cm.Data.At(i, j)))
		}
		rows = append(rows, row)
	}
	return writeAll(w, rows)
}
