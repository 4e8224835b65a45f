// Package table loads delimited source files and normalizes their column labels.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "eventstudy/internal/errors"
)

// NormalizeName lowercases a label and replaces spaces with underscores.
func NormalizeName(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}

// Normalize maps column labels to lowercase underscore form. A label already
// in normal form is kept. When the normalized form of a label already exists
// verbatim among the original labels, it is prefixed with "_" so that no
// column is silently overwritten.
func Normalize(labels []string) []string {
	original := make(map[string]bool, len(labels))
	for _, l := range labels {
		original[l] = true
	}

	out := make([]string, len(labels))
	for i, l := range labels {
		n := NormalizeName(l)
		switch {
		case n == l:
			out[i] = l
		case original[n]:
			out[i] = "_" + n
		default:
			out[i] = n
		}
	}
	return out
}

// Frame is an eagerly loaded table of string cells.
type Frame struct {
	Name   string
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadFile loads a CSV file into a Frame.
func ReadFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(filepath.Base(path), f)
}

// Read loads CSV data into a Frame. The first record is the header.
func Read(name string, r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return newFrame(name, nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		rows = append(rows, rec)
	}

	return newFrame(name, header, rows), nil
}

func newFrame(name string, header []string, rows [][]string) *Frame {
	f := &Frame{Name: name, Header: header, Rows: rows}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Header))
	for i, h := range f.Header {
		if _, ok := f.index[h]; !ok {
			f.index[h] = i
		}
	}
}

// Require checks that every named column is present, either verbatim or
// after normalization. It is meant to run before Normalize.
func (f *Frame) Require(cols ...string) error {
	present := make(map[string]bool, len(f.Header)*2)
	for _, h := range f.Header {
		present[h] = true
		present[NormalizeName(h)] = true
	}

	var missing []string
	for _, c := range cols {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewSchemaError(f.Name, missing)
	}
	return nil
}

// Normalize rewrites the header in place and returns the frame.
func (f *Frame) Normalize() *Frame {
	f.Header = Normalize(f.Header)
	f.reindex()
	return f
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Col returns the index of a column, or -1.
func (f *Frame) Col(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// Get returns a cell by row and column name. Short rows yield "".
func (f *Frame) Get(row int, col string) string {
	i := f.Col(col)
	if i < 0 || i >= len(f.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(f.Rows[row][i])
}

// IsMissing reports whether a cell holds no value.
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "nan", "null", "na", "n/a", "none":
		return true
	}
	return false
}
