// Package dataset provides the tabular frame abstraction shared by the
// feature engineering, preprocessing and monitoring layers. A Frame keeps
// column order stable; every transform in the pipeline depends on that.
package dataset

import (
	"fmt"
)

// MissingColumnError reports a required column absent from a frame. It is a
// fatal input-validation error: callers must not continue with partial data.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("dataset: required column %q missing", e.Column)
}

// Frame is ordered, column-major tabular data. Numeric and string columns are
// kept separately; insertion order is preserved and drives the feature-name
// contract downstream.
type Frame struct {
	rows         int
	numericOrder []string
	numeric      map[string][]float64
	stringOrder  []string
	strs         map[string][]string
}

// New returns an empty frame with the given row count.
func New(rows int) *Frame {
	return &Frame{
		rows:    rows,
		numeric: make(map[string][]float64),
		strs:    make(map[string][]string),
	}
}

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// AddNumeric appends a numeric column. The column must be new and match the
// frame's row count.
func (f *Frame) AddNumeric(name string, values []float64) error {
	if f.Has(name) {
		return fmt.Errorf("dataset: column %q already exists", name)
	}
	if len(values) != f.rows {
		return fmt.Errorf("dataset: column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.numericOrder = append(f.numericOrder, name)
	f.numeric[name] = values
	return nil
}

// AddString appends a string column under the same constraints as AddNumeric.
func (f *Frame) AddString(name string, values []string) error {
	if f.Has(name) {
		return fmt.Errorf("dataset: column %q already exists", name)
	}
	if len(values) != f.rows {
		return fmt.Errorf("dataset: column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.stringOrder = append(f.stringOrder, name)
	f.strs[name] = values
	return nil
}

// Numeric returns the named numeric column, or a MissingColumnError.
func (f *Frame) Numeric(name string) ([]float64, error) {
	col, ok := f.numeric[name]
	if !ok {
		return nil, &MissingColumnError{Column: name}
	}
	return col, nil
}

// String returns the named string column, or a MissingColumnError.
func (f *Frame) String(name string) ([]string, error) {
	col, ok := f.strs[name]
	if !ok {
		return nil, &MissingColumnError{Column: name}
	}
	return col, nil
}

// Has reports whether any column with the given name exists.
func (f *Frame) Has(name string) bool {
	_, num := f.numeric[name]
	_, str := f.strs[name]
	return num || str
}

// NumericNames returns the numeric column names in insertion order.
func (f *Frame) NumericNames() []string {
	out := make([]string, len(f.numericOrder))
	copy(out, f.numericOrder)
	return out
}

// StringNames returns the string column names in insertion order.
func (f *Frame) StringNames() []string {
	out := make([]string, len(f.stringOrder))
	copy(out, f.stringOrder)
	return out
}

// Drop removes the named column if present. Dropping an absent column is a
// no-op; identifier columns are optional at inference time.
func (f *Frame) Drop(name string) {
	if _, ok := f.numeric[name]; ok {
		delete(f.numeric, name)
		f.numericOrder = remove(f.numericOrder, name)
	}
	if _, ok := f.strs[name]; ok {
		delete(f.strs, name)
		f.stringOrder = remove(f.stringOrder, name)
	}
}

// Clone returns a deep copy. The drift detector stores reference snapshots
// this way so later mutation of the source frame cannot leak in.
func (f *Frame) Clone() *Frame {
	out := New(f.rows)
	for _, name := range f.numericOrder {
		col := make([]float64, f.rows)
		copy(col, f.numeric[name])
		out.numericOrder = append(out.numericOrder, name)
		out.numeric[name] = col
	}
	for _, name := range f.stringOrder {
		col := make([]string, f.rows)
		copy(col, f.strs[name])
		out.stringOrder = append(out.stringOrder, name)
		out.strs[name] = col
	}
	return out
}

// Select returns a new frame containing only the rows where keep is true,
// preserving row order. len(keep) must equal Rows.
func (f *Frame) Select(keep []bool) (*Frame, error) {
	if len(keep) != f.rows {
		return nil, fmt.Errorf("dataset: keep mask has %d entries, frame has %d rows", len(keep), f.rows)
	}
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := New(n)
	for _, name := range f.numericOrder {
		src := f.numeric[name]
		col := make([]float64, 0, n)
		for i, k := range keep {
			if k {
				col = append(col, src[i])
			}
		}
		out.numericOrder = append(out.numericOrder, name)
		out.numeric[name] = col
	}
	for _, name := range f.stringOrder {
		src := f.strs[name]
		col := make([]string, 0, n)
		for i, k := range keep {
			if k {
				col = append(col, src[i])
			}
		}
		out.stringOrder = append(out.stringOrder, name)
		out.strs[name] = col
	}
	return out, nil
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
