/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRagged          = errors.New("columns have different lengths")
	ErrDuplicateColumn = errors.New("duplicate column name")
	ErrColumnNotFound  = errors.New("column not found")
)

// Column is a named sequence of cells aligned by row index.
type Column struct {
	Name   string
	Values []Value
}

// Dataset is an ordered collection of equally long columns.
//
// A Dataset is never modified after construction: every transformation
// returns a new Dataset and leaves the receiver as it was. Column value
// slices may be shared between datasets and must not be written to.
type Dataset struct {
	cols  []Column
	index map[string]int
}

// New builds a Dataset from column names and row-major cells.
func New(names []string, rows [][]Value) (*Dataset, error) {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Values: make([]Value, 0, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRagged, r, len(row), len(names))
		}
		for i, v := range row {
			cols[i].Values = append(cols[i].Values, Normalize(v))
		}
	}
	return build(cols)
}

// FromColumns builds a Dataset from whole columns. The values are copied.
func FromColumns(cols ...Column) (*Dataset, error) {
	out := make([]Column, len(cols))
	for i, c := range cols {
		vals := make([]Value, len(c.Values))
		for j, v := range c.Values {
			vals[j] = Normalize(v)
		}
		out[i] = Column{Name: c.Name, Values: vals}
	}
	return build(out)
}

// Empty returns a Dataset without columns or rows.
func Empty() *Dataset {
	return &Dataset{index: map[string]int{}}
}

func build(cols []Column) (*Dataset, error) {
	d := &Dataset{cols: cols, index: make(map[string]int, len(cols))}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	for i, c := range cols {
		d.index[c.Name] = i
	}
	return d, nil
}

// Validate checks the Dataset invariants: unique column names and equal lengths.
func (d *Dataset) Validate() error {
	seen := make(map[string]struct{}, len(d.cols))
	for _, c := range d.cols {
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != len(d.cols[0].Values) {
			return fmt.Errorf("%w: %q has %d rows, %q has %d",
				ErrRagged, c.Name, len(c.Values), d.cols[0].Name, len(d.cols[0].Values))
		}
	}
	return nil
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.Name
	}
	return names
}

func (d *Dataset) NumCols() int { return len(d.cols) }

func (d *Dataset) NumRows() int {
	if len(d.cols) == 0 {
		return 0
	}
	return len(d.cols[0].Values)
}

// Column returns the named column. The returned values must not be modified.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.cols[i], true
}

// Values returns the cells of the named column.
func (d *Dataset) Values(name string) ([]Value, error) {
	c, ok := d.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return c.Values, nil
}

// LookupFold finds a column by case-insensitive name and returns its real name.
func (d *Dataset) LookupFold(name string) (string, bool) {
	if _, ok := d.index[name]; ok {
		return name, true
	}
	for _, c := range d.cols {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

// Row returns the cells of row i in column order.
func (d *Dataset) Row(i int) []Value {
	row := make([]Value, len(d.cols))
	for j, c := range d.cols {
		row[j] = c.Values[i]
	}
	return row
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n >= d.NumRows() {
		return d
	}
	cols := make([]Column, len(d.cols))
	for i, c := range d.cols {
		cols[i] = Column{Name: c.Name, Values: c.Values[:n:n]}
	}
	return &Dataset{cols: cols, index: d.index}
}

// WithColumn sets the named column, replacing it in place or appending it.
// values must match the row count unless the Dataset has no columns yet.
func (d *Dataset) WithColumn(name string, values []Value) (*Dataset, error) {
	if len(d.cols) > 0 && len(values) != d.NumRows() {
		return nil, fmt.Errorf("%w: column %q has %d values, dataset has %d rows",
			ErrRagged, name, len(values), d.NumRows())
	}
	cols := make([]Column, len(d.cols), len(d.cols)+1)
	copy(cols, d.cols)
	if i, ok := d.index[name]; ok {
		cols[i] = Column{Name: name, Values: values}
	} else {
		cols = append(cols, Column{Name: name, Values: values})
	}
	return build(cols)
}

// Drop removes the named columns.
func (d *Dataset) Drop(names ...string) (*Dataset, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := d.index[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, n)
		}
		drop[n] = struct{}{}
	}
	cols := make([]Column, 0, len(d.cols))
	for _, c := range d.cols {
		if _, ok := drop[c.Name]; !ok {
			cols = append(cols, c)
		}
	}
	return build(cols)
}

// Rename renames columns. Every source column must exist.
func (d *Dataset) Rename(mapping map[string]string) (*Dataset, error) {
	for from := range mapping {
		if _, ok := d.index[from]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, from)
		}
	}
	cols := make([]Column, len(d.cols))
	for i, c := range d.cols {
		if to, ok := mapping[c.Name]; ok {
			c.Name = to
		}
		cols[i] = c
	}
	return build(cols)
}

// Select keeps the named columns in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, n)
		}
		cols = append(cols, c)
	}
	return build(cols)
}

// Take keeps the given rows in the given order.
func (d *Dataset) Take(rows []int) (*Dataset, error) {
	n := d.NumRows()
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("row %d out of range [0, %d)", r, n)
		}
	}
	cols := make([]Column, len(d.cols))
	for i, c := range d.cols {
		vals := make([]Value, len(rows))
		for j, r := range rows {
			vals[j] = c.Values[r]
		}
		cols[i] = Column{Name: c.Name, Values: vals}
	}
	return build(cols)
}

// Equal reports whether both datasets hold the same columns and cells.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil || len(d.cols) != len(o.cols) || d.NumRows() != o.NumRows() {
		return false
	}
	for i, c := range d.cols {
		oc := o.cols[i]
		if c.Name != oc.Name {
			return false
		}
		for r, v := range c.Values {
			if v != oc.Values[r] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the rows as records, keeping the column order.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for r := 0; r < d.NumRows(); r++ {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, c := range d.cols {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(c.Name)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(c.Values[r])
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset[%d rows x %d columns]", d.NumRows(), d.NumCols())
}
