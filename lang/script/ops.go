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

package script

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/tabcoder/lang/frame"
)

// Op is one table operation of a Program. Apply never modifies its input.
type Op interface {
	// Kind names the operation in messages.
	Kind() string
	// Line is the 1-based source line the operation came from.
	Line() int
	// Reads lists the columns that must exist before the operation runs.
	Reads() []string
	// Schema returns the column names after the operation, given those before it.
	Schema(cols []string) []string
	Apply(ctx context.Context, ds *frame.Dataset) (*frame.Dataset, error)
}

// Program is generated code reduced to a sequence of table operations.
type Program struct {
	Source string
	Ops    []Op
	// Notes lists statements accepted without effect on the table.
	Notes []string
}

// Dependencies replays the schema effect of each operation and returns the
// columns read before anything defines them, compared case-insensitively.
func (p *Program) Dependencies(columns []string) []string {
	cols := append([]string(nil), columns...)
	var unknown []string
	reported := map[string]bool{}
	for _, op := range p.Ops {
		for _, name := range missingFrom(op.Reads(), cols) {
			if key := strings.ToLower(name); !reported[key] {
				reported[key] = true
				unknown = append(unknown, name)
			}
		}
		cols = op.Schema(cols)
	}
	return unknown
}

type pos int

func (p pos) Line() int { return int(p) }

// AssignColumn sets a column to an expression, creating it if needed.
type AssignColumn struct {
	pos
	Target string
	Expr   *Expr
}

func (o *AssignColumn) Kind() string                  { return "assign " + o.Target }
func (o *AssignColumn) Reads() []string               { return o.Expr.Columns() }
func (o *AssignColumn) Schema(cols []string) []string { return withName(cols, o.Target) }

func (o *AssignColumn) Apply(ctx context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	vals, err := o.Expr.Eval(ctx, ds)
	if err != nil {
		return nil, err
	}
	return ds.WithColumn(o.Target, vals)
}

// AssignWhere sets a column to an expression on the rows selected by a mask.
// Unselected rows keep their value, or are missing in a new column.
type AssignWhere struct {
	pos
	Target string
	Mask   *Expr
	Value  *Expr
}

func (o *AssignWhere) Kind() string { return "assign " + o.Target }

func (o *AssignWhere) Reads() []string {
	return union(o.Mask.Columns(), o.Value.Columns())
}

func (o *AssignWhere) Schema(cols []string) []string { return withName(cols, o.Target) }

func (o *AssignWhere) Apply(ctx context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	mask, err := o.Mask.Mask(ctx, ds)
	if err != nil {
		return nil, err
	}
	vals, err := o.Value.Eval(ctx, ds)
	if err != nil {
		return nil, err
	}
	out := make([]frame.Value, ds.NumRows())
	if c, ok := ds.Column(o.Target); ok {
		copy(out, c.Values)
	}
	for i, m := range mask {
		if m {
			out[i] = vals[i]
		}
	}
	return ds.WithColumn(o.Target, out)
}

// DropColumns removes columns.
type DropColumns struct {
	pos
	Columns       []string
	IgnoreMissing bool
}

func (o *DropColumns) Kind() string { return "drop " + strings.Join(o.Columns, ", ") }

func (o *DropColumns) Reads() []string {
	if o.IgnoreMissing {
		return nil
	}
	return o.Columns
}

func (o *DropColumns) Schema(cols []string) []string {
	drop := map[string]bool{}
	for _, c := range o.Columns {
		drop[c] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

func (o *DropColumns) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	names := o.Columns
	if o.IgnoreMissing {
		names = present(ds, names)
	}
	return ds.Drop(names...)
}

// Rename is one entry of a column rename.
type Rename struct {
	From, To string
}

// RenameColumns renames columns. Names absent from the table are ignored.
type RenameColumns struct {
	pos
	Renames []Rename
}

func (o *RenameColumns) Kind() string                  { return "rename" }
func (o *RenameColumns) Reads() []string               { return nil }
func (o *RenameColumns) Schema(cols []string) []string { return renamed(cols, o.Renames) }

func (o *RenameColumns) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	mapping := make(map[string]string, len(o.Renames))
	for _, r := range o.Renames {
		if _, ok := ds.Column(r.From); ok {
			mapping[r.From] = r.To
		}
	}
	return ds.Rename(mapping)
}

// SelectColumns keeps the listed columns in the listed order.
type SelectColumns struct {
	pos
	Columns []string
}

func (o *SelectColumns) Kind() string             { return "select " + strings.Join(o.Columns, ", ") }
func (o *SelectColumns) Reads() []string          { return o.Columns }
func (o *SelectColumns) Schema([]string) []string { return append([]string(nil), o.Columns...) }

func (o *SelectColumns) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	return ds.Select(o.Columns...)
}

// FilterRows keeps the rows where a predicate holds. Missing results drop the row.
type FilterRows struct {
	pos
	Predicate *Expr
}

func (o *FilterRows) Kind() string                  { return "filter" }
func (o *FilterRows) Reads() []string               { return o.Predicate.Columns() }
func (o *FilterRows) Schema(cols []string) []string { return cols }

func (o *FilterRows) Apply(ctx context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	mask, err := o.Predicate.Mask(ctx, ds)
	if err != nil {
		return nil, err
	}
	rows := make([]int, 0, len(mask))
	for i, m := range mask {
		if m {
			rows = append(rows, i)
		}
	}
	return ds.Take(rows)
}

// DropMissing removes rows with missing cells in Subset, or in any column
// when Subset is empty. With All set a row goes only when every cell is missing.
type DropMissing struct {
	pos
	Subset []string
	All    bool
}

func (o *DropMissing) Kind() string                  { return "dropna" }
func (o *DropMissing) Reads() []string               { return o.Subset }
func (o *DropMissing) Schema(cols []string) []string { return cols }

func (o *DropMissing) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	names := o.Subset
	if len(names) == 0 {
		names = ds.Columns()
	}
	cols := make([][]frame.Value, len(names))
	for i, n := range names {
		vals, err := ds.Values(n)
		if err != nil {
			return nil, err
		}
		cols[i] = vals
	}
	rows := make([]int, 0, ds.NumRows())
	for r := 0; r < ds.NumRows(); r++ {
		missing := 0
		for _, c := range cols {
			if c[r] == nil {
				missing++
			}
		}
		drop := missing > 0
		if o.All {
			drop = len(cols) > 0 && missing == len(cols)
		}
		if !drop {
			rows = append(rows, r)
		}
	}
	return ds.Take(rows)
}

// ColumnValue is a per-column fill value.
type ColumnValue struct {
	Column string
	Value  frame.Value
}

// FillMissing replaces missing cells with a value, a per-column value,
// or the nearest present value before (ffill) or after (bfill) them.
type FillMissing struct {
	pos
	Value     frame.Value
	PerColumn []ColumnValue
	Method    string
}

func (o *FillMissing) Kind() string                  { return "fillna" }
func (o *FillMissing) Reads() []string               { return nil }
func (o *FillMissing) Schema(cols []string) []string { return cols }

func (o *FillMissing) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	fills := o.PerColumn
	if len(fills) == 0 {
		for _, name := range ds.Columns() {
			fills = append(fills, ColumnValue{Column: name, Value: o.Value})
		}
	}
	out := ds
	for _, f := range fills {
		c, ok := out.Column(f.Column)
		if !ok {
			continue
		}
		vals := append([]frame.Value(nil), c.Values...)
		switch o.Method {
		case "ffill":
			for i := 1; i < len(vals); i++ {
				if vals[i] == nil {
					vals[i] = vals[i-1]
				}
			}
		case "bfill":
			for i := len(vals) - 2; i >= 0; i-- {
				if vals[i] == nil {
					vals[i] = vals[i+1]
				}
			}
		default:
			for i, v := range vals {
				if v == nil {
					vals[i] = f.Value
				}
			}
		}
		var err error
		if out, err = out.WithColumn(f.Column, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SortRows orders rows by columns. The sort is stable and missing cells sort last.
type SortRows struct {
	pos
	By        []string
	Ascending []bool
}

func (o *SortRows) Kind() string                  { return "sort by " + strings.Join(o.By, ", ") }
func (o *SortRows) Reads() []string               { return o.By }
func (o *SortRows) Schema(cols []string) []string { return cols }

func (o *SortRows) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	keys := make([][]frame.Value, len(o.By))
	for i, n := range o.By {
		vals, err := ds.Values(n)
		if err != nil {
			return nil, err
		}
		keys[i] = vals
	}
	rows := make([]int, ds.NumRows())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, vals := range keys {
			a, b := vals[rows[i]], vals[rows[j]]
			if a == nil || b == nil {
				if (a == nil) != (b == nil) {
					return b == nil
				}
				continue
			}
			c := frame.Compare(a, b)
			if c == 0 {
				continue
			}
			if k < len(o.Ascending) && !o.Ascending[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return ds.Take(rows)
}

// SliceRows keeps the first (or last) N rows. A negative N drops |N| rows from the other end.
type SliceRows struct {
	pos
	N       int
	FromEnd bool
}

func (o *SliceRows) Kind() string {
	if o.FromEnd {
		return "tail"
	}
	return "head"
}

func (o *SliceRows) Reads() []string               { return nil }
func (o *SliceRows) Schema(cols []string) []string { return cols }

func (o *SliceRows) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	total := ds.NumRows()
	n := o.N
	if n < 0 {
		n = max(total+n, 0)
	}
	n = min(n, total)
	start := 0
	if o.FromEnd {
		start = total - n
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = start + i
	}
	return ds.Take(rows)
}

// DropDuplicates removes rows repeating an earlier (or later) row on Subset,
// or on all columns when Subset is empty.
type DropDuplicates struct {
	pos
	Subset   []string
	KeepLast bool
}

func (o *DropDuplicates) Kind() string                  { return "drop_duplicates" }
func (o *DropDuplicates) Reads() []string               { return o.Subset }
func (o *DropDuplicates) Schema(cols []string) []string { return cols }

func (o *DropDuplicates) Apply(_ context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	names := o.Subset
	if len(names) == 0 {
		names = ds.Columns()
	}
	cols := make([][]frame.Value, len(names))
	for i, n := range names {
		vals, err := ds.Values(n)
		if err != nil {
			return nil, err
		}
		cols[i] = vals
	}
	key := func(r int) string {
		var sb strings.Builder
		for _, c := range cols {
			fmt.Fprintf(&sb, "%T:%v\x00", c[r], c[r])
		}
		return sb.String()
	}

	total := ds.NumRows()
	seen := make(map[string]bool, total)
	keep := make([]bool, total)
	for i := 0; i < total; i++ {
		r := i
		if o.KeepLast {
			r = total - 1 - i
		}
		if k := key(r); !seen[k] {
			seen[k] = true
			keep[r] = true
		}
	}
	rows := make([]int, 0, total)
	for r, k := range keep {
		if k {
			rows = append(rows, r)
		}
	}
	return ds.Take(rows)
}

func withName(cols []string, name string) []string {
	for _, c := range cols {
		if c == name {
			return cols
		}
	}
	return append(append([]string(nil), cols...), name)
}

func renamed(cols []string, renames []Rename) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c
		for _, r := range renames {
			if r.From == c {
				out[i] = r.To
				break
			}
		}
	}
	return out
}

func present(ds *frame.Dataset, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := ds.Column(n); ok {
			out = append(out, n)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		found := false
		for _, t := range out {
			if s == t {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}
