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

// Package sheet loads and saves datasets as spreadsheet (xlsx) or delimited text files.
package sheet

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// DefaultSuffix is inserted before the extension of the saved file.
const DefaultSuffix = "_modified"

const defaultSheet = "Sheet1"

type format int

const (
	formatUnknown format = iota
	formatExcel
	formatCSV
	formatTSV
)

func detect(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return formatExcel
	case ".csv", ".txt":
		return formatCSV
	case ".tsv":
		return formatTSV
	}
	return formatUnknown
}

// ModifiedPath derives the output path by inserting suffix before the extension,
// e.g. data/sales.xlsx -> data/sales_modified.xlsx.
func ModifiedPath(path, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// Load reads the first sheet of a workbook, or a CSV/TSV file, into a Dataset.
// The first row is the header. Any failure is returned as *InputError.
func Load(path string) (*frame.Dataset, error) {
	ds, err := load(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return ds, nil
}

func load(path string) (*frame.Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	if info.IsDir() {
		return nil, errors.New("path is a directory")
	}

	var records [][]string
	switch detect(path) {
	case formatExcel:
		records, err = readWorkbook(path)
	case formatCSV:
		records, err = readDelimited(path, 0)
	case formatTSV:
		records, err = readDelimited(path, '\t')
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	// numbers keep their stored value; number formats are display only
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", sheet)
	}
	shown, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", sheet)
	}
	dates := map[int]bool{}
	for r, row := range rows {
		for c, raw := range row {
			if r >= len(shown) || c >= len(shown[r]) || shown[r][c] == raw {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			keep, err := keepFormatted(f, sheet, name, dates)
			if err != nil {
				return nil, errors.Wrapf(err, "read cell %s", name)
			}
			if keep {
				row[c] = shown[r][c]
			}
		}
	}
	return rows, nil
}

// keepFormatted reports whether a cell reads better as its displayed text:
// booleans (stored as 0/1) and dates (stored as day serials) do.
func keepFormatted(f *excelize.File, sheet, cell string, dates map[int]bool) (bool, error) {
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return false, err
	}
	if typ == excelize.CellTypeBool {
		return true, nil
	}
	idx, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, err
	}
	if d, ok := dates[idx]; ok {
		return d, nil
	}
	st, err := f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	d := builtinDateFormats[st.NumFmt]
	if st.CustomNumFmt != nil {
		d = isDateFormat(*st.CustomNumFmt)
	}
	dates[idx] = d
	return d, nil
}

var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true, 50: true, 51: true, 52: true, 53: true, 54: true, 55: true,
	56: true, 57: true, 58: true,
}

// isDateFormat looks for date or time tokens outside quoted text and
// bracketed sections such as colors and locales.
func isDateFormat(code string) bool {
	var quoted, bracket bool
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		case strings.ContainsRune("ymdhs", r):
			return true
		}
	}
	return false
}

func readDelimited(path string, delim rune) ([][]string, error) {
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse delimited text")
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of ',', ';' and tab in the first line.
func sniffDelimiter(path string) rune {
	f, err := os.Open(path)
	if err != nil {
		return ','
	}
	defer f.Close()
	line, _ := bufio.NewReader(f).ReadString('\n')
	best, count := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(line, string(d)); c > count {
			best, count = d, c
		}
	}
	return best
}

func fromRecords(records [][]string) (*frame.Dataset, error) {
	if len(records) == 0 {
		return frame.Empty(), nil
	}
	names := headerNames(records[0])
	rows := make([][]frame.Value, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(names) {
			if !blankTail(rec[len(names):]) {
				return nil, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(rec), len(names))
			}
			rec = rec[:len(names)]
		}
		row := make([]frame.Value, len(names))
		for j, cell := range rec {
			row[j] = frame.ParseValue(cell)
		}
		rows = append(rows, row)
	}
	return frame.New(names, rows)
}

// headerNames fills blank names and de-duplicates repeated ones.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func blankTail(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Save writes the dataset to path, choosing the format from the extension.
// Any failure is returned as *PersistenceError.
func Save(ds *frame.Dataset, path string) error {
	var err error
	switch detect(path) {
	case formatExcel:
		err = writeWorkbook(ds, path)
	case formatCSV:
		err = writeDelimited(ds, path, ',')
	case formatTSV:
		err = writeDelimited(ds, path, '\t')
	default:
		err = errors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Ext(path))
	}
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func writeWorkbook(ds *frame.Dataset, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, ds.NumCols())
	for i, name := range ds.Columns() {
		header[i] = name
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for r := 0; r < ds.NumRows(); r++ {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		row := ds.Row(r)
		vals := make([]interface{}, len(row))
		for i, v := range row {
			vals[i] = v
		}
		if err := f.SetSheetRow(defaultSheet, cell, &vals); err != nil {
			return errors.Wrapf(err, "write row %d", r+1)
		}
	}
	return errors.Wrap(f.SaveAs(path), "save workbook")
}

func writeDelimited(ds *frame.Dataset, path string, delim rune) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close")
		}
	}()
	return writeRecords(f, ds, delim)
}

func writeRecords(w io.Writer, ds *frame.Dataset, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(ds.Columns()); err != nil {
		return errors.Wrap(err, "write header")
	}
	rec := make([]string, ds.NumCols())
	for r := 0; r < ds.NumRows(); r++ {
		for i, v := range ds.Row(r) {
			rec[i] = frame.FormatValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write row %d", r+1)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush")
}
