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

package sheet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestModifiedPath(t *testing.T) {
	assert.Equal(t, "data/sales_modified.xlsx", ModifiedPath("data/sales.xlsx", ""))
	assert.Equal(t, "sales_v2.csv", ModifiedPath("sales.csv", "_v2"))
	assert.Equal(t, "report_modified", ModifiedPath("report", DefaultSuffix))
	assert.Equal(t, "archive.tar_modified.gz", ModifiedPath("archive.tar.gz", DefaultSuffix))
}

func TestLoad_CSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name,Quantity,,Name\nbolt,4,x,a\nnut,,y,b\n"), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Quantity", "Unnamed: 2", "Name.1"}, ds.Columns())
	assert.Equal(t, []frame.Value{"bolt", 4.0, "x", "a"}, ds.Row(0))
	assert.Nil(t, ds.Row(1)[1])
}

func TestLoad_SemicolonAndShortRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("a;b;c\n1;2\n"), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ds.Columns())
	assert.Equal(t, []frame.Value{1.0, 2.0, nil}, ds.Row(0))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.xlsx"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInput))
	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Path, "missing.xlsx")

	odd := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(odd, []byte("x"), 0o644))
	_, err = Load(odd)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	broken := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o644))
	_, err = Load(broken)
	assert.True(t, errors.Is(err, ErrInput))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ds, err := frame.New([]string{"Item", "Price", "InStock"}, [][]frame.Value{
		{"apple", 1.5, true},
		{"pear", nil, false},
	})
	require.NoError(t, err)

	for _, name := range []string{"out.xlsx", "out.csv", "out.tsv"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(ds, path))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, ds.Columns(), got.Columns())
			assert.Equal(t, 2, got.NumRows())
			assert.Equal(t, "apple", got.Row(0)[0])
			assert.Equal(t, 1.5, got.Row(0)[1])
			assert.Nil(t, got.Row(1)[1])
		})
	}
}

func TestSave_Errors(t *testing.T) {
	ds := frame.Empty()
	err := Save(ds, filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))

	err = Save(ds, filepath.Join(t.TempDir(), "out.json"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoad_FormattedWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "styled.xlsx")

	f := excelize.NewFile()
	set := func(cell string, v any, numFmt int) {
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		if numFmt == 0 {
			return
		}
		style, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle("Sheet1", cell, cell, style))
	}
	set("A1", "Amount", 0)
	set("B1", "Share", 0)
	set("C1", "Booked", 0)
	set("D1", "Paid", 0)
	set("A2", 1234.5, 4) // #,##0.00
	set("B2", 0.25, 9)   // 0%
	set("C2", 45292, 14) // a date
	set("D2", true, 0)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, err := Load(path)
	require.NoError(t, err)
	row := ds.Row(0)
	assert.Equal(t, 1234.5, row[0])
	assert.Equal(t, 0.25, row[1])
	assert.IsType(t, "", row[2])
	assert.Equal(t, true, row[3])

	// saving an untouched table keeps numbers numeric
	out := ModifiedPath(path, "")
	require.NoError(t, Save(ds, out))
	back, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, back.Row(0)[0])
	assert.Equal(t, 0.25, back.Row(0)[1])

	saved, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer saved.Close()
	typ, err := saved.GetCellType("Sheet1", "A2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)
}

func TestIsDateFormat(t *testing.T) {
	assert.True(t, isDateFormat("yyyy-mm-dd"))
	assert.True(t, isDateFormat("[$-409]h:mm AM/PM"))
	assert.False(t, isDateFormat("#,##0.00"))
	assert.False(t, isDateFormat(`[Red]0.0" days"`))
	assert.False(t, isDateFormat("General"))
	assert.False(t, isDateFormat("0.00E+00"))
}
