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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultPreviewRows is the number of rows shown to the user after a change.
const DefaultPreviewRows = 5

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

// Preview renders the first n rows as a text table followed by the dataset shape.
func Preview(ds *Dataset, n int) string {
	footer := mutedStyle.Render(fmt.Sprintf("[%d rows x %d columns]", ds.NumRows(), ds.NumCols()))
	if ds.NumCols() == 0 {
		return "Empty dataset\n" + footer
	}

	head := ds.Head(n)
	headers := head.Columns()
	rows := make([][]string, head.NumRows())
	for r := range rows {
		cells := make([]string, head.NumCols())
		for i, v := range head.Row(r) {
			cells[i] = previewCell(v)
		}
		rows[r] = cells
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	// lipgloss widths include the padding
	total := 0
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}
	total += len(widths) - 1

	var sb strings.Builder
	sep := mutedStyle.Render("|")
	for i, h := range headers {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString(sep)
			}
			sb.WriteString(cellStyle.Width(widths[i]).Render(cell))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(footer)
	return sb.String()
}

func previewCell(v Value) string {
	if IsMissing(v) {
		return "NaN"
	}
	s := FormatValue(v)
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) > 40 {
		s = string([]rune(s)[:37]) + "..."
	}
	return s
}
