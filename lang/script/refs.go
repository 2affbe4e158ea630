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
	"regexp"
	"sort"
	"strings"
)

// Binding is the name under which generated code sees the dataset.
const Binding = "df"

var (
	quoted         = `(?:'([^'\n]*)'|"([^"\n]*)")`
	accessPattern  = regexp.MustCompile(`\b` + Binding + `\s*\[\s*` + quoted + `\s*\]`)
	listPattern    = regexp.MustCompile(`\b` + Binding + `\s*\[\s*\[([^\]\n]*)\]\s*\]`)
	writePattern   = regexp.MustCompile(`\b` + Binding + `\s*\[\s*` + quoted + `\s*\]\s*=(?:[^=]|$)`)
	literalPattern = regexp.MustCompile(quoted)
)

// ColumnRefs is the textual column usage of a piece of generated code.
type ColumnRefs struct {
	// Accessed lists every column name in a subscript of the binding, in order of appearance.
	Accessed []string
	// Written lists the columns that are plain assignment targets.
	Written []string
	// Read is Accessed minus Written.
	Read []string
}

// ScanColumnRefs finds column references by pattern, without parsing the code.
// Augmented assignments such as df['A'] += 1 count as reads.
func ScanColumnRefs(code string) ColumnRefs {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, m := range accessPattern.FindAllStringSubmatchIndex(code, -1) {
		hits = append(hits, hit{m[0], group(code, m)})
	}
	for _, m := range listPattern.FindAllStringSubmatchIndex(code, -1) {
		inner := code[m[2]:m[3]]
		for _, lm := range literalPattern.FindAllStringSubmatchIndex(inner, -1) {
			hits = append(hits, hit{m[0] + lm[0], group(inner, lm)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	var refs ColumnRefs
	seen := map[string]bool{}
	for _, h := range hits {
		if !seen[h.name] {
			seen[h.name] = true
			refs.Accessed = append(refs.Accessed, h.name)
		}
	}
	written := map[string]bool{}
	for _, m := range writePattern.FindAllStringSubmatchIndex(code, -1) {
		name := group(code, m)
		if !written[name] {
			written[name] = true
			refs.Written = append(refs.Written, name)
		}
	}
	for _, name := range refs.Accessed {
		if !written[name] {
			refs.Read = append(refs.Read, name)
		}
	}
	return refs
}

// group returns whichever of the two quote alternatives matched.
func group(s string, m []int) string {
	if m[2] >= 0 {
		return s[m[2]:m[3]]
	}
	return s[m[4]:m[5]]
}

// UnknownColumns returns the read columns absent from columns, compared
// case-insensitively. An empty result means the code may proceed.
func UnknownColumns(code string, columns []string) []string {
	return missingFrom(ScanColumnRefs(code).Read, columns)
}

func missingFrom(names, columns []string) []string {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[strings.ToLower(c)] = true
	}
	var unknown []string
	for _, n := range names {
		if !known[strings.ToLower(n)] {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// Check combines the textual scan with the structural dependencies of the
// parsed program. A program that does not parse contributes nothing, so the
// failure surfaces at execution instead.
func Check(ctx context.Context, code string, columns []string) Warning {
	unknown := UnknownColumns(code, columns)
	if prog, err := Parse(ctx, code); err == nil {
		seen := map[string]bool{}
		for _, u := range unknown {
			seen[strings.ToLower(u)] = true
		}
		for _, d := range prog.Dependencies(columns) {
			if !seen[strings.ToLower(d)] {
				seen[strings.ToLower(d)] = true
				unknown = append(unknown, d)
			}
		}
	}
	return Warning{Unknown: unknown}
}
