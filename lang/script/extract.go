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
	"regexp"
	"strings"
)

// fencePattern matches a fenced block with an optional language tag on the opening line.
var fencePattern = regexp.MustCompile("(?s)```(?:[ \\t]*[A-Za-z0-9_+.-]*[ \\t]*\\r?\\n)?(.*?)```")

// ExtractCode isolates the code in a model response. It takes the interior
// of the first fenced block, or the whole response when there is none, then
// removes the common indentation and surrounding blank lines.
func ExtractCode(response string) string {
	body := response
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		body = m[1]
	} else {
		body = stripDanglingFence(body)
	}
	return trimBlankLines(Dedent(body))
}

// stripDanglingFence drops an unterminated opening fence line or a lone closing fence.
func stripDanglingFence(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		if i := strings.IndexByte(t, '\n'); i >= 0 {
			t = t[i+1:]
		} else {
			t = strings.TrimPrefix(t, "```")
		}
		return strings.TrimSuffix(strings.TrimRight(t, " \t\r\n"), "```")
	}
	if strings.HasSuffix(t, "```") {
		return strings.TrimSuffix(t, "```")
	}
	return s
}

// Dedent removes the longest leading whitespace shared by all non-blank lines.
// Whitespace-only lines become empty.
func Dedent(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	prefix, first := "", true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		prefix = commonPrefix(prefix, indent)
		if prefix == "" {
			break
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	for i := start; i < end; i++ {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return strings.Join(lines[start:end], "\n")
}
