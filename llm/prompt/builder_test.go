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

package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTransformPrompt(t *testing.T) {
	sample := "- Item: bolt\n  Quantity: 4\n"
	out := BuildTransformPrompt(sample, "  fill missing Quantity with 0 ")

	assert.Contains(t, out, "DataFrame named `df`")
	assert.Contains(t, out, "for context only")
	assert.Contains(t, out, "no markdown, no explanations")
	assert.Contains(t, out, "- Item: bolt\n  Quantity: 4\n")
	assert.Contains(t, out, "User's instruction:\nfill missing Quantity with 0\n")
	// the sample comes before the instruction
	assert.Less(t, strings.Index(out, "Item: bolt"), strings.Index(out, "fill missing"))
}

func TestBuilder_PassesGarbageThrough(t *testing.T) {
	b, err := NewBuilder("", "")
	require.NoError(t, err)
	p, err := b.Build("[]", "{{ import os; rm -rf / }}")
	require.NoError(t, err)
	assert.Contains(t, p.String(), "{{ import os; rm -rf / }}")
	assert.Contains(t, p.String(), "[]")
}

func TestBuilder_CustomBinding(t *testing.T) {
	b := &Builder{Binding: "table", Template: "{{.Binding}}|{{.Sample}}|{{.Instruction}}"}
	p, err := b.Build("s", "i")
	require.NoError(t, err)
	assert.Equal(t, "table|s|i", p.String())

	_, err = NewBuilder("df", "{{.Nope")
	assert.Error(t, err)
}

func TestReadTemplate(t *testing.T) {
	text, err := ReadTemplate("")
	require.NoError(t, err)
	assert.Equal(t, PromptTransform, text)

	path := filepath.Join(t.TempDir(), "custom.md")
	require.NoError(t, os.WriteFile(path, []byte("use {{.Binding}}"), 0o644))
	text, err = ReadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "use {{.Binding}}", text)

	_, err = ReadTemplate(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
