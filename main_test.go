// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/**
 * Copyright 2024 ByteDance Inc.
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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/tabcoder/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"API_TYPE", "API_KEY", "MODEL_NAME", "BASE_URL"} {
		t.Setenv(k, "")
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestApplyCommand_Code(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(src, []byte("Item,A\nbolt,1\nnut,\n"), 0o644))

	out, err := execute(t, "apply", src, "--code", "```python\ndf['A'] = df['A'].fillna(0) * 2\n```")
	require.NoError(t, err)

	saved := filepath.Join(dir, "sales_modified.csv")
	assert.Contains(t, out, saved)
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "Item,A\nbolt,2\nnut,0\n", string(data))

	// the source is never rewritten
	data, err = os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "Item,A\nbolt,1\nnut,\n", string(data))
}

func TestApplyCommand_UnknownColumnRefused(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t.csv")
	require.NoError(t, os.WriteFile(src, []byte("A\n1\n"), 0o644))

	_, err := execute(t, "apply", src, "--code", "df['B'] = df['Ghost'] + 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")
	_, statErr := os.Stat(filepath.Join(dir, "t_modified.csv"))
	assert.True(t, os.IsNotExist(statErr))
}
