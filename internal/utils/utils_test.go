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

package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSONBytes(t *testing.T) {
	js, err := MarshalJSONBytes(map[string]string{"code": "df[df['a'] < 1]"})
	require.NoError(t, err)
	assert.Equal(t, `{"code":"df[df['a'] < 1]"}`, string(js))
}

func TestMustWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.json")
	require.NoError(t, MustWriteFile(path, []byte("{}"), 0o600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o644))

	events := make(chan string, 16)
	stop, err := WatchFile(path, func(op fsnotify.Op, file string) {
		events <- file
	})
	require.NoError(t, err)
	defer stop()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("a\n2\n"), 0o644))

	select {
	case file := <-events:
		assert.Equal(t, "data.csv", filepath.Base(file))
	case <-time.After(5 * time.Second):
		t.Fatal("no event for the watched file")
	}
	stop()
	stop()
}
