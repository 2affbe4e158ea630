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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/tabcoder/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, llm.ModelTypeOllama, cfg.Model.APIType)
	assert.Equal(t, "mistral", cfg.Model.ModelName)
	assert.Equal(t, 10, cfg.SampleRows)
	assert.Equal(t, ":q", cfg.QuitToken)
	assert.Equal(t, "y", cfg.ConfirmToken)
	assert.Equal(t, "_modified", cfg.OutputSuffix)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabcoder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  type: openai
  model_name: gpt-4o
  api_key: from-file
sample_rows: 20
exec_timeout: 3s
watch_source: false
`), 0o644))

	t.Setenv("API_KEY", "from-env")
	t.Setenv("TABCODER_SAMPLE_ROWS", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, llm.ModelTypeOpenAI, cfg.Model.APIType)
	assert.Equal(t, "gpt-4o", cfg.Model.ModelName)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, 20, cfg.SampleRows)
	assert.Equal(t, 3*time.Second, cfg.ExecTimeout)
	assert.False(t, cfg.WatchSource)
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.PreviewRows)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rows: [1"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnvOverrides(env(map[string]string{
		"API_TYPE":              "anthropic",
		"MODEL_NAME":            "claude-sonnet",
		"BASE_URL":              "https://example.test",
		"TABCODER_PREVIEW_ROWS": "8",
		"TABCODER_EXEC_TIMEOUT": "250ms",
	})))
	assert.Equal(t, llm.ModelTypeClaude, cfg.Model.APIType)
	assert.Equal(t, "claude-sonnet", cfg.Model.ModelName)
	assert.Equal(t, "https://example.test", cfg.Model.BaseURL)
	assert.Equal(t, 8, cfg.PreviewRows)
	assert.Equal(t, 250*time.Millisecond, cfg.ExecTimeout)

	assert.Error(t, Default().applyEnvOverrides(env(map[string]string{"API_TYPE": "mystery"})))
	assert.Error(t, Default().applyEnvOverrides(env(map[string]string{"TABCODER_SAMPLE_ROWS": "ten"})))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"hosted without key", func(c *Config) { c.Model.APIType = llm.ModelTypeOpenAI; c.Model.APIKey = "" }},
		{"unknown type", func(c *Config) { c.Model.APIType = llm.ModelTypeUnknown }},
		{"zero sample rows", func(c *Config) { c.SampleRows = 0 }},
		{"negative preview rows", func(c *Config) { c.PreviewRows = -1 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"blank quit token", func(c *Config) { c.QuitToken = " " }},
		{"negative timeout", func(c *Config) { c.ExecTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cfg.yaml")
	cfg := Default()
	cfg.SampleRows = 3
	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.SampleRows)
}
