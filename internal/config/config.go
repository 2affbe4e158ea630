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

// Package config holds the layered tabcoder configuration: built-in
// defaults, an optional YAML file, environment variables and finally
// command-line flags, each overriding the previous layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/tabcoder/internal/utils"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/sheet"
	"github.com/cloudwego/tabcoder/llm"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the home directory when no --config is given.
const DefaultFile = ".tabcoder.yaml"

type Config struct {
	Model llm.ModelConfig `yaml:"model"`

	// Session
	SampleRows   int    `yaml:"sample_rows"`   // rows shown to the model (default: 10)
	PreviewRows  int    `yaml:"preview_rows"`  // rows printed after each change (default: 5)
	OutputSuffix string `yaml:"output_suffix"` // inserted before the extension on save
	QuitToken    string `yaml:"quit_token"`
	ConfirmToken string `yaml:"confirm_token"`
	WatchSource  bool   `yaml:"watch_source"` // warn when the source file changes on disk

	// Processing
	ExecTimeout    time.Duration `yaml:"exec_timeout"` // 0 disables the limit
	MaxAttempts    int           `yaml:"max_attempts"` // attempts per failed step
	PromptTemplate string        `yaml:"prompt_template"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// Default returns the built-in configuration: a local Ollama running
// mistral and the interactive tokens `:q` and `y`.
func Default() *Config {
	return &Config{
		Model:        llm.DefaultModelConfig(),
		SampleRows:   frame.DefaultSampleRows,
		PreviewRows:  frame.DefaultPreviewRows,
		OutputSuffix: sheet.DefaultSuffix,
		QuitToken:    ":q",
		ConfirmToken: "y",
		WatchSource:  true,
		MaxAttempts:  1,
		LogLevel:     "info",
	}
}

// DefaultPath is ~/.tabcoder.yaml, or "" when there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFile)
}

// Load reads path over the defaults and applies environment overrides. A
// missing file at the default location is not an error; an explicitly
// requested one is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// the file may hold an API key
	return utils.MustWriteFile(path, data, 0o600)
}

// applyEnvOverrides reads the model variables API_TYPE, API_KEY,
// MODEL_NAME and BASE_URL, plus TABCODER_* for session settings.
func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	if v := getenv("API_TYPE"); v != "" {
		c.Model.APIType = llm.NewModelType(v)
		if c.Model.APIType == llm.ModelTypeUnknown {
			return fmt.Errorf("env API_TYPE: unsupported model type %q", v)
		}
	}
	if v := getenv("API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := getenv("MODEL_NAME"); v != "" {
		c.Model.ModelName = v
	}
	if v := getenv("BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	for name, dst := range map[string]*int{
		"TABCODER_SAMPLE_ROWS":  &c.SampleRows,
		"TABCODER_PREVIEW_ROWS": &c.PreviewRows,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		*dst = n
	}
	if v := getenv("TABCODER_EXEC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env TABCODER_EXEC_TIMEOUT: %w", err)
		}
		c.ExecTimeout = d
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model.APIType == llm.ModelTypeUnknown {
		return fmt.Errorf("model type not configured (set API_TYPE or --model-type)")
	}
	if c.Model.APIType.Hosted() {
		if c.Model.APIKey == "" {
			return fmt.Errorf("model type %s requires an API key (set API_KEY)", c.Model.APIType)
		}
		if c.Model.ModelName == "" {
			return fmt.Errorf("model type %s requires a model name (set MODEL_NAME or --model)", c.Model.APIType)
		}
	}
	if c.SampleRows <= 0 {
		return fmt.Errorf("sample_rows must be positive, got %d", c.SampleRows)
	}
	if c.PreviewRows <= 0 {
		return fmt.Errorf("preview_rows must be positive, got %d", c.PreviewRows)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.ExecTimeout < 0 {
		return fmt.Errorf("exec_timeout must not be negative")
	}
	if strings.TrimSpace(c.QuitToken) == "" || strings.TrimSpace(c.ConfirmToken) == "" {
		return fmt.Errorf("quit_token and confirm_token must not be blank")
	}
	return nil
}
