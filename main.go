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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/tabcoder/internal/config"
	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/internal/session"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/log"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/lang/sheet"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/prompt"
	"github.com/cloudwego/tabcoder/version"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagVerbose     bool
	flagModelType   string
	flagModel       string
	flagBaseURL     string
	flagSampleRows  int
	flagPreviewRows int
	flagSuffix      string
	flagTimeout     time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tabcoder",
	Short: "Transform spreadsheets with plain-language instructions",
	Long: `tabcoder loads a spreadsheet or CSV file, asks a language model for code
that carries out each instruction you type, checks the code against the
table's columns and applies it. When you finish (:q) the result is saved
next to the source file with the _modified suffix.

The model defaults to mistral on a local Ollama. Set API_TYPE, API_KEY,
MODEL_NAME and BASE_URL (or the matching flags) to use another provider.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Start an interactive session on a spreadsheet",
	Long: `Starts the instruction loop. Each instruction is turned into code, shown,
checked and applied to the table in memory. Code that uses columns the table
does not have needs confirmation. Type :q (or Ctrl-D) to save and quit;
Ctrl-C quits without saving.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of tabcoder",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/"+config.DefaultFile+")")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log prompts, responses and pipeline steps")
	pf.StringVar(&flagModelType, "model-type", "", "model provider: ollama, openai, deepseek, claude, ark, dashscope")
	pf.StringVar(&flagModel, "model", "", "model name, e.g. mistral or gpt-4o")
	pf.StringVar(&flagBaseURL, "base-url", "", "model API base URL")
	pf.IntVar(&flagSampleRows, "sample-rows", 0, "rows shown to the model")
	pf.IntVar(&flagPreviewRows, "preview-rows", 0, "rows printed after each change")
	pf.StringVar(&flagSuffix, "suffix", "", "suffix of the saved file")
	pf.DurationVar(&flagTimeout, "exec-timeout", 0, "limit for applying one piece of code")

	rootCmd.AddCommand(runCmd, applyCmd, mcpCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, session.ErrAborted) || errors.Is(err, pipeline.ErrAborted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// loadConfig layers flags over the file and environment.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("model-type") {
		c.Model.APIType = llm.NewModelType(flagModelType)
		if c.Model.APIType == llm.ModelTypeUnknown {
			return fmt.Errorf("unsupported model type %q", flagModelType)
		}
	}
	if flags.Changed("model") {
		c.Model.ModelName = flagModel
	}
	if flags.Changed("base-url") {
		c.Model.BaseURL = flagBaseURL
	}
	if flags.Changed("sample-rows") {
		c.SampleRows = flagSampleRows
	}
	if flags.Changed("preview-rows") {
		c.PreviewRows = flagPreviewRows
	}
	if flags.Changed("suffix") {
		c.OutputSuffix = flagSuffix
	}
	if flags.Changed("exec-timeout") {
		c.ExecTimeout = flagTimeout
	}

	switch {
	case flagVerbose:
		log.SetLogLevel(log.DebugLevel)
	default:
		log.SetLogLevel(parseLevel(c.LogLevel))
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	log.Debug("model %s/%s at %s", c.Model.APIType, c.Model.ModelName, c.Model.BaseURL)
	return nil
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func newBuilder() (*prompt.Builder, error) {
	text, err := prompt.ReadTemplate(cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	return prompt.NewBuilder(prompt.DefaultBinding, text)
}

func newExecutor() *script.Executor {
	return &script.Executor{PreviewRows: cfg.PreviewRows, Timeout: cfg.ExecTimeout}
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompter := session.NewTerminalPrompter(cfg.QuitToken)
	defer prompter.Close()

	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		p, err := prompter.ReadPath(ctx)
		if err != nil {
			return err
		}
		path = p
	}
	ds, err := sheet.Load(path)
	if err != nil {
		return err
	}
	log.Info("loaded %s: %d rows x %d columns", path, ds.NumRows(), ds.NumCols())

	gateway, err := llm.NewGateway(cfg.Model)
	if err != nil {
		return err
	}
	builder, err := newBuilder()
	if err != nil {
		return err
	}

	console := session.NewConsole(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), frame.Preview(ds, cfg.PreviewRows))

	opts := session.Options{
		Generator:    gateway,
		Builder:      builder,
		Executor:     newExecutor(),
		SampleRows:   cfg.SampleRows,
		MaxAttempts:  cfg.MaxAttempts,
		QuitToken:    cfg.QuitToken,
		ConfirmToken: cfg.ConfirmToken,
		Prompter:     prompter,
		Console:      console,
		Sink:         &session.FileSink{Source: path, Suffix: cfg.OutputSuffix},
	}
	if cfg.WatchSource {
		opts.WatchPath = path
	}
	_, err = session.New(opts).Run(ctx, ds)
	if errors.Is(err, session.ErrAborted) || errors.Is(err, pipeline.ErrAborted) {
		return fmt.Errorf("%w: nothing was saved", err)
	}
	return err
}
