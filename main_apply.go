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
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/internal/utils"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/mcp"
	"github.com/spf13/cobra"
)

var (
	flagInstruction string
	flagCode        string
	flagYes         bool
	flagOutput      string
	flagJSON        bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <path>",
	Short: "Apply one instruction or one piece of code and save",
	Long: `Runs a single iteration without prompting and saves the result.

Either --instruction asks the model for code, or --code supplies it directly
(prefix with @ to read it from a file). Code that uses columns the table lacks
is refused unless --yes is given.

Example:
  tabcoder apply sales.xlsx --instruction "fill missing Quantity with 0"
  tabcoder apply sales.csv --code @fix.py -o fixed.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	f := applyCmd.Flags()
	f.StringVarP(&flagInstruction, "instruction", "i", "", "what should change, in plain language")
	f.StringVarP(&flagCode, "code", "c", "", "code to apply, or @file")
	f.BoolVarP(&flagYes, "yes", "y", false, "run even when the code uses unknown columns")
	f.StringVarP(&flagOutput, "output", "o", "", "output path (default: <path> with the suffix)")
	f.BoolVar(&flagJSON, "json", false, "print the result as JSON")
	applyCmd.MarkFlagsMutuallyExclusive("instruction", "code")
	applyCmd.MarkFlagsOneRequired("instruction", "code")
}

func readCode(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	bs, err := os.ReadFile(arg[1:])
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	return string(bs), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	js, err := utils.MarshalJSONIndent(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), js)
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	opts := mcp.TableToolsOptions{
		SampleRows:  cfg.SampleRows,
		PreviewRows: cfg.PreviewRows,
		Suffix:      cfg.OutputSuffix,
		ExecTimeout: cfg.ExecTimeout,
		MaxAttempts: cfg.MaxAttempts,
	}
	out := cmd.OutOrStdout()

	if flagCode != "" {
		code, err := readCode(flagCode)
		if err != nil {
			return err
		}
		resp, err := mcp.NewTableTools(opts).ApplyScript(ctx, mcp.ApplyScriptReq{
			Path:         path,
			Code:         code,
			Output:       flagOutput,
			AllowUnknown: flagYes,
		})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, resp)
		}
		fmt.Fprintln(out, resp.Preview)
		fmt.Fprintf(out, "Saved to %s\n", resp.Output)
		return nil
	}

	gateway, err := llm.NewGateway(cfg.Model)
	if err != nil {
		return err
	}
	builder, err := newBuilder()
	if err != nil {
		return err
	}
	opts.Generator = gateway
	opts.Builder = builder
	resp, err := mcp.NewTableTools(opts).TransformTable(ctx, mcp.TransformTableReq{
		Path:         path,
		Instruction:  flagInstruction,
		Output:       flagOutput,
		AllowUnknown: flagYes,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, resp)
	}
	fmt.Fprintf(out, "Generated code:\n%s\n\n", resp.Code)
	if resp.Outcome != string(pipeline.OutcomeApplied) {
		return fmt.Errorf("not applied: code uses unknown columns %v (use --yes to run it anyway)", resp.Unknown)
	}
	fmt.Fprintln(out, resp.Preview)
	fmt.Fprintf(out, "Saved to %s\n", resp.Output)
	return nil
}
