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
	"github.com/cloudwego/tabcoder/lang/log"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/mcp"
	"github.com/cloudwego/tabcoder/version"
	"github.com/spf13/cobra"
)

var flagNoModel bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the table tools over MCP on stdin/stdout",
	Long: `Runs an MCP server exposing preview_table, check_script, apply_script and,
when a model is configured, transform_table.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&flagNoModel, "no-model", false, "do not offer transform_table")
}

func runMCP(cmd *cobra.Command, args []string) error {
	opts := mcp.ServerOptions{
		ServerName:    "tabcoder",
		ServerVersion: version.Version,
		Verbose:       flagVerbose,
		TableToolsOptions: mcp.TableToolsOptions{
			SampleRows:  cfg.SampleRows,
			PreviewRows: cfg.PreviewRows,
			Suffix:      cfg.OutputSuffix,
			ExecTimeout: cfg.ExecTimeout,
			MaxAttempts: cfg.MaxAttempts,
		},
	}
	if !flagNoModel {
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
	}
	// stdout carries the protocol
	log.Info("serving MCP on stdio")
	return mcp.NewServer(opts).ServeStdio()
}
