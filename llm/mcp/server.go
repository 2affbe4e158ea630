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

package mcp

import (
	"github.com/cloudwego/tabcoder/lang/log"
	"github.com/cloudwego/tabcoder/llm/prompt"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var dialectPrompt = prompt.BuildTransformPrompt("(call preview_table for a sample of the table)", "(the user's request)")

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool
	TableToolsOptions
}

type Server struct {
	Server *server.MCPServer
}

func NewServer(opts ServerOptions) *Server {
	if opts.Verbose {
		log.SetLogLevel(log.DebugLevel)
	}
	svr := server.NewMCPServer(opts.ServerName, opts.ServerVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	tools := NewTableTools(opts.TableToolsOptions).Tools()
	for _, t := range tools {
		log.Debug("register tool %s", t.Tool.Name)
	}
	svr.AddTools(tools...)
	svr.AddPrompt(mcp.NewPrompt("transform_table_code",
		mcp.WithPromptDescription("How to write code the table tools accept"),
	), handleTransformPrompt)
	return &Server{Server: svr}
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.Server)
}
