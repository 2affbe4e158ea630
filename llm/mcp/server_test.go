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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	alog "github.com/cloudwego/tabcoder/lang/log"
	"github.com/mark3labs/mcp-go/server"
)

func sendAndRecv(t *testing.T, initRequest any, stdinWriter *io.PipeWriter, stdoutReader *io.PipeReader) map[string]any {
	requestBytes, err := json.Marshal(initRequest)
	if err != nil {
		t.Fatal(err)
	}
	_, err = stdinWriter.Write(append(requestBytes, '\n'))
	if err != nil {
		t.Fatal(err)
	}

	// Read response
	scanner := bufio.NewScanner(stdoutReader)
	if !scanner.Scan() {
		t.Fatal("failed to read response")
	}
	responseBytes := scanner.Bytes()

	var response map[string]any
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return response
}

func TestTableServer(t *testing.T) {
	alog.SetLogLevel(alog.DebugLevel)
	t.Cleanup(func() { alog.SetLogLevel(alog.InfoLevel) })

	dir := t.TempDir()
	src := filepath.Join(dir, "stock.csv")
	if err := os.WriteFile(src, []byte("Item,Quantity\nbolt,4\nnut,\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	svr := NewServer(ServerOptions{
		ServerName:    "tabcoder",
		ServerVersion: "1.0.0",
	})

	// Create pipes for stdin and stdout
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	stdioServer := server.NewStdioServer(svr.Server)
	stdioServer.SetErrorLogger(log.New(io.Discard, "", 0))

	// Create context with cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create error channel to catch server errors
	serverErrCh := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := stdioServer.Listen(ctx, stdinReader, stdoutWriter)
		if err != nil && err != io.EOF && err != context.Canceled {
			serverErrCh <- err
		}
		stdoutWriter.Close()
		close(serverErrCh)
	}()

	time.Sleep(100 * time.Millisecond)

	resp := sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo": map[string]any{
				"name":    "test-client",
				"version": "1.0.0",
			},
		},
	}, stdinWriter, stdoutReader)
	if resp["error"] != nil {
		t.Fatalf("initialize failed: %v", resp["error"])
	}

	resp = sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	}, stdinWriter, stdoutReader)
	result, _ := resp["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	names := map[string]bool{}
	for _, tl := range tools {
		if m, ok := tl.(map[string]any); ok {
			names[m["name"].(string)] = true
		}
	}
	for _, want := range []string{ToolPreviewTable, ToolCheckScript, ToolApplyScript} {
		if !names[want] {
			t.Errorf("tool %s not listed: %v", want, names)
		}
	}
	if names[ToolTransformTable] {
		t.Errorf("%s listed without a model", ToolTransformTable)
	}

	resp = sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"method":  "tools/call",
		"params": map[string]any{
			"name": ToolApplyScript,
			"arguments": map[string]any{
				"path": src,
				"code": "df['Quantity'] = df['Quantity'].fillna(0)",
			},
		},
	}, stdinWriter, stdoutReader)
	t.Logf("resp %#v", resp)
	result, _ = resp["result"].(map[string]any)
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("apply_script failed: %v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "stock_modified.csv")); err != nil {
		t.Errorf("output not written: %v", err)
	}

	// Clean up
	cancel()
	stdinWriter.Close()

	// Check for server errors
	if err := <-serverErrCh; err != nil {
		t.Errorf("unexpected server error: %v", err)
	}
}
