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

package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// ErrAborted is returned when the user interrupts the session (Ctrl-C).
// Nothing is saved.
var ErrAborted = errors.New("session aborted")

// Prompter is the user side of the session. Implementations return io.EOF
// when input is exhausted and ErrAborted on interrupt.
type Prompter interface {
	ReadPath(ctx context.Context) (string, error)
	ReadInstruction(ctx context.Context) (string, error)
	// ReadConfirmation returns the raw answer to question.
	ReadConfirmation(ctx context.Context, question string) (string, error)
}

// TerminalPrompter reads from the terminal with line editing.
type TerminalPrompter struct {
	ln        *liner.State
	quitToken string
}

func NewTerminalPrompter(quitToken string) *TerminalPrompter {
	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	return &TerminalPrompter{ln: ln, quitToken: quitToken}
}

// Close restores the terminal mode.
func (p *TerminalPrompter) Close() error {
	return p.ln.Close()
}

func (p *TerminalPrompter) ReadPath(ctx context.Context) (string, error) {
	line, err := p.prompt(ctx, "Path to the spreadsheet: ")
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(line), `"'`), nil
}

func (p *TerminalPrompter) ReadInstruction(ctx context.Context) (string, error) {
	return p.prompt(ctx, "\nWhat should change? ("+p.quitToken+" to finish) > ")
}

func (p *TerminalPrompter) ReadConfirmation(ctx context.Context, question string) (string, error) {
	return p.prompt(ctx, question+" ")
}

func (p *TerminalPrompter) prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.ln.Prompt(text)
	switch {
	case errors.Is(err, liner.ErrPromptAborted):
		return "", ErrAborted
	case errors.Is(err, io.EOF):
		return "", io.EOF
	case err != nil:
		return "", err
	}
	return line, nil
}
