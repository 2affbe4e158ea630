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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/llm"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	codeStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).PaddingLeft(1).Foreground(lipgloss.Color("6"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

// Console renders session events for a human.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.w, s)
}

// Code shows the code about to be checked and applied.
func (c *Console) Code(code string) {
	c.println(titleStyle.Render("Generated code:"))
	if strings.TrimSpace(code) == "" {
		c.println(mutedStyle.Render("(empty)"))
		return
	}
	c.println(codeStyle.Render(code))
}

func (c *Console) Warning(unknown []string) {
	c.println(warnStyle.Render("Warning: the code uses columns that are not in the table: " + strings.Join(unknown, ", ")))
}

func (c *Console) Preview(preview string) {
	c.println(successStyle.Render("Applied. Updated table:"))
	c.println(preview)
}

func (c *Console) Skipped() {
	c.println(mutedStyle.Render("Skipped. The table is unchanged."))
}

// Failure explains why an iteration did not apply.
func (c *Console) Failure(err error) {
	var (
		ce *llm.CommunicationError
		ee *script.ExecutionError
	)
	switch {
	case errors.As(err, &ce):
		c.println(errorStyle.Render("Error communicating with the model: " + ce.Err.Error()))
	case errors.As(err, &ee):
		c.println(errorStyle.Render("Error applying the code: " + ee.Error()))
	default:
		c.println(errorStyle.Render("Error: " + err.Error()))
	}
	c.println(mutedStyle.Render("The table is unchanged."))
}

func (c *Console) Notice(msg string) {
	c.println(warnStyle.Render(msg))
}

func (c *Console) Saved(path string) {
	c.println(successStyle.Render("Saved to " + path))
}

func (c *Console) Summary(n Counts) {
	c.println(mutedStyle.Render(fmt.Sprintf("%d applied, %d skipped, %d failed", n.Applied, n.Skipped, n.Failed)))
}
