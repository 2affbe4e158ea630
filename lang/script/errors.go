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

package script

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	// ErrExecution classifies every failure to parse or apply generated code.
	ErrExecution = errors.New("execution error")
	// ErrLimitExceeded indicates the execution timeout was reached.
	ErrLimitExceeded = errors.New("limit exceeded")
)

// ExecutionError reports generated code that could not be applied.
// Line and Column are 1-based; zero means unknown.
type ExecutionError struct {
	Message string
	Line    int
	Column  int
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", msg, e.Line, e.Column)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is makes every ExecutionError match ErrExecution.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

func nodeError(n *sitter.Node, format string, args ...any) *ExecutionError {
	e := &ExecutionError{Message: fmt.Sprintf(format, args...)}
	if n != nil {
		p := n.StartPoint()
		e.Line, e.Column = int(p.Row)+1, int(p.Column)+1
	}
	return e
}

// Warning carries columns that generated code reads but the dataset lacks.
// It is not an error: the user decides whether to run the code anyway.
type Warning struct {
	Unknown []string
}

func (w Warning) Empty() bool { return len(w.Unknown) == 0 }
