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

// Package script turns model-generated table code into checked, atomic
// operations on a frame.Dataset.
//
// Generated code is a small pandas-style dialect over the single binding df.
// It is parsed with tree-sitter into a Program of operations; column
// expressions run row-wise through govaluate. Nothing else is in scope, so
// the code cannot reach files, the network or the process.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/tabcoder/lang/frame"
)

// Executor applies generated code to a dataset.
type Executor struct {
	// PreviewRows is the number of rows rendered in Result.Preview.
	PreviewRows int
	// Timeout bounds one execution. Zero means no limit.
	Timeout time.Duration
}

// Result is a successful execution.
type Result struct {
	Dataset *frame.Dataset
	Program *Program
	Preview string
}

// Execute parses code and applies it to ds. The input dataset is never
// modified: on failure the caller still holds it unchanged, and on success
// Result.Dataset is a new value. Every failure is an *ExecutionError.
func (e *Executor) Execute(ctx context.Context, code string, ds *frame.Dataset) (*Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	prog, err := Parse(ctx, code)
	if err != nil {
		return nil, e.limit(ctx, err)
	}
	out, err := prog.Run(ctx, ds)
	if err != nil {
		return nil, e.limit(ctx, err)
	}

	rows := e.PreviewRows
	if rows <= 0 {
		rows = frame.DefaultPreviewRows
	}
	return &Result{Dataset: out, Program: prog, Preview: frame.Preview(out, rows)}, nil
}

// limit reports a deadline hit as ErrLimitExceeded.
func (e *Executor) limit(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecutionError{
			Message: "execution stopped",
			Err:     fmt.Errorf("%w: no result within %s", ErrLimitExceeded, e.Timeout),
		}
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Message: "execution failed", Err: err}
}

// Run applies the operations in order. The result must still be a
// rectangular table with unique column names.
func (p *Program) Run(ctx context.Context, ds *frame.Dataset) (*frame.Dataset, error) {
	cur := ds
	for _, op := range p.Ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := op.Apply(ctx, cur)
		if err != nil {
			return nil, &ExecutionError{Message: op.Kind() + " failed", Line: op.Line(), Column: 1, Err: err}
		}
		cur = next
	}
	if err := cur.Validate(); err != nil {
		return nil, &ExecutionError{Message: "result is not a table", Err: err}
	}
	return cur, nil
}
