// Copyright 2025 ByteDance Inc.
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


package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/lang/script"
)

// Confirmer asks whether code that reads unknown columns should run anyway.
type Confirmer interface {
	Confirm(ctx context.Context, code string, unknown []string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, code string, unknown []string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, code string, unknown []string) (bool, error) {
	return f(ctx, code, unknown)
}

// Decline is a Confirmer that always says no.
var Decline = ConfirmFunc(func(context.Context, string, []string) (bool, error) { return false, nil })

// ValidateStep checks the column references of the extracted code against
// the dataset. Unknown columns need explicit confirmation; a decline skips
// the iteration. A failing Confirmer is fatal.
type ValidateStep struct {
	Confirmer Confirmer
}

// Name implements pipeline.Step.
func (s *ValidateStep) Name() string { return "validate" }

// Run implements pipeline.Step.
func (s *ValidateStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	ds := st.Table()
	if ds == nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, fmt.Errorf("Dataset is nil or has no Payload")
	}
	w := script.Check(ctx, st.Code, ds.Columns())
	st.Unknown = w.Unknown
	if w.Empty() {
		return &pipeline.StepResult{Status: pipeline.StepOK}, nil
	}

	confirmer := s.Confirmer
	if confirmer == nil {
		confirmer = Decline
	}
	yes, err := confirmer.Confirm(ctx, st.Code, w.Unknown)
	if err != nil {
		return &pipeline.StepResult{
			Status: pipeline.StepFailed,
			Fatal:  true,
		}, fmt.Errorf("confirm unknown columns: %w", err)
	}
	if !yes {
		return &pipeline.StepResult{Status: pipeline.StepSkipped}, nil
	}
	return &pipeline.StepResult{Status: pipeline.StepOK}, nil
}

// ApplyStep runs the code against the dataset and hands the result back as
// a new snapshot. The same code fails the same way on a second run, so an
// ExecutionError is not recoverable and the Agent rolls back.
type ApplyStep struct {
	Executor *script.Executor
}

// Name implements pipeline.Step.
func (s *ApplyStep) Name() string { return "apply" }

// Run implements pipeline.Step.
func (s *ApplyStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	ds := st.Table()
	if ds == nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, fmt.Errorf("Dataset is nil or has no Payload")
	}
	ex := s.Executor
	if ex == nil {
		ex = &script.Executor{}
	}
	res, err := ex.Execute(ctx, st.Code, ds)
	if err != nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
			Fatal:       errors.Is(ctx.Err(), context.Canceled),
		}, err
	}

	snap, err := pipeline.DatasetSnapshot(res.Dataset)
	if err != nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, err
	}
	st.Preview = res.Preview
	return &pipeline.StepResult{
		Status:   pipeline.StepOK,
		Snapshot: snap,
	}, nil
}
