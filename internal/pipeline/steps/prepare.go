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
	"fmt"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/llm/prompt"
)

// SampleStep renders the first Rows rows of the dataset as YAML. It only
// reads the dataset; failures are not recoverable.
type SampleStep struct {
	Rows int
}

// Name implements pipeline.Step.
func (s *SampleStep) Name() string { return "sample" }

// Run implements pipeline.Step.
func (s *SampleStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	ds := st.Table()
	if ds == nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, fmt.Errorf("Dataset is nil or has no Payload")
	}
	rows := s.Rows
	if rows <= 0 {
		rows = frame.DefaultSampleRows
	}
	sample, err := frame.Sample(ds, rows)
	if err != nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, err
	}
	st.Sample = sample
	return &pipeline.StepResult{Status: pipeline.StepOK}, nil
}

// PromptStep composes the model request from the sample and instruction.
type PromptStep struct {
	Builder *prompt.Builder
}

// Name implements pipeline.Step.
func (s *PromptStep) Name() string { return "prompt" }

// Run implements pipeline.Step.
func (s *PromptStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	if s.Builder == nil {
		st.Prompt = prompt.BuildTransformPrompt(st.Sample, st.Instruction)
		return &pipeline.StepResult{Status: pipeline.StepOK}, nil
	}
	p, err := s.Builder.Build(st.Sample, st.Instruction)
	if err != nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, err
	}
	st.Prompt = p.String()
	return &pipeline.StepResult{Status: pipeline.StepOK}, nil
}
