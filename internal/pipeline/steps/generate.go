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
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/llm"
)

// GenerateStep sends the prompt to the model. Communication failures are
// recoverable: the Agent may try again, and the session goes on either way.
type GenerateStep struct {
	Generator llm.Generator
}

// Name implements pipeline.Step.
func (s *GenerateStep) Name() string { return "generate" }

// Run implements pipeline.Step.
func (s *GenerateStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	if s.Generator == nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: false,
		}, fmt.Errorf("no model configured")
	}
	resp, err := s.Generator.Call(ctx, st.Prompt)
	if err != nil {
		return &pipeline.StepResult{
			Status:      pipeline.StepFailed,
			Recoverable: true,
			Fatal:       ctx.Err() != nil,
		}, err
	}
	st.Response = resp
	return &pipeline.StepResult{Status: pipeline.StepOK}, nil
}

// ExtractStep unwraps the code from the model reply. It never fails: a
// reply without a fence is taken as code.
type ExtractStep struct{}

// Name implements pipeline.Step.
func (s *ExtractStep) Name() string { return "extract" }

// Run implements pipeline.Step.
func (s *ExtractStep) Run(ctx context.Context, st *pipeline.IterationState) (*pipeline.StepResult, error) {
	st.Code = script.ExtractCode(st.Response)
	return &pipeline.StepResult{Status: pipeline.StepOK}, nil
}
