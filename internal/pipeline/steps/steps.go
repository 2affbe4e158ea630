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


// Package steps holds the stages that turn one instruction into a change of
// the dataset: sample, prompt, generate, extract, validate and apply.
package steps

import (
	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/prompt"
)

// Options wires the collaborators of the instruction pipeline.
type Options struct {
	SampleRows int
	Builder    *prompt.Builder
	Generator  llm.Generator
	Confirmer  Confirmer
	Executor   *script.Executor
}

// Retried names the steps worth another attempt after a recoverable failure.
var Retried = []string{"generate"}

// NewAgent returns the retry policy for the steps of New.
func NewAgent(attempts int) *pipeline.DefaultAgent {
	if attempts <= 0 {
		attempts = 1
	}
	return &pipeline.DefaultAgent{MaxRetry: attempts, Steps: Retried}
}

// New returns the steps of one iteration in order.
func New(opts Options) []pipeline.Step {
	return []pipeline.Step{
		&SampleStep{Rows: opts.SampleRows},
		&PromptStep{Builder: opts.Builder},
		&GenerateStep{Generator: opts.Generator},
		&ExtractStep{},
		&ValidateStep{Confirmer: opts.Confirmer},
		&ApplyStep{Executor: opts.Executor},
	}
}
