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



package pipeline

import (
	"context"
	"slices"

	"github.com/cloudwego/tabcoder/lang/log"
)

// Agent is consulted after every failed step attempt. It only schedules
// the next move and never touches the iteration's data.
type Agent interface {
	OnStepFailure(
		ctx context.Context,
		step Step,
		st *IterationState,
		result *StepResult,
		attempt int,
	) AgentDecision
}

// AgentDecision is the action to take after a step failure.
type AgentDecision string

const (
	DecisionRetry    AgentDecision = "retry"
	DecisionRollback AgentDecision = "rollback"
	DecisionAbort    AgentDecision = "abort"
)

// DefaultAgent aborts on fatal results and cancelled contexts, and
// otherwise rolls the iteration back once a step is out of attempts.
type DefaultAgent struct {
	// MaxRetry is the number of attempts a recoverable step gets.
	MaxRetry int
	// Steps limits retries to the named steps. Empty means any step.
	Steps []string
}

// OnStepFailure implements Agent.
func (a *DefaultAgent) OnStepFailure(
	ctx context.Context,
	step Step,
	st *IterationState,
	result *StepResult,
	attempt int,
) AgentDecision {
	d := a.decide(ctx, step, result, attempt)
	if st != nil && step != nil {
		log.Debug("run %s: step %s failed on attempt %d, %s", st.RunID, step.Name(), attempt, d)
	}
	return d
}

func (a *DefaultAgent) decide(ctx context.Context, step Step, result *StepResult, attempt int) AgentDecision {
	switch {
	case ctx.Err() != nil, result != nil && result.Fatal:
		return DecisionAbort
	case result != nil && !result.Recoverable:
		return DecisionRollback
	case attempt >= a.MaxRetry:
		return DecisionRollback
	case len(a.Steps) > 0 && (step == nil || !slices.Contains(a.Steps, step.Name())):
		return DecisionRollback
	}
	return DecisionRetry
}
