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
	"time"

	"github.com/cloudwego/tabcoder/lang/log"
)

// Pipeline runs steps in sequence with retry/rollback driven by the Agent.
type Pipeline struct {
	Steps    []Step
	Agent    Agent
	Observer Observer
}

// Run executes all steps for one instruction. The dataset snapshot held by
// st when Run starts is what rollback restores, so a Skipped or Failed
// outcome always leaves st.Dataset exactly as it was. State is mutated only
// via applySnapshot and rollback.
func (p *Pipeline) Run(ctx context.Context, st *IterationState) (Outcome, error) {
	if p.Agent == nil {
		p.Agent = &DefaultAgent{MaxRetry: 1}
	}
	start := st.Dataset
	for _, step := range p.Steps {
		status, err := p.runStep(ctx, step, st)
		switch {
		case err != nil:
			rollback(st, start)
			return OutcomeFailed, err
		case status == StepSkipped:
			rollback(st, start)
			return OutcomeSkipped, nil
		}
	}
	return OutcomeApplied, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, st *IterationState) (StepStatus, error) {
	attempt := 0
	for {
		attempt++
		log.Debug("run %s: step %s (attempt %d)", st.RunID, step.Name(), attempt)
		result, err := step.Run(ctx, st)
		if err == nil && result != nil && (result.Status == StepOK || result.Status == StepSkipped) {
			if result.Snapshot != nil {
				applySnapshot(st, result.Snapshot)
			}
			st.History = append(st.History, StepRecord{
				StepName: step.Name(),
				Attempt:  attempt,
				Status:   result.Status,
				Time:     time.Now(),
			})
			p.notify(step, st, result.Status)
			return result.Status, nil
		}

		// Build result for Agent if step returned nil result
		if result == nil {
			result = &StepResult{Status: StepFailed, Recoverable: true}
		}
		if result.Status != StepFailed {
			result = &StepResult{Status: StepFailed, Recoverable: false}
		}

		st.History = append(st.History, StepRecord{
			StepName: step.Name(),
			Attempt:  attempt,
			Status:   result.Status,
			Error:    errStr(err),
			Time:     time.Now(),
		})
		p.notify(step, st, StepFailed)

		decision := p.Agent.OnStepFailure(ctx, step, st, result, attempt)
		log.Debug("run %s: step %s failed: %v, decision %s", st.RunID, step.Name(), err, decision)
		switch decision {
		case DecisionRetry:
			continue
		case DecisionAbort:
			return StepFailed, &StepError{Step: step.Name(), Aborted: true, Err: err}
		default:
			return StepFailed, &StepError{Step: step.Name(), Err: err}
		}
	}
}

func (p *Pipeline) notify(step Step, st *IterationState, status StepStatus) {
	if p.Observer != nil {
		p.Observer.StepDone(step, st, status)
	}
}

// applySnapshot updates state from a step-produced snapshot by kind.
func applySnapshot(st *IterationState, snap *Snapshot) {
	if st == nil || snap == nil {
		return
	}
	switch snap.Kind {
	case KindDataset:
		st.Dataset = snap
	}
}

// rollback restores the dataset to the snapshot taken before the run.
func rollback(st *IterationState, prev *Snapshot) {
	if st == nil {
		return
	}
	st.Dataset = prev
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
