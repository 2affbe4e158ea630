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
	"errors"
	"fmt"
)

// Step is one stage of processing an instruction. Steps read and write the
// IterationState fields they own and hand new datasets back as snapshots.
type Step interface {
	Name() string
	Run(ctx context.Context, st *IterationState) (*StepResult, error)
}

// StepResult is what a step reports back to the Pipeline.
type StepResult struct {
	Status StepStatus
	// Recoverable means another attempt of the same step may succeed.
	Recoverable bool
	// Fatal means the session cannot go on (cancelled, terminal gone).
	Fatal    bool
	Snapshot *Snapshot
}

// ErrAborted matches errors from runs the Agent aborted.
var ErrAborted = errors.New("pipeline aborted")

// StepError is the failure of one step, reported after rollback or abort.
type StepError struct {
	Step    string
	Aborted bool
	Err     error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %s failed", e.Step)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return e.Aborted && target == ErrAborted }

// Observer is told about every finished step. The session uses it to show
// generated code before asking for confirmation.
type Observer interface {
	StepDone(step Step, st *IterationState, status StepStatus)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step Step, st *IterationState, status StepStatus)

func (f ObserverFunc) StepDone(step Step, st *IterationState, status StepStatus) { f(step, st, status) }
