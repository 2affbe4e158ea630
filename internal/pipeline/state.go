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
	"time"

	"github.com/cloudwego/tabcoder/lang/frame"
)

// IterationState is the Agent's single source of truth for one instruction.
// All intermediate results live here; the dataset is carried as a snapshot
// so rollback = restore the snapshot taken when the run started.
type IterationState struct {
	RunID       string
	Instruction string

	Dataset *Snapshot // kind "dataset", payload *frame.Dataset

	Sample   string   // YAML rows shown to the model
	Prompt   string   // composed request
	Response string   // raw model reply
	Code     string   // extracted code
	Unknown  []string // columns the code reads that the dataset lacks
	Preview  string   // rendered result after a successful apply

	History []StepRecord
}

// Table returns the current dataset, or nil when none is attached.
func (st *IterationState) Table() *frame.Dataset {
	if st == nil || st.Dataset == nil {
		return nil
	}
	ds, _ := st.Dataset.Payload.(*frame.Dataset)
	return ds
}

// StepRecord is an immutable log entry for one step execution.
type StepRecord struct {
	StepName string
	Attempt  int
	Status   StepStatus
	Error    string
	Time     time.Time
}

// StepStatus is the outcome of a step run.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Outcome is how an iteration ended.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)
