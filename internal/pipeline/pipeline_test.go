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
	"testing"

	"github.com/cloudwego/tabcoder/lang/frame"
)

type mockStepOK struct {
	name string
	snap *Snapshot
}

func (m *mockStepOK) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock-ok"
}

func (m *mockStepOK) Run(ctx context.Context, st *IterationState) (*StepResult, error) {
	if m.snap != nil {
		return &StepResult{Status: StepOK, Snapshot: m.snap}, nil
	}
	return &StepResult{Status: StepOK}, nil
}

type mockStepFail struct {
	recoverable bool
	fatal       bool
	calls       int
}

func (m *mockStepFail) Name() string { return "mock-fail" }

func (m *mockStepFail) Run(ctx context.Context, st *IterationState) (*StepResult, error) {
	m.calls++
	return &StepResult{
		Status:      StepFailed,
		Recoverable: m.recoverable,
		Fatal:       m.fatal,
	}, errors.New("boom")
}

// mockStepFlaky fails until the given attempt.
type mockStepFlaky struct {
	succeedOn int
	calls     int
}

func (m *mockStepFlaky) Name() string { return "mock-flaky" }

func (m *mockStepFlaky) Run(ctx context.Context, st *IterationState) (*StepResult, error) {
	m.calls++
	if m.calls < m.succeedOn {
		return &StepResult{Status: StepFailed, Recoverable: true}, errors.New("transient")
	}
	return &StepResult{Status: StepOK}, nil
}

type mockStepSkip struct{}

func (m *mockStepSkip) Name() string { return "mock-skip" }

func (m *mockStepSkip) Run(ctx context.Context, st *IterationState) (*StepResult, error) {
	return &StepResult{Status: StepSkipped}, nil
}

func table(t *testing.T, v float64) *Snapshot {
	t.Helper()
	ds, err := frame.New([]string{"a"}, [][]frame.Value{{v}})
	if err != nil {
		t.Fatal(err)
	}
	snap, err := DatasetSnapshot(ds)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestPipeline_Run_Success(t *testing.T) {
	ctx := context.Background()
	start := table(t, 1)
	next := table(t, 2)
	st := &IterationState{RunID: "run-1", Dataset: start}

	pl := &Pipeline{
		Steps: []Step{&mockStepOK{name: "inject", snap: next}},
		Agent: &DefaultAgent{MaxRetry: 1},
	}
	outcome, err := pl.Run(ctx, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome: got %s", outcome)
	}
	if st.Dataset != next {
		t.Fatal("expected Dataset to be replaced")
	}
	if len(st.History) != 1 {
		t.Errorf("expected 1 history record, got %d", len(st.History))
	}
	if st.History[0].Status != StepOK {
		t.Errorf("history status: got %s", st.History[0].Status)
	}
}

func TestPipeline_Run_RollbackRestoresDataset(t *testing.T) {
	ctx := context.Background()
	start := table(t, 1)
	st := &IterationState{RunID: "run-1", Dataset: start}

	pl := &Pipeline{
		Steps: []Step{&mockStepOK{snap: table(t, 2)}, &mockStepFail{recoverable: false}},
		Agent: &DefaultAgent{MaxRetry: 3},
	}
	outcome, err := pl.Run(ctx, st)
	if err == nil {
		t.Fatal("expected error on failure")
	}
	if errors.Is(err, ErrAborted) {
		t.Error("rollback must not report an abort")
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome: got %s", outcome)
	}
	if st.Dataset != start {
		t.Error("rollback did not restore the starting dataset")
	}
}

func TestPipeline_Run_AbortOnFatal(t *testing.T) {
	ctx := context.Background()
	st := &IterationState{RunID: "run-1"}
	fail := &mockStepFail{recoverable: true, fatal: true}

	pl := &Pipeline{
		Steps: []Step{fail},
		Agent: &DefaultAgent{MaxRetry: 3},
	}
	_, err := pl.Run(ctx, st)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected abort, got %v", err)
	}
	if fail.calls != 1 {
		t.Errorf("fatal step retried %d times", fail.calls)
	}
}

func TestPipeline_Run_RetryThenSucceed(t *testing.T) {
	st := &IterationState{RunID: "run-1"}
	flaky := &mockStepFlaky{succeedOn: 3}
	var seen []StepStatus

	pl := &Pipeline{
		Steps:    []Step{flaky},
		Agent:    &DefaultAgent{MaxRetry: 3},
		Observer: ObserverFunc(func(step Step, st *IterationState, status StepStatus) {
			seen = append(seen, status)
		}),
	}
	outcome, err := pl.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome: got %s", outcome)
	}
	if len(st.History) != 3 {
		t.Errorf("expected 3 history records, got %d", len(st.History))
	}
	if len(seen) != 3 || seen[2] != StepOK {
		t.Errorf("observer saw %v", seen)
	}
}

func TestPipeline_Run_Skipped(t *testing.T) {
	start := table(t, 1)
	st := &IterationState{RunID: "run-1", Dataset: start}
	after := &mockStepOK{name: "after"}

	pl := &Pipeline{Steps: []Step{&mockStepOK{snap: table(t, 5)}, &mockStepSkip{}, after}}
	outcome, err := pl.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("outcome: got %s", outcome)
	}
	if st.Dataset != start {
		t.Error("skip must leave the dataset unchanged")
	}
	for _, rec := range st.History {
		if rec.StepName == "after" {
			t.Error("steps after a skip must not run")
		}
	}
}

func TestDefaultAgent_OnStepFailure(t *testing.T) {
	ctx := context.Background()
	agent := &DefaultAgent{MaxRetry: 2}

	t.Run("abort when fatal", func(t *testing.T) {
		d := agent.OnStepFailure(ctx, nil, nil, &StepResult{Recoverable: true, Fatal: true}, 1)
		if d != DecisionAbort {
			t.Errorf("got %s", d)
		}
	})

	t.Run("abort when context is done", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		d := agent.OnStepFailure(cctx, nil, nil, &StepResult{Recoverable: true}, 1)
		if d != DecisionAbort {
			t.Errorf("got %s", d)
		}
	})

	t.Run("rollback when not recoverable", func(t *testing.T) {
		d := agent.OnStepFailure(ctx, nil, nil, &StepResult{Recoverable: false}, 1)
		if d != DecisionRollback {
			t.Errorf("got %s", d)
		}
	})

	t.Run("retry when recoverable and under max", func(t *testing.T) {
		d := agent.OnStepFailure(ctx, nil, nil, &StepResult{Recoverable: true}, 1)
		if d != DecisionRetry {
			t.Errorf("got %s", d)
		}
	})

	t.Run("rollback when recoverable and at max", func(t *testing.T) {
		d := agent.OnStepFailure(ctx, nil, nil, &StepResult{Recoverable: true}, 2)
		if d != DecisionRollback {
			t.Errorf("got %s", d)
		}
	})

	t.Run("retry only the listed steps", func(t *testing.T) {
		only := &DefaultAgent{MaxRetry: 3, Steps: []string{"mock-flaky"}}
		st := &IterationState{RunID: "r"}
		if d := only.OnStepFailure(ctx, &mockStepFlaky{}, st, &StepResult{Recoverable: true}, 1); d != DecisionRetry {
			t.Errorf("listed step: got %s", d)
		}
		if d := only.OnStepFailure(ctx, &mockStepFail{}, st, &StepResult{Recoverable: true}, 1); d != DecisionRollback {
			t.Errorf("unlisted step: got %s", d)
		}
	})
}

func TestApplySnapshot(t *testing.T) {
	st := &IterationState{}
	snap := table(t, 1)
	applySnapshot(st, snap)
	if st.Dataset != snap {
		t.Error("Dataset not set")
	}
	applySnapshot(st, NewSnapshot("other", "y", []byte("y")))
	if st.Dataset != snap {
		t.Error("unrelated snapshot kind replaced the dataset")
	}
	if st.Table() == nil || st.Table().NumRows() != 1 {
		t.Error("Table did not return the payload")
	}
}

func TestDatasetSnapshot_HashFollowsContent(t *testing.T) {
	a, b, c := table(t, 1), table(t, 1), table(t, 2)
	if a.Hash != b.Hash {
		t.Error("equal tables must hash equally")
	}
	if a.Hash == c.Hash {
		t.Error("different tables must hash differently")
	}
}
