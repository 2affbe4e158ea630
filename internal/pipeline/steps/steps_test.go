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
	"strings"
	"testing"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Call(ctx context.Context, input string) (string, error) {
	g.prompts = append(g.prompts, input)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type stubConfirmer struct {
	answer bool
	err    error
	asked  [][]string
}

func (c *stubConfirmer) Confirm(ctx context.Context, code string, unknown []string) (bool, error) {
	c.asked = append(c.asked, unknown)
	return c.answer, c.err
}

func inventory(t *testing.T) *pipeline.Snapshot {
	t.Helper()
	ds, err := frame.New([]string{"Item", "Quantity"}, [][]frame.Value{
		{"bolt", 4.0},
		{"nut", nil},
		{"screw", 7.0},
	})
	require.NoError(t, err)
	snap, err := pipeline.DatasetSnapshot(ds)
	require.NoError(t, err)
	return snap
}

func run(t *testing.T, gen llm.Generator, confirm Confirmer, attempts int) (*pipeline.IterationState, pipeline.Outcome, error) {
	t.Helper()
	st := &pipeline.IterationState{
		RunID:       "test",
		Instruction: "fill missing Quantity with 0",
		Dataset:     inventory(t),
	}
	pl := &pipeline.Pipeline{
		Steps: New(Options{SampleRows: 10, Generator: gen, Confirmer: confirm, Executor: &script.Executor{}}),
		Agent: NewAgent(attempts),
	}
	outcome, err := pl.Run(context.Background(), st)
	return st, outcome, err
}

func TestPipeline_FillMissing(t *testing.T) {
	gen := &stubGenerator{reply: "```python\ndf['Quantity'] = df['Quantity'].fillna(0)\n```"}
	before := inventory(t)

	st, outcome, err := run(t, gen, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeApplied, outcome)

	vals, err := st.Table().Values("Quantity")
	require.NoError(t, err)
	assert.Equal(t, []frame.Value{4.0, 0.0, 7.0}, vals)
	assert.NotEqual(t, before.Hash, st.Dataset.Hash)
	assert.Equal(t, "df['Quantity'] = df['Quantity'].fillna(0)", st.Code)
	assert.Contains(t, st.Preview, "screw")

	// the prompt carries the sample and the instruction
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Quantity: 4")
	assert.Contains(t, gen.prompts[0], "fill missing Quantity with 0")
}

func TestPipeline_UnknownColumnDeclined(t *testing.T) {
	gen := &stubGenerator{reply: "df['Total'] = df['Quantity'] * df['Price']"}
	confirm := &stubConfirmer{answer: false}
	before := inventory(t)

	st, outcome, err := run(t, gen, confirm, 1)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSkipped, outcome)
	assert.Equal(t, [][]string{{"Price"}}, confirm.asked)
	assert.Equal(t, []string{"Price"}, st.Unknown)
	assert.Equal(t, before.Hash, st.Dataset.Hash)
	assert.Empty(t, st.Preview)
}

func TestPipeline_UnknownColumnConfirmedStillFails(t *testing.T) {
	gen := &stubGenerator{reply: "df['Total'] = df['Quantity'] * df['Price']"}
	confirm := &stubConfirmer{answer: true}
	before := inventory(t)

	st, outcome, err := run(t, gen, confirm, 1)
	require.Error(t, err)
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	assert.True(t, errors.Is(err, script.ErrExecution))
	assert.False(t, errors.Is(err, pipeline.ErrAborted))
	assert.Equal(t, before.Hash, st.Dataset.Hash)
}

func TestPipeline_NoConfirmerDeclines(t *testing.T) {
	gen := &stubGenerator{reply: "df['x'] = df['Ghost']"}
	_, outcome, err := run(t, gen, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSkipped, outcome)
}

func TestPipeline_CommunicationFailure(t *testing.T) {
	gen := &stubGenerator{err: &llm.CommunicationError{Model: "stub", Attempts: 1, Err: errors.New("connection refused")}}
	before := inventory(t)

	st, outcome, err := run(t, gen, nil, 2)
	require.Error(t, err)
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	assert.True(t, errors.Is(err, llm.ErrCommunication))
	assert.False(t, errors.Is(err, pipeline.ErrAborted))
	assert.Len(t, gen.prompts, 2)
	assert.Equal(t, before.Hash, st.Dataset.Hash)
	assert.Empty(t, st.Code)
}

func TestPipeline_ConfirmerFailureAborts(t *testing.T) {
	gen := &stubGenerator{reply: "df['x'] = df['Ghost']"}
	confirm := &stubConfirmer{err: errors.New("terminal closed")}
	_, outcome, err := run(t, gen, confirm, 3)
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	assert.True(t, errors.Is(err, pipeline.ErrAborted))
}

func TestSampleStep_EmptyDataset(t *testing.T) {
	snap, err := pipeline.DatasetSnapshot(frame.Empty())
	require.NoError(t, err)
	st := &pipeline.IterationState{Dataset: snap}
	res, err := (&SampleStep{Rows: 10}).Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StepOK, res.Status)
	assert.Equal(t, "[]", strings.TrimSpace(st.Sample))
}

func TestSteps_NeedDataset(t *testing.T) {
	st := &pipeline.IterationState{}
	for _, step := range []pipeline.Step{&SampleStep{}, &ValidateStep{}, &ApplyStep{}} {
		res, err := step.Run(context.Background(), st)
		assert.Error(t, err, step.Name())
		assert.False(t, res.Recoverable, step.Name())
	}
}
