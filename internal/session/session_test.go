/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/sheet"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter replays canned input and then reports end of input.
type scriptedPrompter struct {
	instructions []string
	answers      []string
	abort        bool
	questions    []string
}

func (p *scriptedPrompter) ReadPath(ctx context.Context) (string, error) {
	return "", io.EOF
}

func (p *scriptedPrompter) ReadInstruction(ctx context.Context) (string, error) {
	if len(p.instructions) == 0 {
		if p.abort {
			return "", ErrAborted
		}
		return "", io.EOF
	}
	next := p.instructions[0]
	p.instructions = p.instructions[1:]
	return next, nil
}

func (p *scriptedPrompter) ReadConfirmation(ctx context.Context, question string) (string, error) {
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	next := p.answers[0]
	p.answers = p.answers[1:]
	return next, nil
}

type countingGenerator struct {
	replies []string
	err     error
	calls   int
}

func (g *countingGenerator) Call(ctx context.Context, input string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

type memorySink struct {
	saved *frame.Dataset
	err   error
}

func (m *memorySink) Save(ds *frame.Dataset) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = ds
	return "memory", nil
}

func inventory(t *testing.T) *frame.Dataset {
	t.Helper()
	ds, err := frame.New([]string{"Item", "Quantity"}, [][]frame.Value{
		{"bolt", 4.0},
		{"nut", nil},
		{"screw", 7.0},
	})
	require.NoError(t, err)
	return ds
}

func newSession(gen llm.Generator, p Prompter, sink Sink, out io.Writer) *Session {
	return New(Options{
		Generator: gen,
		Prompter:  p,
		Console:   NewConsole(out),
		Sink:      sink,
	})
}

func TestRun_FillMissingThenQuit(t *testing.T) {
	gen := &countingGenerator{replies: []string{"```python\ndf['Quantity'] = df['Quantity'].fillna(0)\n```"}}
	p := &scriptedPrompter{instructions: []string{"fill missing Quantity with 0", ":q"}}
	sink := &memorySink{}
	var out bytes.Buffer

	sum, err := newSession(gen, p, sink, &out).Run(context.Background(), inventory(t))
	require.NoError(t, err)
	assert.Equal(t, Counts{Applied: 1}, sum.Counts)
	assert.Equal(t, "memory", sum.Path)

	vals, err := sink.saved.Values("Quantity")
	require.NoError(t, err)
	assert.Equal(t, []frame.Value{4.0, 0.0, 7.0}, vals)
	assert.Contains(t, out.String(), "df['Quantity'] = df['Quantity'].fillna(0)")
	assert.Contains(t, out.String(), "Saved to memory")
	assert.Contains(t, out.String(), "1 applied, 0 skipped, 0 failed")
}

func TestRun_QuitTokenSkipsModel(t *testing.T) {
	for _, quit := range []string{":q", " :Q ", ":q\n"} {
		gen := &countingGenerator{}
		sink := &memorySink{}
		ds := inventory(t)
		sum, err := newSession(gen, &scriptedPrompter{instructions: []string{quit}}, sink, io.Discard).
			Run(context.Background(), ds)
		require.NoError(t, err)
		assert.Zero(t, gen.calls, "quit %q", quit)
		assert.Equal(t, Counts{}, sum.Counts)
		assert.True(t, ds.Equal(sink.saved))
	}
}

func TestRun_EndOfInputQuits(t *testing.T) {
	sink := &memorySink{}
	_, err := newSession(&countingGenerator{}, &scriptedPrompter{}, sink, io.Discard).
		Run(context.Background(), inventory(t))
	require.NoError(t, err)
	assert.NotNil(t, sink.saved)
}

func TestRun_AbortDoesNotSave(t *testing.T) {
	sink := &memorySink{}
	_, err := newSession(&countingGenerator{}, &scriptedPrompter{abort: true}, sink, io.Discard).
		Run(context.Background(), inventory(t))
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Nil(t, sink.saved)
}

func TestRun_DeclineLeavesDatasetUnchanged(t *testing.T) {
	gen := &countingGenerator{replies: []string{"df['Total'] = df['Quantity'] * df['Price']"}}
	p := &scriptedPrompter{instructions: []string{"compute totals"}, answers: []string{"n"}}
	sink := &memorySink{}
	var out bytes.Buffer
	ds := inventory(t)

	sum, err := newSession(gen, p, sink, &out).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, Counts{Skipped: 1}, sum.Counts)
	assert.True(t, ds.Equal(sink.saved))
	assert.Len(t, p.questions, 1)
	assert.Contains(t, out.String(), "Price")
	assert.Contains(t, out.String(), "Skipped")
}

func TestRun_ConfirmTokenIsCaseInsensitive(t *testing.T) {
	gen := &countingGenerator{replies: []string{"# df['Ghost'] is gone\ndf['Total'] = df['Quantity'] * 2"}}
	p := &scriptedPrompter{instructions: []string{"double"}, answers: []string{" Y "}}
	sink := &memorySink{}

	sum, err := newSession(gen, p, sink, io.Discard).Run(context.Background(), inventory(t))
	require.NoError(t, err)
	assert.Equal(t, Counts{Applied: 1}, sum.Counts)
	assert.Len(t, p.questions, 1)
	assert.Contains(t, sink.saved.Columns(), "Total")
}

func TestRun_GatewayFailureKeepsDataset(t *testing.T) {
	gen := &countingGenerator{err: &llm.CommunicationError{Model: "stub", Attempts: 1, Err: errors.New("connection refused")}}
	p := &scriptedPrompter{instructions: []string{"anything", "again"}}
	sink := &memorySink{}
	var out bytes.Buffer
	ds := inventory(t)
	before, err := ds.MarshalJSON()
	require.NoError(t, err)

	sum, err := newSession(gen, p, sink, &out).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, Counts{Failed: 2}, sum.Counts)
	after, err := sink.saved.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, out.String(), "Error communicating with the model")
}

func TestRun_ExecutionErrorKeepsDataset(t *testing.T) {
	gen := &countingGenerator{replies: []string{"df['A'] = 1\ndf = 5", "df['B'] = 2"}}
	p := &scriptedPrompter{instructions: []string{"break it", "add B"}}
	sink := &memorySink{}

	sum, err := newSession(gen, p, sink, io.Discard).Run(context.Background(), inventory(t))
	require.NoError(t, err)
	assert.Equal(t, Counts{Applied: 1, Failed: 1}, sum.Counts)
	// the failed iteration left no trace, the next one applied on top of the original
	assert.Equal(t, []string{"Item", "Quantity", "B"}, sink.saved.Columns())
}

func TestRun_SaveFailure(t *testing.T) {
	gen := &countingGenerator{replies: []string{"df['Quantity'] = df['Quantity'].fillna(0)"}}
	p := &scriptedPrompter{instructions: []string{"fill missing Quantity with 0", ":q"}}
	sink := &memorySink{err: &sheet.PersistenceError{Path: "x.xlsx", Err: errors.New("disk full")}}
	var out bytes.Buffer
	sum, err := newSession(gen, p, sink, &out).Run(context.Background(), inventory(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sheet.ErrPersistence))
	require.NotNil(t, sum)
	assert.Equal(t, Counts{Applied: 1}, sum.Counts)

	// the counters still close the session
	text := out.String()
	assert.Contains(t, text, "disk full")
	assert.Contains(t, text, "1 applied, 0 skipped, 0 failed")
	assert.Greater(t, strings.Index(text, "1 applied"), strings.Index(text, "disk full"))
}

func TestRun_SourceChangedNotice(t *testing.T) {
	var out bytes.Buffer
	s := newSession(&countingGenerator{}, &scriptedPrompter{instructions: []string{":q"}}, &memorySink{}, &out)
	s.changed.Store(true)
	_, err := s.Run(context.Background(), inventory(t))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "changed on disk")
}

func TestAdvance(t *testing.T) {
	gen := &countingGenerator{}
	s := newSession(gen, &scriptedPrompter{}, nil, io.Discard)
	start, err := NewState(inventory(t))
	require.NoError(t, err)

	next, err := s.Advance(context.Background(), start, "   ")
	require.NoError(t, err)
	assert.Equal(t, AwaitingInstruction, next.Phase)
	assert.Zero(t, gen.calls)

	done, err := s.Advance(context.Background(), next, ":q")
	require.NoError(t, err)
	assert.Equal(t, Terminated, done.Phase)
	assert.Same(t, start.Dataset, done.Dataset)
	// the input state is a value and stays as it was
	assert.Equal(t, AwaitingInstruction, next.Phase)

	_, err = s.Advance(context.Background(), done, "more")
	assert.True(t, errors.Is(err, ErrTerminated))
	assert.Zero(t, gen.calls)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(src, []byte("Item,Quantity\nbolt,4\n"), 0o644))

	path, err := (&FileSink{Source: src, Suffix: sheet.DefaultSuffix}).Save(inventory(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sales_modified.csv"), path)

	back, err := sheet.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, back.NumRows())

	// the source is left alone
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "Item,Quantity\nbolt,4\n", string(data))
}
