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

// Package session runs the interactive loop: read an instruction, push it
// through the instruction pipeline, report, repeat until the user quits,
// then hand the final table to the sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/internal/pipeline/steps"
	"github.com/cloudwego/tabcoder/internal/utils"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/log"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/lang/sheet"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/prompt"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// Phase is where the session loop stands.
type Phase string

const (
	AwaitingInstruction Phase = "awaiting-instruction"
	Processing          Phase = "processing"
	Applied             Phase = "applied"
	Skipped             Phase = "skipped"
	Failed              Phase = "failed"
	Terminated          Phase = "terminated"
)

// ErrTerminated is returned by Advance once the session has ended.
var ErrTerminated = errors.New("session terminated")

// Counts tallies iteration outcomes.
type Counts struct {
	Applied int
	Skipped int
	Failed  int
}

// State is the whole session state between two instructions. It is a
// value: Advance returns a new State and never changes the one passed in.
type State struct {
	Phase   Phase
	Dataset *pipeline.Snapshot
	Counts  Counts

	// Set for the phase that produced them only.
	Preview string
	Err     error
}

// Table returns the dataset held by s.
func (s State) Table() *frame.Dataset {
	ds, _ := s.Dataset.Payload.(*frame.Dataset)
	return ds
}

// NewState starts a session on ds.
func NewState(ds *frame.Dataset) (State, error) {
	snap, err := pipeline.DatasetSnapshot(ds)
	if err != nil {
		return State{}, err
	}
	return State{Phase: AwaitingInstruction, Dataset: snap}, nil
}

// Sink persists the final table and reports where it went.
type Sink interface {
	Save(ds *frame.Dataset) (string, error)
}

// FileSink saves next to Source with Suffix inserted before the extension.
type FileSink struct {
	Source string
	Suffix string
	// Output overrides the derived path when set.
	Output string
}

func (f *FileSink) Save(ds *frame.Dataset) (string, error) {
	path := f.Output
	if path == "" {
		path = sheet.ModifiedPath(f.Source, f.Suffix)
	}
	if err := sheet.Save(ds, path); err != nil {
		return "", err
	}
	return path, nil
}

type Options struct {
	Generator    llm.Generator
	Builder      *prompt.Builder
	Executor     *script.Executor
	SampleRows   int
	MaxAttempts  int
	QuitToken    string
	ConfirmToken string

	Prompter Prompter
	Console  *Console
	Sink     Sink
	// WatchPath is the source file; changes on disk are reported, not loaded.
	WatchPath string
}

// Session drives the loop.
type Session struct {
	pipeline     *pipeline.Pipeline
	prompter     Prompter
	console      *Console
	sink         Sink
	quitToken    string
	confirmToken string
	watchPath    string
	changed      atomic.Bool
}

func New(opts Options) *Session {
	s := &Session{
		prompter:     opts.Prompter,
		console:      opts.Console,
		sink:         opts.Sink,
		quitToken:    opts.QuitToken,
		confirmToken: opts.ConfirmToken,
		watchPath:    opts.WatchPath,
	}
	if s.quitToken == "" {
		s.quitToken = ":q"
	}
	if s.confirmToken == "" {
		s.confirmToken = "y"
	}
	if s.console == nil {
		s.console = NewConsole(io.Discard)
	}
	s.pipeline = &pipeline.Pipeline{
		Steps: steps.New(steps.Options{
			SampleRows: opts.SampleRows,
			Builder:    opts.Builder,
			Generator:  opts.Generator,
			Confirmer:  s,
			Executor:   opts.Executor,
		}),
		Agent:    steps.NewAgent(opts.MaxAttempts),
		Observer: pipeline.ObserverFunc(s.stepDone),
	}
	return s
}

// IsQuit reports whether input is the quit token, ignoring case and
// surrounding whitespace.
func (s *Session) IsQuit(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), s.quitToken)
}

// Advance is the transition function of the loop. The quit token ends the
// session without calling the model; a blank instruction leaves the state
// as it is. Anything else runs the pipeline once: Applied carries the new
// dataset snapshot, Skipped and Failed carry the old one. The error is
// non-nil only when the session cannot go on.
func (s *Session) Advance(ctx context.Context, cur State, instruction string) (State, error) {
	next := cur
	next.Preview, next.Err = "", nil
	if cur.Phase == Terminated {
		return next, ErrTerminated
	}
	if s.IsQuit(instruction) {
		next.Phase = Terminated
		return next, nil
	}
	if strings.TrimSpace(instruction) == "" {
		next.Phase = AwaitingInstruction
		return next, nil
	}

	st := &pipeline.IterationState{
		RunID:       uuid.NewString(),
		Instruction: instruction,
		Dataset:     cur.Dataset,
	}
	log.Debug("run %s: processing instruction", st.RunID)
	outcome, err := s.pipeline.Run(ctx, st)
	if errors.Is(err, pipeline.ErrAborted) {
		next.Phase = Failed
		next.Err = err
		return next, err
	}

	switch outcome {
	case pipeline.OutcomeApplied:
		next.Phase = Applied
		next.Dataset = st.Dataset
		next.Preview = st.Preview
		next.Counts.Applied++
	case pipeline.OutcomeSkipped:
		next.Phase = Skipped
		next.Counts.Skipped++
	default:
		next.Phase = Failed
		next.Err = err
		next.Counts.Failed++
		log.Info("run %s failed: %v", st.RunID, err)
	}
	return next, nil
}

// Summary is the result of a finished session.
type Summary struct {
	Counts Counts
	Path   string
}

// Run loops until the quit token (or end of input), then saves. On
// ErrAborted or a fatal pipeline failure nothing is saved. A save failure is
// reported and returned; the loop is not re-entered.
func (s *Session) Run(ctx context.Context, ds *frame.Dataset) (*Summary, error) {
	state, err := NewState(ds)
	if err != nil {
		return nil, err
	}
	stop := s.watch()
	defer stop()

	for state.Phase != Terminated {
		if s.changed.Swap(false) {
			s.console.Notice("The source file changed on disk. The table in memory was not reloaded; saving will not include those changes.")
		}
		instruction, err := s.prompter.ReadInstruction(ctx)
		switch {
		case errors.Is(err, io.EOF):
			instruction = s.quitToken
		case err != nil:
			return nil, err
		}

		state, err = s.Advance(ctx, state, instruction)
		if err != nil {
			return nil, err
		}
		switch state.Phase {
		case Applied:
			s.console.Preview(state.Preview)
		case Skipped:
			s.console.Skipped()
		case Failed:
			s.console.Failure(state.Err)
		}
	}

	sum := &Summary{Counts: state.Counts}
	defer s.console.Summary(sum.Counts)
	if s.sink == nil {
		return sum, nil
	}
	path, err := s.sink.Save(state.Table())
	if err != nil {
		s.console.Failure(err)
		return sum, err
	}
	sum.Path = path
	s.console.Saved(path)
	return sum, nil
}

// Confirm implements steps.Confirmer. End of input declines.
func (s *Session) Confirm(ctx context.Context, code string, unknown []string) (bool, error) {
	s.console.Warning(unknown)
	question := fmt.Sprintf("Run it anyway? (%s to confirm)", s.confirmToken)
	answer, err := s.prompter.ReadConfirmation(ctx, question)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(answer), s.confirmToken), nil
}

func (s *Session) stepDone(step pipeline.Step, st *pipeline.IterationState, status pipeline.StepStatus) {
	if status == pipeline.StepOK && step.Name() == "extract" {
		s.console.Code(st.Code)
	}
}

func (s *Session) watch() (stop func()) {
	if s.watchPath == "" {
		return func() {}
	}
	stop, err := utils.WatchFile(s.watchPath, func(op fsnotify.Op, file string) {
		if op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
			log.Debug("source %s changed (%s)", file, op)
			s.changed.Store(true)
		}
	})
	if err != nil {
		log.Error("cannot watch %s: %v", s.watchPath, err)
		return func() {}
	}
	return stop
}
