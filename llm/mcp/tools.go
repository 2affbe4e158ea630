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

package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/tabcoder/internal/pipeline"
	"github.com/cloudwego/tabcoder/internal/pipeline/steps"
	"github.com/cloudwego/tabcoder/lang/frame"
	"github.com/cloudwego/tabcoder/lang/script"
	"github.com/cloudwego/tabcoder/lang/sheet"
	"github.com/cloudwego/tabcoder/llm"
	"github.com/cloudwego/tabcoder/llm/prompt"
	"github.com/google/uuid"
)

const (
	ToolPreviewTable   = "preview_table"
	ToolCheckScript    = "check_script"
	ToolApplyScript    = "apply_script"
	ToolTransformTable = "transform_table"

	DescPreviewTable   = "Load a spreadsheet or CSV file and return its columns, a YAML sample of the first rows and a rendered preview."
	DescCheckScript    = "Check pandas-style code against a table without running it: column references, columns missing from the table and the parsed operations."
	DescApplyScript    = "Apply pandas-style code operating on `df` to a table and save the result next to it (suffix _modified). Refuses code that uses unknown columns unless allow_unknown is set."
	DescTransformTable = "Turn a natural-language instruction into code with the configured model, apply it to the table and save the result."
)

var (
	SchemaPreviewTable   = GetJSONSchema(PreviewTableReq{})
	SchemaCheckScript    = GetJSONSchema(CheckScriptReq{})
	SchemaApplyScript    = GetJSONSchema(ApplyScriptReq{})
	SchemaTransformTable = GetJSONSchema(TransformTableReq{})
)

type PreviewTableReq struct {
	Path string `json:"path" jsonschema:"description=path of the .xlsx, .csv or .tsv file"`
	Rows int    `json:"rows,omitempty" jsonschema:"description=number of sample rows (default 10)"`
}

type PreviewTableResp struct {
	Columns []string `json:"columns"`
	NumRows int      `json:"num_rows"`
	Sample  string   `json:"sample"`
	Preview string   `json:"preview"`
}

type CheckScriptReq struct {
	Path string `json:"path" jsonschema:"description=path of the table the code will run on"`
	Code string `json:"code" jsonschema:"description=pandas-style code operating on df"`
}

type CheckScriptResp struct {
	Accessed   []string `json:"accessed,omitempty"`
	Written    []string `json:"written,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
	Operations []string `json:"operations,omitempty"`
	Notes      []string `json:"notes,omitempty"`
	ParseError string   `json:"parse_error,omitempty"`
}

type ApplyScriptReq struct {
	Path         string `json:"path" jsonschema:"description=path of the table"`
	Code         string `json:"code" jsonschema:"description=pandas-style code operating on df; markdown fences are stripped"`
	Output       string `json:"output,omitempty" jsonschema:"description=where to save the result (default: the path with _modified before the extension)"`
	AllowUnknown bool   `json:"allow_unknown,omitempty" jsonschema:"description=run even when the code uses columns the table lacks"`
}

type ApplyScriptResp struct {
	Output     string   `json:"output"`
	Preview    string   `json:"preview"`
	Operations []string `json:"operations,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
}

type TransformTableReq struct {
	Path         string `json:"path" jsonschema:"description=path of the table"`
	Instruction  string `json:"instruction" jsonschema:"description=what should change, in plain language"`
	Output       string `json:"output,omitempty" jsonschema:"description=where to save the result (default: the path with _modified before the extension)"`
	AllowUnknown bool   `json:"allow_unknown,omitempty" jsonschema:"description=run even when the generated code uses columns the table lacks"`
}

type TransformTableResp struct {
	Outcome string   `json:"outcome"`
	Code    string   `json:"code"`
	Output  string   `json:"output,omitempty"`
	Preview string   `json:"preview,omitempty"`
	Unknown []string `json:"unknown,omitempty"`
}

// TableTools serves the table tools over one configuration.
type TableTools struct {
	opts TableToolsOptions
}

type TableToolsOptions struct {
	Generator   llm.Generator
	Builder     *prompt.Builder
	SampleRows  int
	PreviewRows int
	Suffix      string
	ExecTimeout time.Duration
	MaxAttempts int
}

func NewTableTools(opts TableToolsOptions) *TableTools {
	if opts.SampleRows <= 0 {
		opts.SampleRows = frame.DefaultSampleRows
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = frame.DefaultPreviewRows
	}
	if opts.Suffix == "" {
		opts.Suffix = sheet.DefaultSuffix
	}
	return &TableTools{opts: opts}
}

func (t *TableTools) executor() *script.Executor {
	return &script.Executor{PreviewRows: t.opts.PreviewRows, Timeout: t.opts.ExecTimeout}
}

func (t *TableTools) output(path, out string) string {
	if out != "" {
		return out
	}
	return sheet.ModifiedPath(path, t.opts.Suffix)
}

func (t *TableTools) PreviewTable(ctx context.Context, req PreviewTableReq) (*PreviewTableResp, error) {
	ds, err := sheet.Load(req.Path)
	if err != nil {
		return nil, err
	}
	rows := req.Rows
	if rows <= 0 {
		rows = t.opts.SampleRows
	}
	sample, err := frame.Sample(ds, rows)
	if err != nil {
		return nil, err
	}
	return &PreviewTableResp{
		Columns: ds.Columns(),
		NumRows: ds.NumRows(),
		Sample:  sample,
		Preview: frame.Preview(ds, t.opts.PreviewRows),
	}, nil
}

func (t *TableTools) CheckScript(ctx context.Context, req CheckScriptReq) (*CheckScriptResp, error) {
	ds, err := sheet.Load(req.Path)
	if err != nil {
		return nil, err
	}
	code := script.ExtractCode(req.Code)
	refs := script.ScanColumnRefs(code)
	resp := &CheckScriptResp{
		Accessed: refs.Accessed,
		Written:  refs.Written,
		Unknown:  script.Check(ctx, code, ds.Columns()).Unknown,
	}
	prog, err := script.Parse(ctx, code)
	if err != nil {
		resp.ParseError = err.Error()
		return resp, nil
	}
	resp.Operations = describe(prog)
	resp.Notes = prog.Notes
	return resp, nil
}

func (t *TableTools) ApplyScript(ctx context.Context, req ApplyScriptReq) (*ApplyScriptResp, error) {
	ds, err := sheet.Load(req.Path)
	if err != nil {
		return nil, err
	}
	code := script.ExtractCode(req.Code)
	w := script.Check(ctx, code, ds.Columns())
	if !w.Empty() && !req.AllowUnknown {
		return nil, fmt.Errorf("code uses unknown columns %v; set allow_unknown to run it anyway", w.Unknown)
	}
	res, err := t.executor().Execute(ctx, code, ds)
	if err != nil {
		return nil, err
	}
	out := t.output(req.Path, req.Output)
	if err := sheet.Save(res.Dataset, out); err != nil {
		return nil, err
	}
	return &ApplyScriptResp{
		Output:     out,
		Preview:    res.Preview,
		Operations: describe(res.Program),
		Unknown:    w.Unknown,
	}, nil
}

func (t *TableTools) TransformTable(ctx context.Context, req TransformTableReq) (*TransformTableResp, error) {
	if t.opts.Generator == nil {
		return nil, errors.New("no model configured")
	}
	ds, err := sheet.Load(req.Path)
	if err != nil {
		return nil, err
	}
	snap, err := pipeline.DatasetSnapshot(ds)
	if err != nil {
		return nil, err
	}
	allow := steps.ConfirmFunc(func(context.Context, string, []string) (bool, error) {
		return req.AllowUnknown, nil
	})
	pl := &pipeline.Pipeline{
		Steps: steps.New(steps.Options{
			SampleRows: t.opts.SampleRows,
			Builder:    t.opts.Builder,
			Generator:  t.opts.Generator,
			Confirmer:  allow,
			Executor:   t.executor(),
		}),
		Agent: steps.NewAgent(t.opts.MaxAttempts),
	}
	st := &pipeline.IterationState{RunID: uuid.NewString(), Instruction: req.Instruction, Dataset: snap}
	outcome, err := pl.Run(ctx, st)
	if err != nil {
		return nil, err
	}
	resp := &TransformTableResp{Outcome: string(outcome), Code: st.Code, Unknown: st.Unknown}
	if outcome != pipeline.OutcomeApplied {
		return resp, nil
	}
	out := t.output(req.Path, req.Output)
	if err := sheet.Save(st.Table(), out); err != nil {
		return nil, err
	}
	resp.Output = out
	resp.Preview = st.Preview
	return resp, nil
}

func describe(prog *script.Program) []string {
	if prog == nil {
		return nil
	}
	out := make([]string, 0, len(prog.Ops))
	for _, op := range prog.Ops {
		out = append(out, fmt.Sprintf("line %d: %s", op.Line(), op.Kind()))
	}
	return out
}

func (t *TableTools) Tools() []Tool {
	tools := []Tool{
		NewTool(ToolPreviewTable, DescPreviewTable, SchemaPreviewTable, t.PreviewTable),
		NewTool(ToolCheckScript, DescCheckScript, SchemaCheckScript, t.CheckScript),
		NewTool(ToolApplyScript, DescApplyScript, SchemaApplyScript, t.ApplyScript),
	}
	if t.opts.Generator != nil {
		tools = append(tools, NewTool(ToolTransformTable, DescTransformTable, SchemaTransformTable, t.TransformTable))
	}
	return tools
}
