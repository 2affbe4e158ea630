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

package script

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/cloudwego/tabcoder/lang/frame"
	sitter "github.com/smacker/go-tree-sitter"
)

// checkEvery is how many rows are evaluated between cancellation checks.
const checkEvery = 1024

// Expr is a column expression compiled to a row-wise govaluate expression.
// Columns and literals are bound as parameters, so the expression text only
// holds parameter names, operators and helper calls.
type Expr struct {
	source string
	text   string
	eval   *govaluate.EvaluableExpression
	cols   []colParam
	consts map[string]frame.Value
	aggs   []aggregate
	fills  []fill
}

type colParam struct {
	param  string
	column string
}

// aggregate is a column reduction evaluated once before the rows.
type aggregate struct {
	param string
	fn    string
	arg   *Expr
}

// fill is a forward or backward fill of a column expression, computed over
// all rows before the row-wise evaluation.
type fill struct {
	param    string
	backward bool
	arg      *Expr
}

func (e *Expr) String() string { return e.source }

// Columns lists the columns the expression reads, in order of first use.
func (e *Expr) Columns() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(*Expr)
	walk = func(x *Expr) {
		for _, c := range x.cols {
			if !seen[c.column] {
				seen[c.column] = true
				out = append(out, c.column)
			}
		}
		for _, a := range x.aggs {
			walk(a.arg)
		}
		for _, f := range x.fills {
			walk(f.arg)
		}
	}
	walk(e)
	return out
}

// Eval computes the expression for every row of ds. A row whose evaluation
// fails while one of its inputs is missing yields a missing value.
func (e *Expr) Eval(ctx context.Context, ds *frame.Dataset) ([]frame.Value, error) {
	params := make(map[string]any, len(e.consts)+len(e.cols)+len(e.aggs))
	nullable := false
	for k, v := range e.consts {
		params[k] = bind(v)
		nullable = nullable || v == nil
	}
	for _, a := range e.aggs {
		v, err := a.reduce(ctx, ds)
		if err != nil {
			return nil, err
		}
		params[a.param] = bind(v)
		nullable = nullable || v == nil
	}
	cols := make([][]frame.Value, len(e.cols))
	for i, c := range e.cols {
		vals, err := ds.Values(c.column)
		if err != nil {
			return nil, err
		}
		cols[i] = vals
	}
	filled := make([][]frame.Value, len(e.fills))
	for i, f := range e.fills {
		vals, err := f.apply(ctx, ds)
		if err != nil {
			return nil, err
		}
		filled[i] = vals
	}

	out := make([]frame.Value, ds.NumRows())
	for r := range out {
		if r%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		missing := nullable
		for i, c := range e.cols {
			v := cols[i][r]
			params[c.param] = bind(v)
			missing = missing || v == nil
		}
		for i, f := range e.fills {
			v := filled[i][r]
			params[f.param] = bind(v)
			missing = missing || v == nil
		}
		v, err := e.eval.Evaluate(params)
		if err != nil {
			if missing {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
		out[r] = frame.Normalize(cell(v))
	}
	return out, nil
}

// na stands for a missing cell while govaluate runs. govaluate calls a
// function with no arguments when its only argument is nil, so isna and
// the other missing-aware helpers would never see the cell.
type na struct{}

func bind(v frame.Value) any {
	if v == nil {
		return na{}
	}
	return v
}

func cell(v any) frame.Value {
	if _, ok := v.(na); ok {
		return nil
	}
	return v
}

// Mask evaluates a boolean expression. Missing results count as false.
func (e *Expr) Mask(ctx context.Context, ds *frame.Dataset) ([]bool, error) {
	vals, err := e.Eval(ctx, ds)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(vals))
	for i, v := range vals {
		switch b := v.(type) {
		case nil:
		case bool:
			mask[i] = b
		default:
			return nil, fmt.Errorf("row %d: condition must be boolean, got %q", i+1, frame.FormatValue(v))
		}
	}
	return mask, nil
}

func (f fill) apply(ctx context.Context, ds *frame.Dataset) ([]frame.Value, error) {
	vals, err := f.arg.Eval(ctx, ds)
	if err != nil {
		return nil, err
	}
	var last frame.Value
	step := func(i int) {
		if vals[i] == nil {
			vals[i] = last
		} else {
			last = vals[i]
		}
	}
	if f.backward {
		for i := len(vals) - 1; i >= 0; i-- {
			step(i)
		}
	} else {
		for i := range vals {
			step(i)
		}
	}
	return vals, nil
}

func (a aggregate) reduce(ctx context.Context, ds *frame.Dataset) (frame.Value, error) {
	vals, err := a.arg.Eval(ctx, ds)
	if err != nil {
		return nil, err
	}
	present := make([]frame.Value, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			present = append(present, v)
		}
	}
	switch a.fn {
	case "count":
		return float64(len(present)), nil
	case "nunique":
		uniq := map[frame.Value]struct{}{}
		for _, v := range present {
			uniq[v] = struct{}{}
		}
		return float64(len(uniq)), nil
	case "min", "max":
		if len(present) == 0 {
			return nil, nil
		}
		best := present[0]
		for _, v := range present[1:] {
			c := frame.Compare(v, best)
			if (a.fn == "min" && c < 0) || (a.fn == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	}

	nums := make([]float64, 0, len(present))
	for _, v := range present {
		x, err := number(a.fn, v)
		if err != nil {
			return nil, err
		}
		nums = append(nums, x)
	}
	switch a.fn {
	case "sum":
		s := 0.0
		for _, x := range nums {
			s += x
		}
		return s, nil
	case "mean":
		if len(nums) == 0 {
			return nil, nil
		}
		s := 0.0
		for _, x := range nums {
			s += x
		}
		return s / float64(len(nums)), nil
	case "median":
		if len(nums) == 0 {
			return nil, nil
		}
		sort.Float64s(nums)
		m := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[m], nil
		}
		return (nums[m-1] + nums[m]) / 2, nil
	case "std":
		if len(nums) < 2 {
			return nil, nil
		}
		mean := 0.0
		for _, x := range nums {
			mean += x
		}
		mean /= float64(len(nums))
		ss := 0.0
		for _, x := range nums {
			ss += (x - mean) * (x - mean)
		}
		return math.Sqrt(ss / float64(len(nums)-1)), nil
	}
	return nil, fmt.Errorf("unknown aggregate %q", a.fn)
}

var aggregates = map[string]bool{
	"sum": true, "mean": true, "median": true, "min": true, "max": true,
	"count": true, "std": true, "nunique": true,
}

// local is a name bound by an earlier statement, together with the names
// visible and the number of table operations recorded when it was bound.
type local struct {
	node *sitter.Node
	env  map[string]local
	ops  int
}

// builder translates one expression tree into govaluate text.
type builder struct {
	p   *parser
	e   *Expr
	env map[string]local
	n   int
}

func (p *parser) compile(n *sitter.Node, env map[string]local) (*Expr, error) {
	b := p.newBuilder(p.text(n), env)
	text, err := b.expr(n)
	if err != nil {
		return nil, err
	}
	return b.finish(n, text)
}

func (p *parser) newBuilder(source string, env map[string]local) *builder {
	return &builder{
		p:   p,
		e:   &Expr{source: source, consts: map[string]frame.Value{}},
		env: env,
	}
}

func (b *builder) finish(n *sitter.Node, text string) (*Expr, error) {
	ev, err := govaluate.NewEvaluableExpressionWithFunctions(text, functions)
	if err != nil {
		e := nodeError(n, "cannot compile expression %s", b.e.source)
		e.Err = err
		return nil, e
	}
	b.e.text, b.e.eval = text, ev
	return b.e, nil
}

func (b *builder) next(prefix string) string {
	b.n++
	return fmt.Sprintf("%s%d", prefix, b.n)
}

func (b *builder) column(name string) string {
	for _, c := range b.e.cols {
		if c.column == name {
			return c.param
		}
	}
	p := b.next("col")
	b.e.cols = append(b.e.cols, colParam{param: p, column: name})
	return p
}

func (b *builder) constant(v frame.Value) string {
	p := b.next("lit")
	b.e.consts[p] = v
	return p
}

func (b *builder) expr(n *sitter.Node) (string, error) {
	p := b.p
	switch n.Type() {
	case "parenthesized_expression":
		if n.NamedChildCount() != 1 {
			return "", nodeError(n, "unsupported expression %s", p.text(n))
		}
		s, err := b.expr(n.NamedChild(0))
		return "(" + s + ")", err

	case "integer", "float", "string", "concatenated_string", "true", "false", "none":
		v, err := p.scalar(n)
		if err != nil {
			return "", err
		}
		return b.constant(v), nil

	case "identifier":
		name := p.text(n)
		if name == Binding {
			return "", nodeError(n, "%s is a table, not a column value", Binding)
		}
		l, ok := b.env[name]
		if !ok {
			return "", nodeError(n, "name %q is not defined", name)
		}
		saved := b.env
		b.env = l.env
		s, err := b.expr(l.node)
		b.env = saved
		return "(" + s + ")", err

	case "subscript", "attribute":
		if col, ok := p.columnRef(n); ok {
			return b.column(col), nil
		}
		if v, ok := p.moduleConstant(n); ok {
			return b.constant(v), nil
		}
		return "", nodeError(n, "unsupported reference %s", p.text(n))

	case "unary_operator":
		arg, err := b.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return "", err
		}
		switch op := p.text(n.ChildByFieldName("operator")); op {
		case "-":
			return "(-" + arg + ")", nil
		case "+":
			return arg, nil
		case "~":
			return "(!" + arg + ")", nil
		default:
			return "", nodeError(n, "unsupported operator %s", op)
		}

	case "not_operator":
		arg, err := b.expr(n.ChildByFieldName("argument"))
		return "(!" + arg + ")", err

	case "binary_operator", "boolean_operator":
		l, err := b.expr(n.ChildByFieldName("left"))
		if err != nil {
			return "", err
		}
		r, err := b.expr(n.ChildByFieldName("right"))
		if err != nil {
			return "", err
		}
		s, err := combine(p.text(n.ChildByFieldName("operator")), l, r)
		if err != nil {
			return "", nodeError(n, "%v", err)
		}
		return s, nil

	case "comparison_operator":
		return b.comparison(n)

	case "conditional_expression":
		if n.NamedChildCount() != 3 {
			return "", nodeError(n, "unsupported conditional %s", p.text(n))
		}
		body, err := b.expr(n.NamedChild(0))
		if err != nil {
			return "", err
		}
		cond, err := b.expr(n.NamedChild(1))
		if err != nil {
			return "", err
		}
		alt, err := b.expr(n.NamedChild(2))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("where(%s, %s, %s)", cond, body, alt), nil

	case "call":
		return b.call(n)

	case "lambda":
		return "", nodeError(n, "lambda functions are not supported")
	}
	return "", nodeError(n, "unsupported expression %s", p.text(n))
}

// combine joins two translated operands with a Python operator.
func combine(op, l, r string) (string, error) {
	switch op {
	case "+", "-", "*", "/", "**":
		return "(" + l + " " + op + " " + r + ")", nil
	case "%":
		return "pymod(" + l + ", " + r + ")", nil
	case "//":
		return "floordiv(" + l + ", " + r + ")", nil
	case "&", "and":
		return "(" + l + " && " + r + ")", nil
	case "|", "or":
		return "(" + l + " || " + r + ")", nil
	}
	return "", fmt.Errorf("unsupported operator %s", op)
}

func (b *builder) comparison(n *sitter.Node) (string, error) {
	// "not in" and "is not" may arrive as one token or two
	var operands []*sitter.Node
	var ops, pending []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() {
			pending = append(pending, strings.Fields(c.Content(b.p.src))...)
			continue
		}
		if c.Type() == "comment" {
			continue
		}
		if len(operands) > 0 {
			ops = append(ops, strings.Join(pending, " "))
		}
		pending = nil
		operands = append(operands, c)
	}
	if len(operands) != len(ops)+1 {
		return "", nodeError(n, "malformed comparison %s", b.p.text(n))
	}

	parts := make([]string, 0, len(ops))
	for i, op := range ops {
		l, err := b.expr(operands[i])
		if err != nil {
			return "", err
		}
		right := operands[i+1]
		var part string
		switch op {
		case "<", ">", "<=", ">=", "==", "!=", "<>":
			r, err := b.expr(right)
			if err != nil {
				return "", err
			}
			if op == "<>" {
				op = "!="
			}
			part = "(" + l + " " + op + " " + r + ")"
		case "in", "not in":
			items, err := b.members(right)
			if err != nil {
				return "", err
			}
			part = "isin(" + strings.Join(append([]string{l}, items...), ", ") + ")"
			if op == "not in" {
				part = "(!" + part + ")"
			}
		case "is", "is not":
			if right.Type() != "none" {
				return "", nodeError(right, "'%s' is only supported with None", op)
			}
			part = "isna(" + l + ")"
			if op == "is not" {
				part = "notna(" + l + ")"
			}
		default:
			return "", nodeError(n, "unsupported comparison %s", op)
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " && ") + ")", nil
}

// members binds the items of a literal list, tuple or set.
func (b *builder) members(n *sitter.Node) ([]string, error) {
	v, err := b.p.literal(n)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, nodeError(n, "expected a list of values, got %s", b.p.text(n))
	}
	items := make([]string, len(list))
	for i, item := range list {
		if _, nested := item.([]any); nested {
			return nil, nodeError(n, "nested lists are not supported")
		}
		items[i] = b.constant(item)
	}
	return items, nil
}

func (b *builder) arg(a arguments, i int, name string, def frame.Value) (string, error) {
	n := a.get(i, name)
	if n == nil {
		return b.constant(def), nil
	}
	return b.expr(n)
}

func (b *builder) call(n *sitter.Node) (string, error) {
	p := b.p
	fn := n.ChildByFieldName("function")
	a, err := p.arguments(n)
	if err != nil {
		return "", err
	}

	if fn.Type() == "identifier" {
		return b.builtin(n, p.text(fn), a)
	}
	if fn.Type() != "attribute" {
		return "", nodeError(n, "unsupported call %s", p.text(n))
	}
	obj := fn.ChildByFieldName("object")
	method := p.text(fn.ChildByFieldName("attribute"))
	if obj.Type() == "identifier" && modules[p.text(obj)] {
		return b.moduleCall(n, method, a)
	}
	if obj.Type() == "attribute" && p.text(obj.ChildByFieldName("attribute")) == "str" {
		return b.stringCall(n, obj.ChildByFieldName("object"), method, a)
	}
	return b.seriesCall(n, obj, method, a)
}

var modules = map[string]bool{"np": true, "numpy": true, "pd": true, "pandas": true, "math": true}

func (b *builder) builtin(n *sitter.Node, name string, a arguments) (string, error) {
	unary := map[string]string{"abs": "abs", "len": "strlen", "str": "tostr", "int": "toint", "float": "tofloat", "bool": "tobool"}
	if fn, ok := unary[name]; ok {
		if len(a.pos) != 1 {
			return "", nodeError(n, "%s() takes exactly one argument", name)
		}
		x, err := b.expr(a.pos[0])
		return fn + "(" + x + ")", err
	}
	switch name {
	case "round":
		x, err := b.arg(a, 0, "number", nil)
		if err != nil {
			return "", err
		}
		d, err := b.arg(a, 1, "ndigits", 0.0)
		return "round(" + x + ", " + d + ")", err
	case "min", "max":
		if len(a.pos) != 2 {
			return "", nodeError(n, "%s() is supported with exactly two values; use .%s() for a column", name, name)
		}
		x, err := b.expr(a.pos[0])
		if err != nil {
			return "", err
		}
		y, err := b.expr(a.pos[1])
		return name + "v(" + x + ", " + y + ")", err
	}
	return "", nodeError(n, "unsupported function %s", name)
}

func (b *builder) moduleCall(n *sitter.Node, fn string, a arguments) (string, error) {
	switch fn {
	case "where":
		if len(a.pos) != 3 {
			return "", nodeError(n, "where() takes a condition and two values")
		}
		parts := make([]string, 3)
		for i, arg := range a.pos {
			s, err := b.expr(arg)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "where(" + strings.Join(parts, ", ") + ")", nil
	case "abs", "sqrt", "exp", "log", "floor", "ceil", "isna", "notna":
		x, err := b.arg(a, 0, "x", nil)
		return fn + "(" + x + ")", err
	case "isnan", "isnull":
		x, err := b.arg(a, 0, "x", nil)
		return "isna(" + x + ")", err
	case "notnull":
		x, err := b.arg(a, 0, "x", nil)
		return "notna(" + x + ")", err
	case "round", "around":
		x, err := b.arg(a, 0, "a", nil)
		if err != nil {
			return "", err
		}
		d, err := b.arg(a, 1, "decimals", 0.0)
		return "round(" + x + ", " + d + ")", err
	case "to_numeric":
		x, err := b.arg(a, 0, "arg", nil)
		if err != nil {
			return "", err
		}
		mode, err := b.p.optionalString(a.get(-1, "errors"), "raise")
		if err != nil {
			return "", err
		}
		if mode == "coerce" {
			return "tonumber_coerce(" + x + ")", nil
		}
		return "tonumber(" + x + ")", nil
	}
	return "", nodeError(n, "unsupported function %s", b.p.text(n.ChildByFieldName("function")))
}

func (b *builder) seriesCall(n, obj *sitter.Node, method string, a arguments) (string, error) {
	if aggregates[method] {
		if len(a.pos) > 0 {
			return "", nodeError(n, "%s() takes no positional arguments", method)
		}
		arg, err := b.p.compile(obj, b.env)
		if err != nil {
			return "", err
		}
		p := b.next("agg")
		b.e.aggs = append(b.e.aggs, aggregate{param: p, fn: method, arg: arg})
		return p, nil
	}

	switch method {
	case "ffill", "pad", "bfill", "backfill":
		return b.fill(obj, method == "bfill" || method == "backfill")
	case "fillna":
		if a.get(0, "value") == nil && a.get(-1, "method") != nil {
			m, err := b.p.optionalString(a.get(-1, "method"), "")
			if err != nil {
				return "", err
			}
			switch m {
			case "ffill", "pad":
				return b.fill(obj, false)
			case "bfill", "backfill":
				return b.fill(obj, true)
			}
			return "", nodeError(n, "unsupported fill method %q", m)
		}
	}

	x, err := b.expr(obj)
	if err != nil {
		return "", err
	}
	switch method {
	case "fillna":
		v := a.get(0, "value")
		if v == nil {
			return "", nodeError(n, "fillna() needs a value or a method")
		}
		s, err := b.expr(v)
		return "fillna(" + x + ", " + s + ")", err
	case "isna", "isnull":
		return "isna(" + x + ")", nil
	case "notna", "notnull":
		return "notna(" + x + ")", nil
	case "abs":
		return "abs(" + x + ")", nil
	case "copy":
		return x, nil
	case "round":
		d, err := b.arg(a, 0, "decimals", 0.0)
		return "round(" + x + ", " + d + ")", err
	case "astype":
		t := a.get(0, "dtype")
		if t == nil {
			return "", nodeError(n, "astype() needs a type")
		}
		fn, err := b.p.cast(t)
		return fn + "(" + x + ")", err
	case "isin":
		v := a.get(0, "values")
		if v == nil {
			return "", nodeError(n, "isin() needs a list of values")
		}
		items, err := b.members(v)
		return "isin(" + strings.Join(append([]string{x}, items...), ", ") + ")", err
	case "clip":
		lo, err := b.arg(a, 0, "lower", nil)
		if err != nil {
			return "", err
		}
		hi, err := b.arg(a, 1, "upper", nil)
		return "clip(" + x + ", " + lo + ", " + hi + ")", err
	case "between":
		lo, err := b.arg(a, 0, "left", nil)
		if err != nil {
			return "", err
		}
		hi, err := b.arg(a, 1, "right", nil)
		return "between(" + x + ", " + lo + ", " + hi + ")", err
	case "replace":
		if old := a.get(0, "to_replace"); old != nil && old.Type() == "dictionary" {
			return "", nodeError(n, "replace() with a mapping is not supported")
		}
		old, err := b.arg(a, 0, "to_replace", nil)
		if err != nil {
			return "", err
		}
		repl, err := b.arg(a, 1, "value", nil)
		return "replace(" + x + ", " + old + ", " + repl + ")", err
	case "map", "apply", "transform", "agg", "pipe":
		return "", nodeError(n, "%s() with a function is not supported", method)
	}
	return "", nodeError(n, "unsupported column method %s", method)
}

// fill binds a whole-column forward or backward fill of obj.
func (b *builder) fill(obj *sitter.Node, backward bool) (string, error) {
	arg, err := b.p.compile(obj, b.env)
	if err != nil {
		return "", err
	}
	p := b.next("fill")
	b.e.fills = append(b.e.fills, fill{param: p, backward: backward, arg: arg})
	return p, nil
}

func (b *builder) stringCall(n, obj *sitter.Node, method string, a arguments) (string, error) {
	x, err := b.expr(obj)
	if err != nil {
		return "", err
	}
	switch method {
	case "upper", "lower", "title", "capitalize", "strip", "lstrip", "rstrip":
		if len(a.pos) > 0 || len(a.kw) > 0 {
			return "", nodeError(n, "str.%s() arguments are not supported", method)
		}
		return method + "(" + x + ")", nil
	case "len":
		return "strlen(" + x + ")", nil
	case "startswith", "endswith":
		pat, err := b.arg(a, 0, "pat", nil)
		return method + "(" + x + ", " + pat + ")", err
	case "contains":
		patNode := a.get(0, "pat")
		if patNode == nil {
			return "", nodeError(n, "str.contains() needs a pattern")
		}
		pat, err := b.p.optionalString(patNode, "")
		if err != nil {
			return "", err
		}
		useRegex, err := b.p.optionalBool(a.get(-1, "regex"), true)
		if err != nil {
			return "", err
		}
		caseSensitive, err := b.p.optionalBool(a.get(-1, "case"), true)
		if err != nil {
			return "", err
		}
		if !caseSensitive {
			if !useRegex {
				pat = regexp.QuoteMeta(pat)
			}
			pat, useRegex = "(?i)"+pat, true
		}
		if useRegex {
			if _, err := regexp.Compile(pat); err != nil {
				return "", nodeError(patNode, "invalid pattern: %v", err)
			}
		}
		return "contains(" + x + ", " + b.constant(pat) + ", " + b.constant(useRegex) + ")", nil
	case "replace":
		if re, err := b.p.optionalBool(a.get(-1, "regex"), false); err != nil || re {
			return "", nodeError(n, "str.replace() with a regular expression is not supported")
		}
		old, err := b.arg(a, 0, "pat", nil)
		if err != nil {
			return "", err
		}
		repl, err := b.arg(a, 1, "repl", nil)
		return "strreplace(" + x + ", " + old + ", " + repl + ")", err
	}
	return "", nodeError(n, "unsupported string method %s", method)
}

// columnExpr builds fn(column) without a syntax tree.
func (p *parser) columnExpr(n *sitter.Node, fn, column string) (*Expr, error) {
	b := p.newBuilder(fmt.Sprintf("%s(%s[%q])", fn, Binding, column), nil)
	return b.finish(n, fn+"("+b.column(column)+")")
}
