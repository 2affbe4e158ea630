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
	"strconv"
	"strings"

	"github.com/cloudwego/tabcoder/lang/frame"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// tableAttrs are attributes of the binding that never name a column.
var tableAttrs = map[string]bool{
	"loc": true, "iloc": true, "at": true, "iat": true, "columns": true, "index": true,
	"shape": true, "size": true, "values": true, "T": true, "dtypes": true, "empty": true,
	"str": true,
}

var importable = map[string]bool{"pandas": true, "numpy": true, "math": true}

type parser struct {
	src  []byte
	env  map[string]local
	prog *Program
}

// Parse reduces generated code to a Program. The only pre-bound name is the
// dataset binding; other names must be assigned by the code before use.
func Parse(ctx context.Context, code string) (*Program, error) {
	sp := sitter.NewParser()
	sp.SetLanguage(python.GetLanguage())
	src := []byte(code)
	tree, err := sp.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ExecutionError{Message: "cannot parse code", Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		bad := firstError(root)
		return nil, nodeError(bad, "invalid syntax near %q", firstLine(bad.Content(src)))
	}

	p := &parser{src: src, env: map[string]local{}, prog: &Program{Source: code}}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if err := p.statement(root.NamedChild(i)); err != nil {
			return nil, err
		}
	}
	return p.prog, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			return firstError(c)
		}
	}
	return n
}

func (p *parser) text(n *sitter.Node) string { return n.Content(p.src) }

func (p *parser) note(n *sitter.Node, format string, args ...any) {
	p.prog.Notes = append(p.prog.Notes, fmt.Sprintf("line %d: ", line(n))+fmt.Sprintf(format, args...))
}

func (p *parser) add(ops ...Op) { p.prog.Ops = append(p.prog.Ops, ops...) }

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *parser) isBinding(n *sitter.Node) bool {
	return n != nil && n.Type() == "identifier" && p.text(n) == Binding
}

// subscripts returns the index expressions of a subscript node.
func subscripts(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 1; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

func (p *parser) isFullSlice(n *sitter.Node) bool {
	return n.Type() == "slice" && strings.TrimSpace(p.text(n)) == ":"
}

func (p *parser) statement(n *sitter.Node) error {
	switch n.Type() {
	case "comment", "pass_statement":
		return nil
	case "import_statement", "import_from_statement":
		return p.importStatement(n)
	case "expression_statement":
		if n.NamedChildCount() != 1 {
			return nodeError(n, "unsupported statement %q", firstLine(p.text(n)))
		}
		return p.expressionStatement(n.NamedChild(0))
	case "delete_statement":
		return p.deleteStatement(n)
	}
	return nodeError(n, "unsupported statement %q", firstLine(p.text(n)))
}

func (p *parser) importStatement(n *sitter.Node) error {
	var mods []*sitter.Node
	if n.Type() == "import_from_statement" {
		mods = append(mods, n.ChildByFieldName("module_name"))
	} else {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "aliased_import" {
				c = c.ChildByFieldName("name")
			}
			mods = append(mods, c)
		}
	}
	for _, m := range mods {
		if m == nil {
			continue
		}
		root, _, _ := strings.Cut(p.text(m), ".")
		if !importable[root] {
			return nodeError(m, "import of %s is not allowed", p.text(m))
		}
	}
	return nil
}

func (p *parser) expressionStatement(e *sitter.Node) error {
	switch e.Type() {
	case "assignment":
		return p.assignment(e)
	case "augmented_assignment":
		return p.augmented(e)
	case "call":
		return p.callStatement(e)
	case "string", "concatenated_string":
		return nil
	case "identifier":
		if p.isBinding(e) {
			p.note(e, "bare %s has no effect", Binding)
			return nil
		}
	}
	return nodeError(e, "unsupported statement %q", firstLine(p.text(e)))
}

func (p *parser) assignment(e *sitter.Node) error {
	left, right := e.ChildByFieldName("left"), e.ChildByFieldName("right")
	if right == nil {
		return nodeError(e, "annotations are not supported")
	}
	if right.Type() == "assignment" {
		return nodeError(e, "chained assignment is not supported")
	}

	switch left.Type() {
	case "identifier":
		name := p.text(left)
		if name == Binding {
			ops, err := p.table(right)
			if err != nil {
				return err
			}
			p.add(ops...)
			return nil
		}
		if modules[name] {
			return nodeError(left, "cannot rebind %s", name)
		}
		env := make(map[string]local, len(p.env)+1)
		for k, v := range p.env {
			env[k] = v
		}
		env[name] = local{node: right, env: p.env, ops: len(p.prog.Ops)}
		p.env = env
		return nil
	case "subscript":
		return p.assignSubscript(e, left, right)
	case "attribute":
		if _, ok := p.columnRef(left); ok {
			return nodeError(left, "assign columns with %s['name'] = ...", Binding)
		}
	}
	return nodeError(left, "unsupported assignment target %s", p.text(left))
}

func (p *parser) assignSubscript(e, left, right *sitter.Node) error {
	value := left.ChildByFieldName("value")
	subs := subscripts(left)

	if p.isBinding(value) && len(subs) == 1 {
		name, ok := p.stringValue(subs[0])
		if !ok {
			return nodeError(subs[0], "column name must be a string literal")
		}
		expr, err := p.compile(right, p.env)
		if err != nil {
			return err
		}
		p.add(&AssignColumn{pos: pos(line(e)), Target: name, Expr: expr})
		return nil
	}

	if value.Type() == "attribute" && p.isBinding(value.ChildByFieldName("object")) &&
		p.text(value.ChildByFieldName("attribute")) == "loc" && len(subs) == 2 {
		name, ok := p.stringValue(subs[1])
		if !ok {
			return nodeError(subs[1], "column name must be a string literal")
		}
		expr, err := p.compile(right, p.env)
		if err != nil {
			return err
		}
		if p.isFullSlice(subs[0]) {
			p.add(&AssignColumn{pos: pos(line(e)), Target: name, Expr: expr})
			return nil
		}
		mask, err := p.compile(subs[0], p.env)
		if err != nil {
			return err
		}
		p.add(&AssignWhere{pos: pos(line(e)), Target: name, Mask: mask, Value: expr})
		return nil
	}
	return nodeError(left, "unsupported assignment target %s", p.text(left))
}

func (p *parser) augmented(e *sitter.Node) error {
	left, right := e.ChildByFieldName("left"), e.ChildByFieldName("right")
	name, ok := p.columnRef(left)
	if !ok || left.Type() != "subscript" {
		return nodeError(left, "unsupported assignment target %s", p.text(left))
	}
	op := strings.TrimSuffix(p.text(e.ChildByFieldName("operator")), "=")

	b := p.newBuilder(p.text(e), p.env)
	col := b.column(name)
	r, err := b.expr(right)
	if err != nil {
		return err
	}
	text, err := combine(op, col, "("+r+")")
	if err != nil {
		return nodeError(e, "%v", err)
	}
	expr, err := b.finish(e, text)
	if err != nil {
		return err
	}
	p.add(&AssignColumn{pos: pos(line(e)), Target: name, Expr: expr})
	return nil
}

func (p *parser) callStatement(e *sitter.Node) error {
	fn := e.ChildByFieldName("function")
	if fn.Type() == "identifier" {
		switch p.text(fn) {
		case "print", "display":
			p.note(e, "%s() ignored", p.text(fn))
			return nil
		}
		return nodeError(e, "unsupported call %s", firstLine(p.text(e)))
	}
	if fn.Type() != "attribute" {
		return nodeError(e, "unsupported call %s", firstLine(p.text(e)))
	}

	obj := fn.ChildByFieldName("object")
	method := p.text(fn.ChildByFieldName("attribute"))
	a, err := p.arguments(e)
	if err != nil {
		return err
	}
	inplace, err := p.optionalBool(a.kw["inplace"], false)
	if err != nil {
		return err
	}

	if p.isBinding(obj) {
		ops, err := p.tableMethod(e, method, a)
		if err != nil {
			return err
		}
		if !inplace {
			p.note(e, "%s.%s() without inplace=True has no effect", Binding, method)
			return nil
		}
		p.add(ops...)
		return nil
	}
	if col, ok := p.columnRef(obj); ok {
		if !inplace {
			p.note(e, "result of %s is discarded", firstLine(p.text(e)))
			return nil
		}
		expr, err := p.compile(e, p.env)
		if err != nil {
			return err
		}
		p.add(&AssignColumn{pos: pos(line(e)), Target: col, Expr: expr})
		return nil
	}
	return nodeError(e, "unsupported call %s", firstLine(p.text(e)))
}

func (p *parser) deleteStatement(n *sitter.Node) error {
	var targets []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "expression_list" {
			for j := 0; j < int(c.NamedChildCount()); j++ {
				targets = append(targets, c.NamedChild(j))
			}
			continue
		}
		targets = append(targets, c)
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		name, ok := p.columnRef(t)
		if !ok || t.Type() != "subscript" {
			return nodeError(t, "only columns of %s can be deleted", Binding)
		}
		names = append(names, name)
	}
	p.add(&DropColumns{pos: pos(line(n)), Columns: names})
	return nil
}

// table interprets an expression that must evaluate to a table.
func (p *parser) table(n *sitter.Node) ([]Op, error) {
	switch n.Type() {
	case "identifier":
		if p.isBinding(n) {
			return nil, nil
		}
		if l, ok := p.env[p.text(n)]; ok {
			if l.ops != len(p.prog.Ops) {
				return nil, nodeError(n, "%s was derived from an earlier version of %s", p.text(n), Binding)
			}
			saved := p.env
			p.env = l.env
			ops, err := p.table(l.node)
			p.env = saved
			return ops, err
		}
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return p.table(n.NamedChild(0))
		}
	case "subscript":
		return p.tableSubscript(n)
	case "call":
		fn := n.ChildByFieldName("function")
		if fn.Type() != "attribute" {
			break
		}
		ops, err := p.table(fn.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		a, err := p.arguments(n)
		if err != nil {
			return nil, err
		}
		more, err := p.tableMethod(n, p.text(fn.ChildByFieldName("attribute")), a)
		if err != nil {
			return nil, err
		}
		return append(ops, more...), nil
	}
	return nil, nodeError(n, "%s must remain a table, %s is not one", Binding, firstLine(p.text(n)))
}

func (p *parser) tableSubscript(n *sitter.Node) ([]Op, error) {
	value := n.ChildByFieldName("value")
	subs := subscripts(n)
	at := pos(line(n))

	if value.Type() == "attribute" {
		switch p.text(value.ChildByFieldName("attribute")) {
		case "loc":
			ops, err := p.table(value.ChildByFieldName("object"))
			if err != nil {
				return nil, err
			}
			if len(subs) == 0 || len(subs) > 2 {
				return nil, nodeError(n, "unsupported selection %s", p.text(n))
			}
			if !p.isFullSlice(subs[0]) {
				pred, err := p.compile(subs[0], p.env)
				if err != nil {
					return nil, err
				}
				ops = append(ops, &FilterRows{pos: at, Predicate: pred})
			}
			if len(subs) == 2 && !p.isFullSlice(subs[1]) {
				names, err := p.columnList(subs[1])
				if err != nil {
					return nil, err
				}
				ops = append(ops, &SelectColumns{pos: at, Columns: names})
			}
			return ops, nil
		case "iloc":
			return nil, nodeError(n, "positional selection with iloc is not supported")
		}
	}

	ops, err := p.table(value)
	if err != nil {
		return nil, err
	}
	if len(subs) != 1 {
		return nil, nodeError(n, "unsupported selection %s", p.text(n))
	}
	sub := subs[0]
	switch sub.Type() {
	case "string", "concatenated_string":
		return nil, nodeError(n, "%s would become a single column; select with %s[[...]]", Binding, Binding)
	case "list":
		names, err := p.columnList(sub)
		if err != nil {
			return nil, err
		}
		return append(ops, &SelectColumns{pos: at, Columns: names}), nil
	case "slice":
		return nil, nodeError(n, "row slices are not supported; use head() or tail()")
	}
	pred, err := p.compile(sub, p.env)
	if err != nil {
		return nil, err
	}
	return append(ops, &FilterRows{pos: at, Predicate: pred}), nil
}

// columnList reads a list of column names; a single name is rejected
// because it would select a column rather than a table.
func (p *parser) columnList(n *sitter.Node) ([]string, error) {
	if n.Type() != "list" {
		return nil, nodeError(n, "expected a list of column names, got %s", p.text(n))
	}
	return p.names(n)
}

func (p *parser) tableMethod(call *sitter.Node, method string, a arguments) ([]Op, error) {
	at := pos(line(call))
	switch method {
	case "copy", "infer_objects":
		return nil, nil
	case "reset_index":
		p.note(call, "row labels are positional, reset_index() has no effect")
		return nil, nil

	case "drop":
		if a.kw["index"] != nil {
			return nil, nodeError(call, "dropping rows by label is not supported")
		}
		target := a.kw["columns"]
		if target == nil {
			axis, err := p.axis(a.get(1, "axis"))
			if err != nil {
				return nil, err
			}
			if axis != 1 {
				return nil, nodeError(call, "dropping rows by label is not supported; pass axis=1 or columns=")
			}
			target = a.get(0, "labels")
		}
		if target == nil {
			return nil, nodeError(call, "drop() needs columns")
		}
		names, err := p.names(target)
		if err != nil {
			return nil, err
		}
		mode, err := p.optionalString(a.kw["errors"], "raise")
		if err != nil {
			return nil, err
		}
		return []Op{&DropColumns{pos: at, Columns: names, IgnoreMissing: mode == "ignore"}}, nil

	case "rename":
		if a.kw["index"] != nil {
			return nil, nodeError(call, "renaming rows is not supported")
		}
		m := a.kw["columns"]
		if m == nil {
			axis, err := p.axis(a.kw["axis"])
			if err != nil {
				return nil, err
			}
			if axis != 1 {
				return nil, nodeError(call, "rename() needs columns=")
			}
			m = a.get(0, "mapper")
		}
		if m == nil || m.Type() != "dictionary" {
			return nil, nodeError(call, "rename() needs a mapping of column names")
		}
		entries, err := p.dictionary(m)
		if err != nil {
			return nil, err
		}
		renames := make([]Rename, 0, len(entries))
		for _, e := range entries {
			from, ok1 := e.key.(string)
			to, ok2 := e.value.(string)
			if !ok1 || !ok2 {
				return nil, nodeError(m, "rename() mapping must be from names to names")
			}
			renames = append(renames, Rename{From: from, To: to})
		}
		return []Op{&RenameColumns{pos: at, Renames: renames}}, nil

	case "dropna":
		if axis, err := p.axis(a.get(0, "axis")); err != nil || axis != 0 {
			return nil, nodeError(call, "dropna() is supported on rows only")
		}
		if a.kw["thresh"] != nil {
			return nil, nodeError(call, "dropna(thresh=...) is not supported")
		}
		how, err := p.optionalString(a.get(1, "how"), "any")
		if err != nil {
			return nil, err
		}
		if how != "any" && how != "all" {
			return nil, nodeError(call, "dropna(how=%q) is not supported", how)
		}
		var subset []string
		if s := a.kw["subset"]; s != nil {
			if subset, err = p.names(s); err != nil {
				return nil, err
			}
		}
		return []Op{&DropMissing{pos: at, Subset: subset, All: how == "all"}}, nil

	case "fillna":
		if m := a.kw["method"]; m != nil {
			name, err := p.optionalString(m, "")
			if err != nil {
				return nil, err
			}
			switch name {
			case "ffill", "pad":
				return []Op{&FillMissing{pos: at, Method: "ffill"}}, nil
			case "bfill", "backfill":
				return []Op{&FillMissing{pos: at, Method: "bfill"}}, nil
			}
			return nil, nodeError(m, "fillna(method=%q) is not supported", name)
		}
		v := a.get(0, "value")
		if v == nil {
			return nil, nodeError(call, "fillna() needs a value")
		}
		if v.Type() == "dictionary" {
			entries, err := p.dictionary(v)
			if err != nil {
				return nil, err
			}
			fills := make([]ColumnValue, 0, len(entries))
			for _, e := range entries {
				name, ok := e.key.(string)
				if _, list := e.value.([]any); !ok || list {
					return nil, nodeError(v, "fillna() mapping must be from names to values")
				}
				fills = append(fills, ColumnValue{Column: name, Value: e.value})
			}
			return []Op{&FillMissing{pos: at, PerColumn: fills}}, nil
		}
		val, err := p.scalar(v)
		if err != nil {
			return nil, nodeError(v, "fillna() value must be a literal")
		}
		return []Op{&FillMissing{pos: at, Value: val}}, nil

	case "ffill", "bfill":
		return []Op{&FillMissing{pos: at, Method: method}}, nil

	case "sort_values":
		by := a.get(0, "by")
		if by == nil {
			return nil, nodeError(call, "sort_values() needs by=")
		}
		names, err := p.names(by)
		if err != nil {
			return nil, err
		}
		asc := make([]bool, len(names))
		for i := range asc {
			asc[i] = true
		}
		if n := a.kw["ascending"]; n != nil {
			v, err := p.literal(n)
			if err != nil {
				return nil, err
			}
			switch x := v.(type) {
			case bool:
				for i := range asc {
					asc[i] = x
				}
			case []any:
				if len(x) != len(names) {
					return nil, nodeError(n, "ascending must match the %d sort columns", len(names))
				}
				for i, item := range x {
					b, ok := item.(bool)
					if !ok {
						return nil, nodeError(n, "ascending must hold booleans")
					}
					asc[i] = b
				}
			default:
				return nil, nodeError(n, "ascending must be a boolean")
			}
		}
		return []Op{&SortRows{pos: at, By: names, Ascending: asc}}, nil

	case "head", "tail":
		n, err := p.optionalInt(a.get(0, "n"), 5)
		if err != nil {
			return nil, err
		}
		return []Op{&SliceRows{pos: at, N: n, FromEnd: method == "tail"}}, nil

	case "drop_duplicates":
		var subset []string
		if s := a.get(0, "subset"); s != nil {
			var err error
			if subset, err = p.names(s); err != nil {
				return nil, err
			}
		}
		keep, err := p.scalar(a.kw["keep"])
		if err != nil {
			return nil, err
		}
		switch keep {
		case nil, "first":
			return []Op{&DropDuplicates{pos: at, Subset: subset}}, nil
		case "last":
			return []Op{&DropDuplicates{pos: at, Subset: subset, KeepLast: true}}, nil
		}
		return nil, nodeError(a.kw["keep"], "drop_duplicates(keep=%v) is not supported", keep)

	case "assign":
		ops := make([]Op, 0, len(a.names))
		for _, name := range a.names {
			expr, err := p.compile(a.kw[name], p.env)
			if err != nil {
				return nil, err
			}
			ops = append(ops, &AssignColumn{pos: at, Target: name, Expr: expr})
		}
		return ops, nil

	case "astype":
		m := a.get(0, "dtype")
		if m == nil || m.Type() != "dictionary" {
			return nil, nodeError(call, "astype() on a table needs a mapping of column names to types")
		}
		var ops []Op
		for i := 0; i < int(m.NamedChildCount()); i++ {
			pair := m.NamedChild(i)
			if pair.Type() != "pair" {
				continue
			}
			name, ok := p.stringValue(pair.ChildByFieldName("key"))
			if !ok {
				return nil, nodeError(pair, "column name must be a string literal")
			}
			fn, err := p.cast(pair.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			expr, err := p.columnExpr(pair, fn, name)
			if err != nil {
				return nil, err
			}
			ops = append(ops, &AssignColumn{pos: at, Target: name, Expr: expr})
		}
		return ops, nil
	}
	return nil, nodeError(call, "%s.%s() is not supported", Binding, method)
}

type arguments struct {
	pos   []*sitter.Node
	kw    map[string]*sitter.Node
	names []string
}

// get returns keyword name if given, else positional argument i (when i >= 0).
func (a arguments) get(i int, name string) *sitter.Node {
	if n, ok := a.kw[name]; ok {
		return n
	}
	if i >= 0 && i < len(a.pos) {
		return a.pos[i]
	}
	return nil
}

func (p *parser) arguments(call *sitter.Node) (arguments, error) {
	a := arguments{kw: map[string]*sitter.Node{}}
	list := call.ChildByFieldName("arguments")
	if list == nil {
		return a, nil
	}
	if list.Type() != "argument_list" {
		return a, nodeError(list, "generator arguments are not supported")
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		switch c.Type() {
		case "comment":
		case "keyword_argument":
			name := p.text(c.ChildByFieldName("name"))
			if name == "inplace" {
				a.kw[name] = c.ChildByFieldName("value")
				continue
			}
			if _, dup := a.kw[name]; dup {
				return a, nodeError(c, "keyword argument %s repeated", name)
			}
			a.kw[name] = c.ChildByFieldName("value")
			a.names = append(a.names, name)
		case "list_splat", "dictionary_splat":
			return a, nodeError(c, "argument unpacking is not supported")
		default:
			a.pos = append(a.pos, c)
		}
	}
	return a, nil
}

// columnRef recognizes df['name'] and df.name.
func (p *parser) columnRef(n *sitter.Node) (string, bool) {
	switch n.Type() {
	case "subscript":
		subs := subscripts(n)
		if !p.isBinding(n.ChildByFieldName("value")) || len(subs) != 1 {
			return "", false
		}
		return p.stringValue(subs[0])
	case "attribute":
		if !p.isBinding(n.ChildByFieldName("object")) {
			return "", false
		}
		name := p.text(n.ChildByFieldName("attribute"))
		return name, !tableAttrs[name] && !strings.HasPrefix(name, "_")
	}
	return "", false
}

func (p *parser) moduleConstant(n *sitter.Node) (frame.Value, bool) {
	if n.Type() != "attribute" {
		return nil, false
	}
	obj := n.ChildByFieldName("object")
	if obj.Type() != "identifier" || !modules[p.text(obj)] {
		return nil, false
	}
	switch p.text(n.ChildByFieldName("attribute")) {
	case "nan", "NaN", "NAN", "NA", "NaT":
		return nil, true
	case "inf", "Inf", "infty":
		return math.Inf(1), true
	case "pi":
		return math.Pi, true
	case "e":
		return math.E, true
	}
	return nil, false
}

func (p *parser) stringValue(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "concatenated_string":
		v, err := p.scalar(n)
		s, ok := v.(string)
		return s, err == nil && ok
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return p.stringValue(n.NamedChild(0))
		}
	}
	return "", false
}

// names reads one column name or a list of them.
func (p *parser) names(n *sitter.Node) ([]string, error) {
	if s, ok := p.stringValue(n); ok {
		return []string{s}, nil
	}
	v, err := p.literal(n)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, nodeError(n, "expected column names, got %s", p.text(n))
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, nodeError(n, "column names must be strings")
		}
		out[i] = s
	}
	return out, nil
}

func (p *parser) axis(n *sitter.Node) (int, error) {
	if n == nil {
		return 0, nil
	}
	v, err := p.scalar(n)
	if err != nil {
		return 0, err
	}
	switch v {
	case 0.0, "index", "rows":
		return 0, nil
	case 1.0, "columns":
		return 1, nil
	}
	return 0, nodeError(n, "invalid axis %s", p.text(n))
}

func (p *parser) cast(n *sitter.Node) (string, error) {
	name := p.text(n)
	if s, ok := p.stringValue(n); ok {
		name = s
	} else if n.Type() == "attribute" {
		name = p.text(n.ChildByFieldName("attribute"))
	}
	switch strings.ToLower(name) {
	case "int", "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		return "toint", nil
	case "float", "float16", "float32", "float64", "double":
		return "tofloat", nil
	case "str", "string", "object":
		return "tostr", nil
	case "bool", "boolean":
		return "tobool", nil
	}
	return "", nodeError(n, "unsupported type %s", p.text(n))
}

func (p *parser) optionalString(n *sitter.Node, def string) (string, error) {
	if n == nil {
		return def, nil
	}
	if s, ok := p.stringValue(n); ok {
		return s, nil
	}
	return "", nodeError(n, "expected a string, got %s", p.text(n))
}

func (p *parser) optionalBool(n *sitter.Node, def bool) (bool, error) {
	if n == nil {
		return def, nil
	}
	switch n.Type() {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, nodeError(n, "expected True or False, got %s", p.text(n))
}

func (p *parser) optionalInt(n *sitter.Node, def int) (int, error) {
	if n == nil {
		return def, nil
	}
	v, err := p.scalar(n)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, nodeError(n, "expected an integer, got %s", p.text(n))
	}
	return int(f), nil
}

type entry struct {
	key, value any
}

func (p *parser) dictionary(n *sitter.Node) ([]entry, error) {
	var out []entry
	for i := 0; i < int(n.NamedChildCount()); i++ {
		pair := n.NamedChild(i)
		switch pair.Type() {
		case "comment":
			continue
		case "pair":
		default:
			return nil, nodeError(pair, "unsupported mapping entry %s", p.text(pair))
		}
		k, err := p.literal(pair.ChildByFieldName("key"))
		if err != nil {
			return nil, err
		}
		v, err := p.literal(pair.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		out = append(out, entry{key: k, value: v})
	}
	return out, nil
}

// scalar evaluates a literal that must be a single value.
func (p *parser) scalar(n *sitter.Node) (frame.Value, error) {
	v, err := p.literal(n)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case []any, []entry:
		return nil, nodeError(n, "expected a single value, got %s", p.text(n))
	}
	return v, nil
}

// literal evaluates constant syntax: numbers, strings, booleans, None,
// missing-value constants and lists of those. A nil node yields nil.
func (p *parser) literal(n *sitter.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	t := p.text(n)
	switch n.Type() {
	case "integer":
		if i, err := strconv.ParseInt(t, 0, 64); err == nil {
			return float64(i), nil
		}
		return parseFloat(n, t)
	case "float":
		return parseFloat(n, t)
	case "string":
		if n.NamedChildCount() > 0 {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if n.NamedChild(i).Type() == "interpolation" {
					return nil, nodeError(n, "f-strings are not supported")
				}
			}
		}
		s, err := unquote(t)
		if err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return s, nil
	case "concatenated_string":
		var sb strings.Builder
		for i := 0; i < int(n.NamedChildCount()); i++ {
			v, err := p.literal(n.NamedChild(i))
			if err != nil {
				return nil, err
			}
			s, _ := v.(string)
			sb.WriteString(s)
		}
		return sb.String(), nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "none":
		return nil, nil
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return p.literal(n.NamedChild(0))
		}
	case "unary_operator":
		v, err := p.literal(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			break
		}
		switch p.text(n.ChildByFieldName("operator")) {
		case "-":
			return -f, nil
		case "+":
			return f, nil
		}
	case "list", "tuple", "set":
		out := make([]any, 0, n.NamedChildCount())
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "comment" {
				continue
			}
			v, err := p.literal(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case "dictionary":
		return p.dictionary(n)
	case "attribute":
		if v, ok := p.moduleConstant(n); ok {
			return v, nil
		}
	}
	return nil, nodeError(n, "expected a constant, got %s", firstLine(t))
}

func parseFloat(n *sitter.Node, t string) (float64, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(t, "_", ""), 64)
	if err != nil {
		return 0, nodeError(n, "invalid number %s", t)
	}
	return f, nil
}

// unquote decodes a string literal with optional prefix and triple quotes.
func unquote(lit string) (string, error) {
	i := strings.IndexAny(lit, `'"`)
	if i < 0 {
		return "", fmt.Errorf("malformed string %s", lit)
	}
	prefix := strings.ToLower(lit[:i])
	if strings.ContainsAny(prefix, "fb") {
		return "", fmt.Errorf("f-strings and byte strings are not supported")
	}
	body := lit[i:]
	q := body[:1]
	if len(body) >= 6 && strings.HasPrefix(body, q+q+q) && strings.HasSuffix(body, q+q+q) {
		q = q + q + q
	}
	if len(body) < 2*len(q) || !strings.HasSuffix(body, q) {
		return "", fmt.Errorf("unterminated string %s", lit)
	}
	inner := body[len(q) : len(body)-len(q)]
	if strings.Contains(prefix, "r") {
		return inner, nil
	}
	return unescape(inner), nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '\\', '\'', '"':
			sb.WriteByte(s[i])
		case '\n':
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
