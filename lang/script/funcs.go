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
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
	"github.com/cloudwego/tabcoder/lang/frame"
)

// functions are the row-level helpers available to compiled expressions.
// Every helper receives normalized values: nil, float64, bool or string.
var functions = map[string]govaluate.ExpressionFunction{
	"fillna": fixed("fillna", 2, func(a []any) (any, error) {
		if a[0] == nil {
			return a[1], nil
		}
		return a[0], nil
	}),
	"isna":  fixed("isna", 1, func(a []any) (any, error) { return a[0] == nil, nil }),
	"notna": fixed("notna", 1, func(a []any) (any, error) { return a[0] != nil, nil }),
	"where": fixed("where", 3, func(a []any) (any, error) {
		if a[0] == nil {
			return a[2], nil
		}
		b, ok := a[0].(bool)
		if !ok {
			return nil, fmt.Errorf("where: condition must be boolean, got %v", a[0])
		}
		if b {
			return a[1], nil
		}
		return a[2], nil
	}),

	"abs":   math1("abs", math.Abs),
	"sqrt":  math1("sqrt", math.Sqrt),
	"exp":   math1("exp", math.Exp),
	"log":   math1("log", math.Log),
	"floor": math1("floor", math.Floor),
	"ceil":  math1("ceil", math.Ceil),
	"round": fixed("round", 2, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		x, err := number("round", a[0])
		if err != nil {
			return nil, err
		}
		d, err := number("round", a[1])
		if err != nil {
			return nil, err
		}
		p := math.Pow(10, math.Trunc(d))
		return math.RoundToEven(x*p) / p, nil
	}),
	"floordiv": math2("floordiv", func(x, y float64) float64 { return math.Floor(x / y) }),
	"pymod": math2("pymod", func(x, y float64) float64 {
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m
	}),
	"minv": math2("min", math.Min),
	"maxv": math2("max", math.Max),
	"clip": fixed("clip", 3, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		x, err := number("clip", a[0])
		if err != nil {
			return nil, err
		}
		if a[1] != nil {
			lo, err := number("clip", a[1])
			if err != nil {
				return nil, err
			}
			x = math.Max(x, lo)
		}
		if a[2] != nil {
			hi, err := number("clip", a[2])
			if err != nil {
				return nil, err
			}
			x = math.Min(x, hi)
		}
		return x, nil
	}),
	"between": fixed("between", 3, func(a []any) (any, error) {
		if a[0] == nil {
			return false, nil
		}
		return frame.Compare(a[1], a[0]) <= 0 && frame.Compare(a[0], a[2]) <= 0, nil
	}),
	"isin": func(args ...any) (any, error) {
		a := cells(args)
		if len(a) == 0 {
			return nil, fmt.Errorf("isin: missing value")
		}
		for _, v := range a[1:] {
			if v == a[0] {
				return true, nil
			}
		}
		return false, nil
	},
	"replace": fixed("replace", 3, func(a []any) (any, error) {
		if a[0] == a[1] {
			return a[2], nil
		}
		return a[0], nil
	}),

	"toint": fixed("astype(int)", 1, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, fmt.Errorf("cannot convert a missing value to integer")
		}
		x, err := coerce(a[0])
		if err != nil {
			return nil, err
		}
		return math.Trunc(x), nil
	}),
	"tofloat": fixed("astype(float)", 1, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		return coerce(a[0])
	}),
	"tonumber": fixed("to_numeric", 1, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		return coerce(a[0])
	}),
	"tonumber_coerce": fixed("to_numeric", 1, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		if x, err := coerce(a[0]); err == nil {
			return x, nil
		}
		return nil, nil
	}),
	"tostr": fixed("astype(str)", 1, func(a []any) (any, error) {
		if a[0] == nil {
			return "nan", nil
		}
		return frame.FormatValue(a[0]), nil
	}),
	"tobool": fixed("astype(bool)", 1, func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return true, nil
		case bool:
			return v, nil
		case float64:
			return v != 0, nil
		case string:
			return v != "", nil
		}
		return nil, fmt.Errorf("astype(bool): unsupported value %v", a[0])
	}),

	"upper":      text1("upper", strings.ToUpper),
	"lower":      text1("lower", strings.ToLower),
	"strip":      text1("strip", strings.TrimSpace),
	"lstrip":     text1("lstrip", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
	"rstrip":     text1("rstrip", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
	"title":      text1("title", titleCase),
	"capitalize": text1("capitalize", capitalize),
	"strlen": fixed("len", 1, func(a []any) (any, error) {
		s, ok := a[0].(string)
		if !ok {
			return nil, nil
		}
		return float64(len([]rune(s))), nil
	}),
	"contains": fixed("contains", 3, func(a []any) (any, error) {
		s, ok := a[0].(string)
		if !ok {
			return nil, nil
		}
		pat, _ := a[1].(string)
		if re, _ := a[2].(bool); re {
			m, err := regexp.MatchString(pat, s)
			if err != nil {
				return nil, fmt.Errorf("contains: %w", err)
			}
			return m, nil
		}
		return strings.Contains(s, pat), nil
	}),
	"startswith": text2("startswith", strings.HasPrefix),
	"endswith":   text2("endswith", strings.HasSuffix),
	"strreplace": fixed("str.replace", 3, func(a []any) (any, error) {
		s, ok := a[0].(string)
		if !ok {
			return nil, nil
		}
		old, _ := a[1].(string)
		repl, _ := a[2].(string)
		return strings.ReplaceAll(s, old, repl), nil
	}),
}

// fixed checks the arity of a helper. Helpers see missing cells as nil and
// may return nil for a missing result.
func fixed(name string, n int, fn func([]any) (any, error)) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != n {
			return nil, fmt.Errorf("%s: want %d arguments, got %d", name, n, len(args))
		}
		v, err := fn(cells(args))
		if err != nil {
			return nil, err
		}
		return bind(v), nil
	}
}

func cells(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = cell(a)
	}
	return out
}

func math1(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return fixed(name, 1, func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		x, err := number(name, a[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	})
}

func math2(name string, fn func(float64, float64) float64) govaluate.ExpressionFunction {
	return fixed(name, 2, func(a []any) (any, error) {
		if a[0] == nil || a[1] == nil {
			return nil, nil
		}
		x, err := number(name, a[0])
		if err != nil {
			return nil, err
		}
		y, err := number(name, a[1])
		if err != nil {
			return nil, err
		}
		return fn(x, y), nil
	})
}

func text1(name string, fn func(string) string) govaluate.ExpressionFunction {
	return fixed(name, 1, func(a []any) (any, error) {
		s, ok := a[0].(string)
		if !ok {
			return nil, nil
		}
		return fn(s), nil
	})
}

func text2(name string, fn func(string, string) bool) govaluate.ExpressionFunction {
	return fixed(name, 2, func(a []any) (any, error) {
		s, ok := a[0].(string)
		if !ok {
			return nil, nil
		}
		arg, ok := a[1].(string)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a string", name)
		}
		return fn(s, arg), nil
	})
}

func number(name string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%s: %q is not a number", name, frame.FormatValue(v))
}

// coerce converts a value to a number the way an explicit cast would.
func coerce(v any) (float64, error) {
	if s, ok := v.(string); ok {
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", s)
		}
		return x, nil
	}
	return number("convert", v)
}

func titleCase(s string) string {
	rs := []rune(s)
	start := true
	for i, r := range rs {
		if unicode.IsLetter(r) {
			if start {
				rs[i] = unicode.ToUpper(r)
			} else {
				rs[i] = unicode.ToLower(r)
			}
			start = false
		} else {
			start = true
		}
	}
	return string(rs)
}

func capitalize(s string) string {
	rs := []rune(strings.ToLower(s))
	if len(rs) > 0 {
		rs[0] = unicode.ToUpper(rs[0])
	}
	return string(rs)
}
