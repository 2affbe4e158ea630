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

package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultBinding is the variable the generated code operates on.
const DefaultBinding = "df"

// TransformData is the input of the instruction template.
type TransformData struct {
	Binding     string
	Sample      string
	Instruction string
}

// Builder composes the request sent to the model. It performs no
// validation: whatever the user typed is passed through.
type Builder struct {
	Binding  string
	Template string

	tpl *template.Template
}

// NewBuilder parses text as the instruction template. Empty text selects
// PromptTransform.
func NewBuilder(binding, text string) (*Builder, error) {
	if text == "" {
		text = PromptTransform
	}
	if binding == "" {
		binding = DefaultBinding
	}
	tpl, err := template.New("transform").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Builder{Binding: binding, Template: text, tpl: tpl}, nil
}

// Build renders the template with sample and instruction.
func (b *Builder) Build(sample, instruction string) (Prompt, error) {
	tpl := b.tpl
	if tpl == nil {
		nb, err := NewBuilder(b.Binding, b.Template)
		if err != nil {
			return nil, err
		}
		tpl = nb.tpl
	}
	binding := b.Binding
	if binding == "" {
		binding = DefaultBinding
	}
	var buf bytes.Buffer
	err := tpl.Execute(&buf, TransformData{
		Binding:     binding,
		Sample:      strings.TrimRight(sample, "\n"),
		Instruction: strings.TrimSpace(instruction),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	return TextPrompt(buf.String()), nil
}

var defaultBuilder = func() *Builder {
	b, err := NewBuilder(DefaultBinding, PromptTransform)
	if err != nil {
		panic(err)
	}
	return b
}()

// BuildTransformPrompt renders the embedded template for the df binding.
func BuildTransformPrompt(sample, instruction string) string {
	p, err := defaultBuilder.Build(sample, instruction)
	if err != nil {
		panic(err)
	}
	return p.String()
}
