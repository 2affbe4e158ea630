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
	_ "embed"
	"os"

	"github.com/pkg/errors"
)

type Prompt interface {
	String() string
}

type TextPrompt string

func (p TextPrompt) String() string {
	return string(p)
}

func NewTextPrompt(content string) Prompt {
	return TextPrompt(content)
}

// PromptTransform is the default instruction template. It is a Go text
// template over TransformData.
//
//go:embed transform.md
var PromptTransform string

// ReadTemplate loads a custom instruction template from path. An empty path
// means the embedded default.
func ReadTemplate(path string) (string, error) {
	if path == "" {
		return PromptTransform, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read prompt template %s", path)
	}
	return string(bs), nil
}
