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

package sheet

import (
	"errors"
	"fmt"
)

var (
	// ErrInput classifies failures to read the source dataset.
	ErrInput = errors.New("input error")
	// ErrPersistence classifies failures to write the final dataset.
	ErrPersistence = errors.New("persistence error")
	// ErrUnsupportedFormat is returned for file extensions that are neither spreadsheets nor CSV.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// InputError reports a dataset that could not be loaded. It is fatal to a session.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("cannot load %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func (e *InputError) Is(target error) bool { return target == ErrInput }

// PersistenceError reports a dataset that could not be saved.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cannot save %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
