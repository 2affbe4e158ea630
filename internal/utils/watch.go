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

package utils

import (
	"path/filepath"

	"github.com/cloudwego/tabcoder/lang/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// WatchFile calls fn for every change to path until the returned stop
// function is called. The parent directory is watched because editors and
// spreadsheet programs usually replace a file instead of writing it in place.
func WatchFile(path string, fn func(op fsnotify.Op, file string)) (stop func(), err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				fn(ev.Op, ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watch %s: %v", abs, err)
			case <-done:
				return
			}
		}
	}()

	var closed bool
	return func() {
		if closed {
			return
		}
		closed = true
		close(done)
		w.Close()
	}, nil
}
