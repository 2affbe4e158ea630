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

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/tabcoder/lang/log"
)

// ErrCommunication matches every *CommunicationError.
var ErrCommunication = errors.New("model communication failed")

// CommunicationError is a failed exchange with the model backend: the
// service was unreachable, timed out, or answered with nothing usable.
type CommunicationError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("model %s: %v (after %d attempt(s))", e.Model, e.Err, e.Attempts)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

// Gateway sends one prompt as a single user message and returns the raw
// reply text. It keeps no conversation state between calls.
type Gateway struct {
	Model ChatModel
	// Name identifies the model in errors and logs.
	Name string
	// Retries is the number of attempts for transient failures.
	Retries int
	// Backoff is the first retry delay; it doubles on every attempt.
	Backoff time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates the chat model described by m and wraps it.
func NewGateway(m ModelConfig) (*Gateway, error) {
	m = applyDefaults(m)
	cm, err := NewChatModel(m)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		Model:   cm,
		Name:    string(m.APIType) + "/" + m.ModelName,
		Retries: m.Retries,
		Backoff: 2 * time.Second,
	}, nil
}

// Call implements Generator.
func (g *Gateway) Call(ctx context.Context, prompt string) (string, error) {
	retries := g.Retries
	if retries <= 0 {
		retries = 1
	}
	log.Debug("LLM request to %s:\n%s", g.Name, prompt)

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		var reply string
		reply, err = g.generate(ctx, prompt)
		if err == nil {
			log.Debug("LLM response from %s (%d bytes):\n%s", g.Name, len(reply), reply)
			return reply, nil
		}
		if !isRetryable(err) || attempt == retries || ctx.Err() != nil {
			log.Error("LLM call failed after %d attempts: %v", attempt, err)
			return "", &CommunicationError{Model: g.Name, Attempts: attempt, Err: err}
		}

		// Exponential backoff: 2s, 4s, 8s
		backoff := g.Backoff << uint(attempt-1)
		log.Info("LLM call failed (attempt %d/%d), retrying in %v: %v", attempt, retries, backoff, err)
		if serr := g.wait(ctx, backoff); serr != nil {
			return "", &CommunicationError{Model: g.Name, Attempts: attempt, Err: serr}
		}
	}
	return "", &CommunicationError{Model: g.Name, Attempts: retries, Err: err}
}

func (g *Gateway) generate(ctx context.Context, prompt string) (string, error) {
	if g.Model == nil {
		return "", errors.New("no chat model configured")
	}
	messages := []*schema.Message{
		schema.UserMessage(prompt),
	}
	response, err := g.Model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM Generate failed: %w", err)
	}
	if response == nil {
		return "", errors.New("LLM returned nil response")
	}
	if strings.TrimSpace(response.Content) == "" {
		return "", errors.New("LLM returned empty response")
	}
	return response.Content, nil
}

func (g *Gateway) wait(ctx context.Context, d time.Duration) error {
	if g.sleep != nil {
		return g.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRetryable reports transient transport failures worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "temporary failure")
}
