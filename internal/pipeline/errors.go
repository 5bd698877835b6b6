// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/cite-engine/internal/retry"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindExhausted     Kind = "exhausted"
	KindOutputInvalid Kind = "output_invalid"
	KindIntegrity     Kind = "integrity"
	KindCanceled      Kind = "canceled"
	KindFatal         Kind = "fatal"
)

// StageError is the failure surfaced by Orchestrator.Run. It names the stage
// that aborted the run and wraps the underlying cause.
type StageError struct {
	Stage    string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("stage %s failed (%s after %d attempts): %v", e.Stage, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageExhaustedError reports that a resilient stage failed on every
// allowed attempt. Err is the last failure.
type StageExhaustedError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageExhaustedError) Error() string {
	return fmt.Sprintf("%s: exhausted after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageExhaustedError) Unwrap() error { return e.Err }

// StageOutputInvalid reports structured output from the text-generation
// collaborator that does not match the schema the stage expects.
type StageOutputInvalid struct {
	Stage  string
	Schema string
	Err    error
}

func (e *StageOutputInvalid) Error() string {
	return fmt.Sprintf("%s: output does not match %s schema: %v", e.Stage, e.Schema, e.Err)
}

func (e *StageOutputInvalid) Unwrap() error { return e.Err }

// OutputInvalid wraps err as a *StageOutputInvalid.
func OutputInvalid(stage, schema string, err error) error {
	return &StageOutputInvalid{Stage: stage, Schema: schema, Err: err}
}

// IntegrityViolation reports citation markers or supporting-card sets that
// do not resolve to known evidence records.
type IntegrityViolation struct {
	Stage      string
	Violations []string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("%s: %d referential integrity violation(s): %s",
		e.Stage, len(e.Violations), strings.Join(e.Violations, "; "))
}

// classify maps a stage error to its Kind. ctx is the run context; a
// failure observed after it ended is a cancellation.
func classify(ctx context.Context, err error) Kind {
	var (
		exhausted *StageExhaustedError
		invalid   *StageOutputInvalid
		integrity *IntegrityViolation
	)
	switch {
	case errors.As(err, &exhausted):
		return KindExhausted
	case errors.As(err, &invalid):
		return KindOutputInvalid
	case errors.As(err, &integrity):
		return KindIntegrity
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return KindCanceled
	case retry.IsTransient(err):
		return KindTransient
	default:
		return KindFatal
	}
}
