// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/internal/retry"
)

// ResilientStage decorates a stage with a bounded retry policy. Only
// failures the policy classifies as retryable (by default, those marked
// with retry.MarkTransient) are retried.
type ResilientStage struct {
	stage    Stage
	policy   retry.Policy
	logger   *zap.Logger
	attempts int
}

// Resilient wraps stage with policy. A nil logger discards retry logs.
func Resilient(stage Stage, policy retry.Policy, logger *zap.Logger) *ResilientStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientStage{stage: stage, policy: policy, logger: logger}
}

// Name returns the wrapped stage's name.
func (r *ResilientStage) Name() string { return r.stage.Name() }

// Attempts returns the number of attempts made by the most recent Run.
func (r *ResilientStage) Attempts() int { return r.attempts }

// Run invokes the wrapped stage until it succeeds or the policy gives up.
// Exhaustion is reported as *StageExhaustedError.
func (r *ResilientStage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	p := r.policy
	onRetry := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("retrying stage",
			zap.String("stage", r.stage.Name()),
			zap.Int("retry", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	a, attempts, err := retry.Do(ctx, p, func(ctx context.Context) (record.Artifact, error) {
		return r.stage.Run(ctx, store)
	})
	r.attempts = attempts

	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return nil, &StageExhaustedError{Stage: r.stage.Name(), Attempts: ex.Attempts, Err: ex.Err}
	}
	return a, err
}
