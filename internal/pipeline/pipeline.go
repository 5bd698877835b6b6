// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs a fixed sequence of stages over a shared record
// store. Each stage reads the artifacts committed by its predecessors and
// returns exactly one artifact, which the orchestrator commits before the
// next stage starts. The first unrecoverable failure aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/metrics"
	"github.com/pdiddy/cite-engine/internal/record"
)

// Stage is one step of the pipeline.
type Stage interface {
	// Name identifies the stage in logs, metrics, and errors.
	Name() string

	// Run reads from store and returns the artifact to commit. Run must not
	// modify store.
	Run(ctx context.Context, store *record.Store) (record.Artifact, error)
}

// attemptCounter is implemented by stages that may run their body more
// than once, such as ResilientStage.
type attemptCounter interface {
	Attempts() int
}

// Stage statuses recorded in a Report.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageReport describes the outcome of one stage in a run.
type StageReport struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Status   string        `json:"status" yaml:"status"`
	Artifact string        `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Attempts int           `json:"attempts" yaml:"attempts"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Kind     Kind          `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Report summarizes a run, one entry per stage in execution order.
type Report struct {
	Stages []StageReport `json:"stages" yaml:"stages"`
}

// Stage returns the report entry for name.
func (r Report) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// Orchestrator executes stages strictly in order.
type Orchestrator struct {
	stages []Stage
	logger *zap.Logger
}

// New returns an orchestrator over stages. A nil logger discards logs.
func New(logger *zap.Logger, stages ...Stage) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{stages: stages, logger: logger}
}

// Stages returns the stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

// Run seeds a new store with draft and executes every stage. On failure it
// returns a *StageError along with the partially populated store, whose
// artifacts are those committed before the failing stage.
func (o *Orchestrator) Run(ctx context.Context, draft string) (*record.Store, Report, error) {
	store := record.New(draft)
	report := Report{Stages: make([]StageReport, 0, len(o.stages))}

	for i, stage := range o.stages {
		name := stage.Name()

		if err := ctx.Err(); err != nil {
			report.Stages = append(report.Stages, StageReport{Stage: name, Status: StatusFailed, Kind: KindCanceled})
			o.skipRest(&report, i+1)
			return store, report, &StageError{Stage: name, Kind: KindCanceled, Err: err}
		}

		o.logger.Debug("stage starting", zap.String("stage", name))
		start := time.Now()
		artifact, err := stage.Run(ctx, store)
		duration := time.Since(start)

		attempts := 1
		if ac, ok := stage.(attemptCounter); ok {
			attempts = ac.Attempts()
		}
		metrics.StageDuration.WithLabelValues(name).Observe(duration.Seconds())
		metrics.StageAttemptsTotal.WithLabelValues(name).Add(float64(attempts))

		if err == nil && artifact == nil {
			err = errors.New("stage returned no artifact")
		}
		// A stage that finished after cancellation commits nothing.
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}

		if err != nil {
			kind := classify(ctx, err)
			metrics.StageRunsTotal.WithLabelValues(name, StatusFailed).Inc()
			o.logger.Error("stage failed",
				zap.String("stage", name),
				zap.String("kind", string(kind)),
				zap.Int("attempts", attempts),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			report.Stages = append(report.Stages, StageReport{
				Stage: name, Status: StatusFailed, Attempts: attempts, Duration: duration, Kind: kind,
			})
			o.skipRest(&report, i+1)
			return store, report, &StageError{Stage: name, Kind: kind, Attempts: attempts, Err: err}
		}

		store.Commit(artifact)
		metrics.StageRunsTotal.WithLabelValues(name, StatusOK).Inc()
		o.logger.Info("stage committed",
			zap.String("stage", name),
			zap.String("artifact", artifact.Name()),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
		)
		report.Stages = append(report.Stages, StageReport{
			Stage: name, Status: StatusOK, Artifact: artifact.Name(), Attempts: attempts, Duration: duration,
		})
	}

	return store, report, nil
}

func (o *Orchestrator) skipRest(report *Report, from int) {
	for _, s := range o.stages[from:] {
		report.Stages = append(report.Stages, StageReport{Stage: s.Name(), Status: StatusSkipped})
	}
}

// Func adapts a function to the Stage interface.
type Func struct {
	StageName string
	Fn        func(ctx context.Context, store *record.Store) (record.Artifact, error)
}

func (f Func) Name() string { return f.StageName }

func (f Func) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	if f.Fn == nil {
		return nil, fmt.Errorf("stage %s has no body", f.StageName)
	}
	return f.Fn(ctx, store)
}
