// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the text-generation collaborator used by pipeline
// stages: an instruction plus input artifacts in, text out. Backends call
// the Claude Messages API or any OpenAI-compatible chat endpoint.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/metrics"
)

var (
	// ErrUpstream marks transport failures and non-success responses.
	ErrUpstream = errors.New("text generation upstream error")

	// ErrEmptyOutput marks a response that carried no text.
	ErrEmptyOutput = errors.New("text generation returned no text")
)

// Request is one text-generation call.
type Request struct {
	// Task names the calling step (e.g. "extract_topics"). Used for
	// logging and metrics only.
	Task string

	// Instruction tells the model what to produce.
	Instruction string

	// Input carries the artifacts the instruction refers to.
	Input string
}

// Prompt renders the request as a single user message.
func (r Request) Prompt() string {
	if r.Input == "" {
		return r.Instruction
	}
	return r.Instruction + "\n\n" + r.Input
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// timeoutGenerator bounds every call with its own deadline.
type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout returns a Generator whose calls each fail once d elapses.
// A non-positive d returns next unchanged.
func WithTimeout(next Generator, d time.Duration) Generator {
	if d <= 0 {
		return next
	}
	return &timeoutGenerator{next: next, timeout: d}
}

func (g *timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.next.Generate(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s: timed out after %v: %w", req.Task, g.timeout, err)
	}
	return out, err
}

// instrumentedGenerator logs and counts every call.
type instrumentedGenerator struct {
	next     Generator
	provider string
	logger   *zap.Logger
}

// Instrument returns a Generator that records a log line and Prometheus
// metrics for each call made through next.
func Instrument(next Generator, provider string, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedGenerator{next: next, provider: provider, logger: logger}
}

func (g *instrumentedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := g.next.Generate(ctx, req)
	duration := time.Since(start)

	metrics.LLMRequestDuration.WithLabelValues(g.provider, req.Task).Observe(duration.Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(g.provider, req.Task, "error").Inc()
		g.logger.Warn("text generation failed",
			zap.String("provider", g.provider),
			zap.String("task", req.Task),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}

	metrics.LLMRequestsTotal.WithLabelValues(g.provider, req.Task, "success").Inc()
	g.logger.Debug("text generation completed",
		zap.String("provider", g.provider),
		zap.String("task", req.Task),
		zap.Duration("duration", duration),
		zap.Int("prompt_chars", len(req.Prompt())),
		zap.Int("output_chars", len(out)),
	)
	return out, nil
}

// fencePattern matches a fenced code block and captures its body.
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n(.*?)\n?```")

// StripFences returns the body of the first fenced code block in text, or
// text itself trimmed when it has no fence. Models often wrap structured
// output in ```yaml fences despite being told not to.
func StripFences(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// Render executes a prompt template with data.
func Render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
