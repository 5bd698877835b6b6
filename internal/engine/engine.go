// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine wires the standard cite-engine pipeline from
// configuration: topics, search, evidence, synthesis, compose, references,
// and attribution, in that order.
package engine

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/attribution"
	"github.com/pdiddy/cite-engine/internal/compose"
	"github.com/pdiddy/cite-engine/internal/evidence"
	"github.com/pdiddy/cite-engine/internal/llm"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/references"
	"github.com/pdiddy/cite-engine/internal/retry"
	"github.com/pdiddy/cite-engine/internal/search"
	"github.com/pdiddy/cite-engine/internal/synthesis"
	"github.com/pdiddy/cite-engine/internal/topics"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// ErrMissingCredential is returned when a provider needs a key that was not
// configured.
var ErrMissingCredential = errors.New("missing credential")

// New returns the standard pipeline. gen serves every stage that calls the
// model; provider serves the search stage, which is the only stage retried.
func New(cfg types.Config, gen llm.Generator, provider search.Provider, logger *zap.Logger) *pipeline.Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	searchStage := search.NewStage(provider, search.Options{
		PerTopic: cfg.Search.PerTopic,
		Workers:  cfg.Search.Workers,
		Timeout:  cfg.Search.Timeout,
	}, logger)

	return pipeline.New(logger,
		topics.NewStage(gen, logger),
		pipeline.Resilient(searchStage, Policy(cfg.Retry), logger),
		evidence.NewStage(gen, logger),
		synthesis.NewStage(gen, logger),
		compose.NewStage(gen, logger),
		references.NewStage(),
		attribution.NewStage(logger),
	)
}

// Policy converts retry settings to a retry.Policy with exponential backoff.
func Policy(cfg types.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    retry.Exponential(cfg.BaseDelay, cfg.MaxDelay),
	}
}

// NewGenerator builds the configured text-generation backend, bounded by
// the configured timeout and instrumented with logs and metrics.
func NewGenerator(cfg types.LLMConfig, client *http.Client, logger *zap.Logger) (llm.Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %s: %w", cfg.Provider, ErrMissingCredential)
	}

	var gen llm.Generator
	switch cfg.Provider {
	case types.ProviderClaude:
		gen = &llm.Claude{APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens, Client: client}
	case types.ProviderOpenAI:
		gen = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return llm.Instrument(llm.WithTimeout(gen, cfg.Timeout), string(cfg.Provider), logger), nil
}

// NewProvider builds the configured search backend.
func NewProvider(cfg types.SearchConfig, client *http.Client) (search.Provider, error) {
	switch cfg.Provider {
	case types.SearchOpenAlex:
		return search.NewOpenAlex(search.OpenAlexConfig{
			Client:            client,
			Email:             cfg.Email,
			UserAgent:         cfg.UserAgent,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case types.SearchSemanticScholar:
		return &search.SemanticScholar{Client: client, APIKey: cfg.APIKey, UserAgent: cfg.UserAgent}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}
