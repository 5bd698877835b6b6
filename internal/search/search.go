// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search looks up candidate sources for each topic through a
// bibliographic search provider. Topics are searched concurrently; results
// are reassembled in topic order.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/cite-engine/internal/metrics"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/internal/retry"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "search"

// ErrInvalidQuery marks a lookup the provider rejected as malformed.
// Retrying it cannot succeed.
var ErrInvalidQuery = errors.New("invalid search query")

// Provider searches one bibliographic API.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, topic types.Topic, limit int) ([]types.Source, error)
}

// Options configures the search stage.
type Options struct {
	// PerTopic is the maximum number of sources requested per topic.
	PerTopic int
	// Workers bounds concurrent lookups. Zero or negative means one.
	Workers int
	// Timeout bounds each lookup. Zero disables the per-lookup deadline.
	Timeout time.Duration
}

// Stage runs one provider lookup per topic.
type Stage struct {
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// NewStage returns a search stage over provider.
func NewStage(provider Provider, opts Options, logger *zap.Logger) *Stage {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PerTopic <= 0 {
		opts.PerTopic = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{provider: provider, opts: opts, logger: logger}
}

// Name returns "search".
func (s *Stage) Name() string { return Name }

// Run looks up every committed topic and returns the search-results
// artifact. A topic with no hits gets an empty source list. Any failed
// lookup fails the whole stage; timeouts and upstream errors are transient.
func (s *Stage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.Topics); err != nil {
		return nil, err
	}
	topics := store.Topics()

	entries := make([]types.TopicSources, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, topic := range topics {
		g.Go(func() error {
			sources, err := s.lookup(gctx, topic)
			if err != nil {
				return fmt.Errorf("topic %q: %w", topic, err)
			}
			if sources == nil {
				sources = []types.Source{}
			}
			entries[i] = types.TopicSources{Topic: topic, Sources: sources}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := types.SearchResults{Entries: entries}
	if err := types.Validate(results); err != nil {
		return nil, fmt.Errorf("provider %s returned invalid sources: %w", s.provider.Name(), err)
	}

	s.logger.Info("search complete",
		zap.String("provider", s.provider.Name()),
		zap.Int("topics", len(topics)),
		zap.Int("sources", results.Len()),
	)
	return record.NewSearchResults(results), nil
}

// lookup runs one provider call under its own deadline.
func (s *Stage) lookup(ctx context.Context, topic types.Topic) ([]types.Source, error) {
	if strings.TrimSpace(string(topic)) == "" {
		return nil, fmt.Errorf("empty topic: %w", ErrInvalidQuery)
	}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	sources, err := s.provider.Lookup(callCtx, topic, s.opts.PerTopic)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(s.provider.Name(), "error").Inc()
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, retry.MarkTransient(fmt.Errorf("lookup timed out after %v: %w", s.opts.Timeout, err))
		}
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(s.provider.Name(), "success").Inc()

	if len(sources) > s.opts.PerTopic {
		sources = sources[:s.opts.PerTopic]
	}
	return sources, nil
}

// checkStatus maps a provider HTTP status to an error. 429 and 5xx are
// transient; any other non-200 status means the request itself is wrong.
func checkStatus(provider string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return retry.MarkTransient(fmt.Errorf("%s API returned HTTP %d", provider, code))
	default:
		return fmt.Errorf("%s API returned HTTP %d: %w", provider, code, ErrInvalidQuery)
	}
}
