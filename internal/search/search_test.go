// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/internal/retry"
	"github.com/pdiddy/cite-engine/pkg/types"
)

func isInvalid(err error) bool { return errors.Is(err, ErrInvalidQuery) }

// fakeProvider answers from a fixed table, optionally delaying lookups in
// reverse topic order so completion order differs from topic order.
type fakeProvider struct {
	results map[types.Topic][]types.Source
	delay   func(topic types.Topic) time.Duration
	err     error

	mu     sync.Mutex
	limits []int
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Lookup(ctx context.Context, topic types.Topic, limit int) ([]types.Source, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(topic)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[topic], nil
}

func storeWithTopics(topics ...types.Topic) *record.Store {
	s := record.New("draft")
	s.Commit(record.NewTopics(topics))
	return s
}

func src(url string) types.Source { return types.Source{URL: url, Title: url} }

func runStage(t *testing.T, st *Stage, store *record.Store) (types.SearchResults, error) {
	t.Helper()
	a, err := st.Run(context.Background(), store)
	if err != nil {
		return types.SearchResults{}, err
	}
	store.Commit(a)
	return store.SearchResults(), nil
}

func TestStageKeepsTopicOrder(t *testing.T) {
	p := &fakeProvider{
		results: map[types.Topic][]types.Source{
			"a": {src("https://a/1"), src("https://a/2")},
			"b": {src("https://b/1")},
			"c": {src("https://c/1")},
		},
		delay: func(topic types.Topic) time.Duration {
			return map[types.Topic]time.Duration{"a": 30 * time.Millisecond, "b": 15 * time.Millisecond}[topic]
		},
	}
	st := NewStage(p, Options{PerTopic: 3, Workers: 3}, zaptest.NewLogger(t))
	got, err := runStage(t, st, storeWithTopics("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, []types.Topic{"a", "b", "c"}, got.Topics())
	assert.Equal(t, []string{"https://a/1", "https://a/2"}, got.URLs("a"))
	assert.Equal(t, []string{"https://c/1"}, got.URLs("c"))
	assert.Equal(t, "search", st.Name())
}

func TestStageEmptyTopicResultIsNotAnError(t *testing.T) {
	p := &fakeProvider{results: map[types.Topic][]types.Source{}}
	st := NewStage(p, Options{PerTopic: 3, Workers: 2}, nil)
	got, err := runStage(t, st, storeWithTopics("obscure"))
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.NotNil(t, got.Entries[0].Sources)
	assert.Empty(t, got.Entries[0].Sources)
}

func TestStageBoundsWorkersAndPassesLimit(t *testing.T) {
	p := &fakeProvider{
		results: map[types.Topic][]types.Source{},
		delay:   func(types.Topic) time.Duration { return 10 * time.Millisecond },
	}
	st := NewStage(p, Options{PerTopic: 2, Workers: 2}, nil)
	_, err := runStage(t, st, storeWithTopics("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	assert.LessOrEqual(t, p.peak.Load(), int32(2))
	assert.Equal(t, []int{2, 2, 2, 2, 2}, p.limits)
}

func TestStageTruncatesToPerTopic(t *testing.T) {
	p := &fakeProvider{results: map[types.Topic][]types.Source{
		"a": {src("https://1"), src("https://2"), src("https://3")},
	}}
	st := NewStage(p, Options{PerTopic: 2, Workers: 1}, nil)
	got, err := runStage(t, st, storeWithTopics("a"))
	require.NoError(t, err)
	assert.Len(t, got.Sources("a"), 2)
}

func TestStageLookupTimeoutIsTransient(t *testing.T) {
	p := &fakeProvider{delay: func(types.Topic) time.Duration { return time.Second }}
	st := NewStage(p, Options{PerTopic: 3, Workers: 1, Timeout: 10 * time.Millisecond}, nil)
	_, err := st.Run(context.Background(), storeWithTopics("slow"))
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestStagePropagatesProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"transient", retry.MarkTransient(errors.New("503")), true},
		{"invalid", fmt.Errorf("HTTP 400: %w", ErrInvalidQuery), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{err: tt.err}
			st := NewStage(p, Options{Workers: 2}, nil)
			_, err := st.Run(context.Background(), storeWithTopics("a", "b"))
			require.Error(t, err)
			assert.Equal(t, tt.transient, retry.IsTransient(err))
		})
	}
}

func TestStageRejectsEmptyTopic(t *testing.T) {
	p := &fakeProvider{}
	st := NewStage(p, Options{}, nil)
	_, err := st.Run(context.Background(), storeWithTopics(" "))
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.False(t, retry.IsTransient(err))
}

func TestStageRequiresTopics(t *testing.T) {
	st := NewStage(&fakeProvider{}, Options{}, nil)
	_, err := st.Run(context.Background(), record.New("draft"))
	assert.ErrorIs(t, err, record.ErrMissingArtifact)
}

func TestStageRejectsSourceWithoutURL(t *testing.T) {
	p := &fakeProvider{results: map[types.Topic][]types.Source{"a": {{Title: "no url"}}}}
	st := NewStage(p, Options{}, nil)
	_, err := st.Run(context.Background(), storeWithTopics("a"))
	assert.Error(t, err)
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, checkStatus("X", 200))
	assert.True(t, retry.IsTransient(checkStatus("X", 502)))
	assert.True(t, retry.IsTransient(checkStatus("X", 429)))
	assert.ErrorIs(t, checkStatus("X", 403), ErrInvalidQuery)
}
