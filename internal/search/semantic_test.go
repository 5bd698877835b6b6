// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cite-engine/internal/retry"
)

func withSemanticServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	old := semanticAPIBase
	semanticAPIBase = ts.URL
	t.Cleanup(func() { semanticAPIBase = old })
	return ts
}

func TestSemanticScholarLookup(t *testing.T) {
	var captured *http.Request
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total":3,"data":[
			{"paperId":"p1","url":"https://www.semanticscholar.org/paper/p1","title":"Deep phenotyping","abstract":"We profile cells.","year":2021,"venue":"Nature Methods","authors":[{"name":"A. Author"}],"externalIds":{"DOI":"10.1/abc"}},
			{"paperId":"p2","url":"https://www.semanticscholar.org/paper/p2","title":"Preprint","year":2023,"externalIds":{"ArXiv":"2301.00001"}},
			{"paperId":"p3","url":"https://www.semanticscholar.org/paper/p3","title":"Plain","externalIds":{}}
		]}`)
	})

	s := &SemanticScholar{Client: ts.Client(), APIKey: "s2-key", UserAgent: "cite-engine/test"}
	sources, err := s.Lookup(context.Background(), "cell profiling", 3)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "cell profiling", captured.URL.Query().Get("query"))
	assert.Equal(t, "3", captured.URL.Query().Get("limit"))
	assert.Equal(t, "s2-key", captured.Header.Get("x-api-key"))

	assert.Equal(t, "https://doi.org/10.1/abc", sources[0].URL)
	assert.Equal(t, "Nature Methods", sources[0].Venue)
	assert.Equal(t, []string{"A. Author"}, sources[0].Authors)
	assert.Equal(t, 2021, sources[0].Year)
	assert.Equal(t, "https://arxiv.org/abs/2301.00001", sources[1].URL)
	assert.Equal(t, "https://www.semanticscholar.org/paper/p3", sources[2].URL)
}

func TestSemanticScholarLookupStatus(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	s := &SemanticScholar{Client: ts.Client()}
	_, err := s.Lookup(context.Background(), "cells", 3)
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "429")
}

func TestSemanticScholarLookupEmptyTopic(t *testing.T) {
	s := &SemanticScholar{}
	_, err := s.Lookup(context.Background(), "", 3)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
