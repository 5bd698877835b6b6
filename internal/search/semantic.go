// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/cite-engine/internal/retry"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,venue,url"

// SemanticScholar queries the Semantic Scholar Graph API.
type SemanticScholar struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the provider identifier.
func (s *SemanticScholar) Name() string { return string(types.SearchSemanticScholar) }

// Lookup returns up to limit papers matching topic.
func (s *SemanticScholar) Lookup(ctx context.Context, topic types.Topic, limit int) ([]types.Source, error) {
	q := strings.TrimSpace(string(topic))
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query: %w", ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = 3
	}

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(limit)},
		"fields": {semanticFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("Semantic Scholar API request: %w", err))
	}
	defer resp.Body.Close()

	if err := checkStatus("Semantic Scholar", resp.StatusCode); err != nil {
		return nil, err
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("parsing Semantic Scholar response: %w", err))
	}

	var sources []types.Source
	for _, paper := range sr.Data {
		src := types.Source{
			URL:      paper.url(),
			Title:    strings.TrimSpace(paper.Title),
			Year:     paper.Year,
			Venue:    paper.Venue,
			Abstract: paper.Abstract,
		}
		if src.URL == "" {
			continue
		}
		for _, a := range paper.Authors {
			if a.Name != "" {
				src.Authors = append(src.Authors, a.Name)
			}
		}
		sources = append(sources, src)
		if len(sources) == limit {
			break
		}
	}
	return sources, nil
}

// url prefers a DOI link, then an arXiv abstract page, then the Semantic
// Scholar paper page.
func (p semanticPaper) url() string {
	switch {
	case p.ExternalIDs.DOI != "":
		return "https://doi.org/" + p.ExternalIDs.DOI
	case p.ExternalIDs.ArXiv != "":
		return "https://arxiv.org/abs/" + p.ExternalIDs.ArXiv
	default:
		return p.URL
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID     string              `json:"paperId"`
	URL         string              `json:"url"`
	Title       string              `json:"title"`
	Abstract    string              `json:"abstract"`
	Year        int                 `json:"year"`
	Venue       string              `json:"venue"`
	Authors     []semanticAuthor    `json:"authors"`
	ExternalIDs semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
