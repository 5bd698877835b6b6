// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/cite-engine/internal/retry"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlex queries the OpenAlex Works API.
type OpenAlex struct {
	client    *http.Client
	email     string
	userAgent string
	limiter   *rate.Limiter
}

// OpenAlexConfig configures an OpenAlex provider.
type OpenAlexConfig struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
	// RequestsPerSecond caps the request rate. Zero or negative disables
	// the limiter.
	RequestsPerSecond float64
}

// NewOpenAlex returns an OpenAlex provider.
func NewOpenAlex(cfg OpenAlexConfig) *OpenAlex {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	o := &OpenAlex{client: client, email: cfg.Email, userAgent: cfg.UserAgent}
	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return o
}

// Name returns the provider identifier.
func (o *OpenAlex) Name() string { return string(types.SearchOpenAlex) }

// Lookup returns up to limit works matching topic, in OpenAlex relevance
// order.
func (o *OpenAlex) Lookup(ctx context.Context, topic types.Topic, limit int) ([]types.Source, error) {
	q := strings.TrimSpace(string(topic))
	if q == "" {
		return nil, fmt.Errorf("empty OpenAlex query: %w", ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = 3
	}
	if limit > 200 {
		limit = 200
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for OpenAlex rate limit: %w", err)
		}
	}

	params := url.Values{
		"search":   {q},
		"per_page": {strconv.Itoa(limit)},
		"page":     {"1"},
	}
	if o.email != "" {
		params.Set("mailto", o.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("OpenAlex API request: %w", err))
	}
	defer resp.Body.Close()

	if err := checkStatus("OpenAlex", resp.StatusCode); err != nil {
		return nil, err
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("parsing OpenAlex response: %w", err))
	}

	var sources []types.Source
	for _, work := range oar.Results {
		src := types.Source{
			URL:      work.url(),
			Title:    strings.TrimSpace(work.Title),
			Year:     work.PublicationYear,
			Venue:    work.PrimaryLocation.Source.DisplayName,
			Abstract: reconstructAbstract(work.AbstractInvertedIndex),
		}
		if src.URL == "" {
			continue
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				src.Authors = append(src.Authors, authorship.Author.DisplayName)
			}
		}
		sources = append(sources, src)
		if len(sources) == limit {
			break
		}
	}
	return sources, nil
}

// url prefers the DOI link since OpenAlex is DOI-centric, then the landing
// page, then the OpenAlex work id.
func (w openAlexWork) url() string {
	switch {
	case w.DOI != "":
		return w.DOI
	case w.PrimaryLocation.LandingPageURL != "":
		return w.PrimaryLocation.LandingPageURL
	default:
		return w.ID
	}
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexLocation struct {
	LandingPageURL string `json:"landing_page_url"`
	Source         struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}
