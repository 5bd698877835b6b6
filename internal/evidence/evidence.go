// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evidence turns search results into evidence records. Building
// the record set (ids, topics, deduplication) is deterministic; only the
// findings and relevance of each record come from the model.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/internal/llm"
	"github.com/pdiddy/cite-engine/internal/metrics"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "evidence"

// AnnotationSchema names the structured output the model must return.
const AnnotationSchema = "evidence-annotations"

// Candidate is a deduplicated source awaiting annotation.
type Candidate struct {
	ID     string       `yaml:"id"`
	Topic  types.Topic  `yaml:"topic"`
	Source types.Source `yaml:",inline"`
}

// Build maps search results to candidates in topic order, then source
// order within a topic. Each distinct URL gets the next OA id and keeps the
// topic it was first seen under; later sightings are discarded. Build
// returns the candidates and the number of duplicates dropped.
func Build(results types.SearchResults) ([]Candidate, int) {
	seen := make(map[string]bool)
	var out []Candidate
	dups := 0
	for _, entry := range results.Entries {
		for _, src := range entry.Sources {
			url := strings.TrimSpace(src.URL)
			if url == "" {
				continue
			}
			if seen[url] {
				dups++
				continue
			}
			seen[url] = true

			src.URL = url
			src.Title = strings.TrimSpace(src.Title)
			if src.Title == "" {
				src.Title = url
			}
			if src.Year < 1000 || src.Year > 9999 {
				src.Year = 0
			}
			out = append(out, Candidate{
				ID:     types.RecordID(len(out) + 1),
				Topic:  entry.Topic,
				Source: src,
			})
		}
	}
	return out, dups
}

// Annotation is the model's assessment of one candidate.
type Annotation struct {
	ID          string   `yaml:"id"`
	KeyFindings []string `yaml:"key_findings"`
	Relevance   string   `yaml:"relevance"`
	Quote       string   `yaml:"quote,omitempty"`
}

var annotatePromptTmpl = template.Must(template.New("annotate").Parse(`You receive the draft below and a YAML list of sources found for its topics.
For EACH source, return one YAML entry with this exact schema:

- id: "<source id, unchanged>"
  key_findings:
    - "<factual finding supported by the title or abstract>"
  relevance: "<1-2 sentences on why this supports or extends the draft>"
  quote: "<short verbatim excerpt of the abstract>"   # omit if none

Rules:
- Annotate every source exactly once, using the ids given.
- Include only facts supported by the title and abstract.
- The quote must be copied character for character from the abstract.
Return ONE YAML list only, with no extra commentary.

Draft:
{{.Draft}}

Sources:
{{.Sources}}`))

// Stage builds and annotates the evidence records of a run.
type Stage struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewStage returns an evidence stage backed by gen.
func NewStage(gen llm.Generator, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{gen: gen, logger: logger}
}

// Name returns "evidence".
func (s *Stage) Name() string { return Name }

// Run builds candidates from the search results, has the model annotate
// them in one call, and returns the validated records.
func (s *Stage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.SearchResults); err != nil {
		return nil, err
	}

	candidates, dups := Build(store.SearchResults())
	metrics.EvidenceDuplicatesTotal.Add(float64(dups))
	if len(candidates) == 0 {
		s.logger.Warn("no sources to annotate")
		return record.NewEvidence(nil), nil
	}

	sources, err := yaml.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("encoding candidates: %w", err)
	}
	prompt, err := llm.Render(annotatePromptTmpl, struct{ Draft, Sources string }{
		Draft:   store.OriginalDraft(),
		Sources: string(sources),
	})
	if err != nil {
		return nil, err
	}

	out, err := s.gen.Generate(ctx, llm.Request{Task: "build_evidence", Instruction: prompt})
	if err != nil {
		return nil, fmt.Errorf("annotating evidence: %w", err)
	}

	var annotations []Annotation
	if err := yaml.Unmarshal([]byte(llm.StripFences(out)), &annotations); err != nil {
		return nil, pipeline.OutputInvalid(Name, AnnotationSchema, err)
	}
	records, err := Assemble(candidates, annotations)
	if err != nil {
		return nil, pipeline.OutputInvalid(Name, AnnotationSchema, err)
	}

	metrics.EvidenceRecordsTotal.Add(float64(len(records)))
	s.logger.Info("evidence built",
		zap.Int("records", len(records)),
		zap.Int("duplicates", dups),
	)
	return record.NewEvidence(records), nil
}

// Assemble joins candidates with their annotations. Every candidate must be
// annotated exactly once, and every annotation must name a candidate. A
// quote is kept only when it appears verbatim in the source abstract.
func Assemble(candidates []Candidate, annotations []Annotation) ([]types.EvidenceRecord, error) {
	byID := make(map[string]Annotation, len(annotations))
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	var problems []string
	for _, a := range annotations {
		id := strings.TrimSpace(a.ID)
		switch {
		case !known[id]:
			problems = append(problems, fmt.Sprintf("unknown id %q", a.ID))
			continue
		case hasAnnotation(byID, id):
			problems = append(problems, fmt.Sprintf("%s annotated more than once", id))
			continue
		}
		byID[id] = a
	}

	records := make([]types.EvidenceRecord, 0, len(candidates))
	for _, c := range candidates {
		a, ok := byID[c.ID]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s not annotated", c.ID))
			continue
		}

		rec := types.EvidenceRecord{
			ID:          c.ID,
			Topic:       c.Topic,
			URL:         c.Source.URL,
			Title:       c.Source.Title,
			Authors:     c.Source.Authors,
			Year:        c.Source.Year,
			Venue:       strings.TrimSpace(c.Source.Venue),
			KeyFindings: cleanFindings(a.KeyFindings),
			Relevance:   strings.TrimSpace(a.Relevance),
			Quote:       verbatimQuote(a.Quote, c.Source.Abstract),
		}
		if err := types.Validate(rec); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", c.ID, err))
			continue
		}
		records = append(records, rec)
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return records, nil
}

func hasAnnotation(m map[string]Annotation, id string) bool {
	_, ok := m[id]
	return ok
}

func cleanFindings(findings []string) []string {
	var out []string
	for _, f := range findings {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func verbatimQuote(quote, abstract string) string {
	quote = strings.TrimSpace(quote)
	if quote == "" || !strings.Contains(abstract, quote) {
		return ""
	}
	return quote
}
