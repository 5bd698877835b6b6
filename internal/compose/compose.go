// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package compose rewrites the draft around the topic briefs. The model
// proposes the revision; Guard removes any new sentence it added without a
// citation.
package compose

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/internal/citation"
	"github.com/pdiddy/cite-engine/internal/evidence"
	"github.com/pdiddy/cite-engine/internal/llm"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
)

// Name is the stage name used in reports and errors.
const Name = "compose"

var composePromptTmpl = template.Must(template.New("compose").Parse(`Rewrite the draft below using the topic briefs and evidence records that follow.
- Preserve the author's voice and structure where possible.
- Add or revise sentences ONLY if you can attach at least one marker such as [OA3] from the evidence records.
- Avoid generic claims that lack a marker.
- Place the marker immediately after the clause containing the fact.
Output only the revised draft text. Do NOT include YAML, commentary, or notes about these instructions.
Do NOT invent citations or facts.

Draft:
{{.Draft}}

Topic briefs:
{{.Briefs}}

Evidence records:
{{.Evidence}}`))

// Stage composes the revised draft.
type Stage struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewStage returns a compose stage backed by gen.
func NewStage(gen llm.Generator, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{gen: gen, logger: logger}
}

// Name returns "compose".
func (s *Stage) Name() string { return Name }

// Run asks the model for a revision of the original draft and returns the
// guarded result as the new current draft.
func (s *Stage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.Evidence, record.Briefs); err != nil {
		return nil, err
	}

	briefs, err := yaml.Marshal(store.Briefs())
	if err != nil {
		return nil, fmt.Errorf("encoding briefs: %w", err)
	}
	records, err := evidence.MarshalRecords(store.Evidence())
	if err != nil {
		return nil, err
	}
	original := store.OriginalDraft()
	prompt, err := llm.Render(composePromptTmpl, struct{ Draft, Briefs, Evidence string }{
		Draft:    original,
		Briefs:   string(briefs),
		Evidence: string(records),
	})
	if err != nil {
		return nil, err
	}

	out, err := s.gen.Generate(ctx, llm.Request{Task: "compose_with_evidence", Instruction: prompt})
	if err != nil {
		return nil, fmt.Errorf("composing draft: %w", err)
	}

	revised := Clean(out)
	if revised == "" {
		return nil, pipeline.OutputInvalid(Name, "draft", errors.New("empty revision"))
	}
	guarded, removed := Guard(original, revised)

	s.logger.Info("draft composed",
		zap.Int("markers", len(citation.FindMarkers(guarded))),
		zap.Int("unsupported_removed", removed),
	)
	return record.NewDraft(guarded), nil
}

// leadIn matches a model preamble such as "Here is the revised draft:".
var leadIn = regexp.MustCompile(`(?i)^\s*(here is|here's|below is|sure|certainly)\b[^\n]*:\s*\n`)

// Clean strips code fences and a conversational lead-in line from model
// output.
func Clean(text string) string {
	if strings.Contains(text, "```") {
		text = llm.StripFences(text)
	}
	text = leadIn.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Guard removes every sentence of revised that does not occur in original
// and carries no well-formed marker. Markers naming unknown records are
// left alone. It returns the guarded text and the number of sentences
// removed.
func Guard(original, revised string) (string, int) {
	base := citation.NewBaseline(original)
	ss := citation.Split(revised)
	removed := 0
	kept := citation.Remove(ss, func(i int) bool {
		text := ss[i].Text
		if base.Contains(text) || citation.HasMarker(text) {
			return false
		}
		removed++
		return true
	})
	return citation.Join(kept), removed
}
