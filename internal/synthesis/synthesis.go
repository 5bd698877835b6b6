// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis reduces the evidence records of each topic to a short
// brief of cited takeaways.
package synthesis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/internal/citation"
	"github.com/pdiddy/cite-engine/internal/evidence"
	"github.com/pdiddy/cite-engine/internal/llm"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "synthesis"

// BriefSchema names the structured output the model must return.
const BriefSchema = "topic-brief"

// MaxTakeaways caps the takeaways of one brief.
const MaxTakeaways = 3

var synthesisPromptTmpl = template.Must(template.New("synthesis").Parse(`You receive the evidence records found for the topic "{{.Topic}}" as a YAML list.
Write a compact synthesis with:
- 1-3 takeaways that reflect consensus across the records
- a tensions line if the sources disagree
- inline bracket citations using the record ids, e.g. [OA3, OA7], on every takeaway and on the tensions line

Cite only these ids: {{.IDs}}

Return YAML with this shape and nothing else:

takeaways:
  - "<point> [OA#]"
tensions: "<optional sentence> [OA#, OA#]"

Evidence:
{{.Evidence}}`))

// Group is the evidence of one topic.
type Group struct {
	Topic   types.Topic
	Records []types.EvidenceRecord
}

// GroupByTopic partitions records by topic. Groups follow the order of
// topics; topics without records get no group.
func GroupByTopic(topics []types.Topic, records []types.EvidenceRecord) []Group {
	byTopic := make(map[types.Topic][]types.EvidenceRecord)
	for _, r := range records {
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}

	var groups []Group
	for _, t := range topics {
		if rs := byTopic[t]; len(rs) > 0 {
			groups = append(groups, Group{Topic: t, Records: rs})
			delete(byTopic, t)
		}
	}
	// Records under a topic missing from the list keep record order.
	for _, r := range records {
		if rs, ok := byTopic[r.Topic]; ok {
			groups = append(groups, Group{Topic: r.Topic, Records: rs})
			delete(byTopic, r.Topic)
		}
	}
	return groups
}

// output is the model's answer for one group.
type output struct {
	Takeaways []string `yaml:"takeaways"`
	Tensions  string   `yaml:"tensions"`
}

// Stage writes one brief per topic.
type Stage struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewStage returns a synthesis stage backed by gen.
func NewStage(gen llm.Generator, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{gen: gen, logger: logger}
}

// Name returns "synthesis".
func (s *Stage) Name() string { return Name }

// Run synthesizes every topic group in topic order.
func (s *Stage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.Topics, record.Evidence); err != nil {
		return nil, err
	}

	groups := GroupByTopic(store.Topics(), store.Evidence())
	briefs := make([]types.TopicBrief, 0, len(groups))
	for _, g := range groups {
		b, err := s.synthesize(ctx, g)
		if err != nil {
			return nil, err
		}
		briefs = append(briefs, b)
	}

	s.logger.Info("topics synthesized", zap.Int("briefs", len(briefs)))
	return record.NewBriefs(briefs), nil
}

func (s *Stage) synthesize(ctx context.Context, g Group) (types.TopicBrief, error) {
	evidenceYAML, err := evidence.MarshalRecords(g.Records)
	if err != nil {
		return types.TopicBrief{}, err
	}
	ids := make([]string, len(g.Records))
	for i, r := range g.Records {
		ids[i] = r.ID
	}

	prompt, err := llm.Render(synthesisPromptTmpl, map[string]string{
		"Topic":    string(g.Topic),
		"IDs":      strings.Join(ids, ", "),
		"Evidence": string(evidenceYAML),
	})
	if err != nil {
		return types.TopicBrief{}, err
	}

	text, err := s.gen.Generate(ctx, llm.Request{Task: "synthesize_topic", Instruction: prompt})
	if err != nil {
		return types.TopicBrief{}, fmt.Errorf("synthesizing %q: %w", g.Topic, err)
	}

	var out output
	if err := yaml.Unmarshal([]byte(llm.StripFences(text)), &out); err != nil {
		return types.TopicBrief{}, pipeline.OutputInvalid(Name, BriefSchema, fmt.Errorf("topic %q: %w", g.Topic, err))
	}
	return NewBrief(g, out.Takeaways, out.Tensions)
}

// NewBrief validates the model's takeaways and tensions for group g and
// derives the supporting cards from the markers they carry. A wrong number
// of takeaways is a schema error; an uncited statement or a marker naming
// a record outside the group is an integrity violation.
func NewBrief(g Group, takeaways []string, tensions string) (types.TopicBrief, error) {
	var kept []string
	for _, t := range takeaways {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	tensions = strings.TrimSpace(tensions)

	if len(kept) == 0 || len(kept) > MaxTakeaways {
		return types.TopicBrief{}, pipeline.OutputInvalid(Name, BriefSchema,
			fmt.Errorf("topic %q: want 1-%d takeaways, got %d", g.Topic, MaxTakeaways, len(kept)))
	}

	brief := types.TopicBrief{
		Topic:     g.Topic,
		Takeaways: kept,
		Tensions:  tensions,
	}
	brief.SupportingCards = citation.IDs(append(slices.Clone(kept), tensions)...)

	var violations []string
	for i, t := range kept {
		if !citation.HasMarker(t) {
			violations = append(violations, fmt.Sprintf("topic %q: takeaway %d has no citation", g.Topic, i+1))
		}
	}
	if tensions != "" && !citation.HasMarker(tensions) {
		violations = append(violations, fmt.Sprintf("topic %q: tensions line has no citation", g.Topic))
	}
	violations = append(violations, CheckBrief(brief, types.IndexRecords(g.Records))...)
	if len(violations) > 0 {
		return types.TopicBrief{}, &pipeline.IntegrityViolation{Stage: Name, Violations: violations}
	}

	if err := types.Validate(brief); err != nil {
		return types.TopicBrief{}, pipeline.OutputInvalid(Name, BriefSchema, err)
	}
	return brief, nil
}

// CheckBrief verifies referential closure of a brief: every cited id is
// known, and the supporting cards are exactly the cited ids. It returns
// one message per violation.
func CheckBrief(brief types.TopicBrief, known types.RecordIndex) []string {
	var violations []string
	cited := citation.IDs(append(slices.Clone(brief.Takeaways), brief.Tensions)...)
	for _, id := range cited {
		if !known.Has(id) {
			violations = append(violations, fmt.Sprintf("topic %q cites unknown record %s", brief.Topic, id))
		}
	}
	if !slices.Equal(cited, brief.SupportingCards) {
		violations = append(violations, fmt.Sprintf("topic %q supporting cards %v do not match cited ids %v",
			brief.Topic, brief.SupportingCards, cited))
	}
	return violations
}
