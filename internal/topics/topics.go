// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package topics extracts the research topics a draft is about. The model
// proposes candidates; Normalize turns them into the canonical topic list.
package topics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/llm"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "topics"

// MaxTopics caps the number of topics kept for a run.
const MaxTopics = 5

const extractInstruction = `You get the user's draft text below.
List the 3-5 most relevant research topics as a comma-separated list:
topic one, topic two, ...
Return only the topics, no extra commentary or JSON.
Do NOT comment on the topics or provide explanations.`

// Stage extracts and normalizes topics from the current draft.
type Stage struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewStage returns a topic stage backed by gen.
func NewStage(gen llm.Generator, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{gen: gen, logger: logger}
}

// Name returns "topics".
func (s *Stage) Name() string { return Name }

// Run asks the model for candidate topics and commits the normalized list.
func (s *Stage) Run(ctx context.Context, store *record.Store) (record.Artifact, error) {
	out, err := s.gen.Generate(ctx, llm.Request{
		Task:        "extract_topics",
		Instruction: extractInstruction,
		Input:       store.Draft(),
	})
	if err != nil {
		return nil, fmt.Errorf("extracting topics: %w", err)
	}

	candidates := ParseList(out)
	topics := Normalize(candidates)
	if len(topics) == 0 {
		return nil, pipeline.OutputInvalid(Name, "topic-list", errors.New("no topics in model output"))
	}

	s.logger.Info("topics extracted",
		zap.Int("candidates", len(candidates)),
		zap.Strings("topics", topicStrings(topics)),
	)
	return record.NewTopics(topics), nil
}

// bulletPrefix matches list markers at the start of a line or item.
var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*+•]+\s*|\d+[.)]\s+)`)

// ParseList splits model output into raw topic candidates. It accepts a
// comma-separated line as well as numbered or bulleted lists, and skips
// lead-in lines such as "Here are the topics:".
func ParseList(text string) []string {
	var out []string
	for _, line := range strings.Split(llm.StripFences(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		line = bulletPrefix.ReplaceAllString(line, "")
		for _, item := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' }) {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// debris is stripped from both ends of every candidate.
const debris = " \t\"'`*_.;:()[]"

// Normalize canonicalizes candidates: list markers and quotes removed,
// lowercased, whitespace collapsed, the final word singularized when the
// plural is unambiguous, and duplicates dropped. First-occurrence order is
// kept and the result is capped at MaxTopics. Normalize is idempotent.
func Normalize(candidates []string) []types.Topic {
	seen := make(map[types.Topic]bool)
	var out []types.Topic
	for _, c := range candidates {
		t := normalizeOne(c)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTopics {
			break
		}
	}
	return out
}

// normalizeOne repeats a single cleanup pass until it reaches a fixed
// point.
func normalizeOne(s string) types.Topic {
	for {
		next := cleanOnce(s)
		if next == s {
			return types.Topic(s)
		}
		s = next
	}
}

func cleanOnce(s string) string {
	for {
		next := strings.Trim(bulletPrefix.ReplaceAllString(s, ""), debris)
		if next == s {
			break
		}
		s = next
	}
	words := strings.Fields(strings.ToLower(s))
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = Singularize(words[len(words)-1])
	return strings.Join(words, " ")
}

// invariant words are never singularized: irregular plurals, mass nouns,
// and singulars that happen to end in s.
var invariant = map[string]bool{
	"analysis": true, "analyses": true, "axes": true, "basis": true, "bias": true,
	"biases": true, "caches": true, "crises": true, "data": true, "diagnoses": true,
	"genetics": true, "hypotheses": true, "lens": true, "means": true, "media": true,
	"movies": true, "news": true, "niches": true, "physics": true, "series": true,
	"species": true, "status": true, "statuses": true, "theses": true, "viruses": true,
	"corpus": true, "metadata": true, "sometimes": true, "always": true, "whereas": true,
	"diabetes": true, "measles": true, "rabies": true, "herpes": true, "mumps": true,
	"scabies": true, "rickets": true, "pancreas": true, "atlas": true, "feces": true,
	"faeces": true, "testes": true, "meninges": true, "pubes": true, "dentes": true,
}

// Singularize returns the singular of word when its plural form is
// unambiguous, and word unchanged otherwise.
func Singularize(word string) string {
	n := len(word)
	switch {
	case n <= 3, invariant[word], !strings.HasSuffix(word, "s"):
		return word
	case strings.HasSuffix(word, "ss"),
		strings.HasSuffix(word, "as"),
		strings.HasSuffix(word, "os"),
		strings.HasSuffix(word, "us"),
		strings.HasSuffix(word, "is"),
		strings.HasSuffix(word, "ics"),
		strings.HasSuffix(word, "ices"):
		return word
	case strings.HasSuffix(word, "ies"):
		if n > 4 && !isVowel(word[n-4]) {
			return word[:n-3] + "y"
		}
		return word
	case n > 4 && (strings.HasSuffix(word, "sses") ||
		strings.HasSuffix(word, "xes") ||
		strings.HasSuffix(word, "ches") ||
		strings.HasSuffix(word, "shes")):
		return word[:n-2]
	default:
		return word[:n-1]
	}
}

func isVowel(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

func topicStrings(topics []types.Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = string(t)
	}
	return out
}
