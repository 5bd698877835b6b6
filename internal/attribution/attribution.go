// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package attribution checks that every new factual sentence of a revised
// draft cites a known evidence record, and repairs the draft when it does
// not.
package attribution

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/citation"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "attribution"

// MinWords is the number of words, markers excluded, below which a
// sentence is not treated as a factual claim.
const MinWords = 4

// MinOverlap is the share of a sentence's content words that must appear
// in a record before the record's marker is attached to it.
const MinOverlap = 0.5

// Kind names what was wrong with a sentence.
type Kind string

const (
	MissingMarker   Kind = "missing_marker"
	UnknownID       Kind = "unknown_id"
	MalformedMarker Kind = "malformed_marker"
)

// Action names the repair applied.
type Action string

const (
	Stripped Action = "stripped"
	Attached Action = "attached"
	Removed  Action = "removed"
)

// Issue is one finding of Validate.
type Issue struct {
	Sentence string
	Kind     Kind
	Action   Action

	// IDs are the unknown ids or malformed brackets stripped, or the id
	// attached.
	IDs []string
}

func (i Issue) String() string {
	if len(i.IDs) > 0 {
		return fmt.Sprintf("%s %s %v: %q", i.Kind, i.Action, i.IDs, i.Sentence)
	}
	return fmt.Sprintf("%s %s: %q", i.Kind, i.Action, i.Sentence)
}

// Result is the repaired draft and what was changed to get there.
type Result struct {
	Text   string
	Issues []Issue
}

// Validate checks draft against records. Citation-shaped brackets that are
// not well-formed markers, such as [7] or [oa1], and markers naming unknown
// records are stripped everywhere. A sentence that does not occur in original and
// is long enough to state a fact must then carry a marker: if it has none
// it gets the marker of the record it overlaps most, or is removed when no
// record overlaps enough.
//
// A draft with no issues is returned unchanged, so Validate applied to its
// own output reports nothing.
func Validate(original, draft string, records []types.EvidenceRecord) Result {
	known := types.IndexRecords(records)
	base := citation.NewBaseline(original)
	profiles := profile(records)

	ss := citation.Split(draft)
	drop := make(map[int]bool)
	var issues []Issue

	for i := range ss {
		text := ss[i].Text
		if text == "" {
			continue
		}

		text, malformed := citation.StripMalformed(text)
		if len(malformed) > 0 {
			issues = append(issues, Issue{Sentence: ss[i].Text, Kind: MalformedMarker, Action: Stripped, IDs: malformed})
		}

		var unknown []string
		text = citation.Rewrite(text, func(ids []string) []string {
			var keep []string
			for _, id := range ids {
				if known.Has(id) {
					keep = append(keep, id)
				} else {
					unknown = append(unknown, id)
				}
			}
			return keep
		})
		if len(unknown) > 0 {
			issues = append(issues, Issue{Sentence: ss[i].Text, Kind: UnknownID, Action: Stripped, IDs: unknown})
		}
		if len(malformed) > 0 || len(unknown) > 0 {
			ss[i].Text = text
			if strings.TrimSpace(text) == "" {
				drop[i] = true
				continue
			}
		}

		if citation.HasMarker(text) || base.Contains(text) || !factual(text) {
			continue
		}
		if id, ok := bestMatch(text, profiles); ok {
			ss[i].Text = citation.Attach(text, []string{id})
			issues = append(issues, Issue{Sentence: text, Kind: MissingMarker, Action: Attached, IDs: []string{id}})
			continue
		}
		drop[i] = true
		issues = append(issues, Issue{Sentence: text, Kind: MissingMarker, Action: Removed})
	}

	if len(issues) == 0 {
		return Result{Text: draft}
	}
	kept := citation.Remove(ss, func(i int) bool { return drop[i] })
	return Result{Text: citation.Join(kept), Issues: issues}
}

// factual reports whether a sentence reads as a claim rather than a
// heading or fragment.
func factual(sentence string) bool {
	body := strings.TrimSpace(citation.Strip(sentence))
	if strings.HasPrefix(body, "#") {
		return false
	}
	return len(strings.Fields(body)) >= MinWords
}

type recordProfile struct {
	id    string
	words map[string]bool
}

func profile(records []types.EvidenceRecord) []recordProfile {
	out := make([]recordProfile, 0, len(records))
	for _, r := range records {
		words := make(map[string]bool)
		texts := append([]string{r.Title, r.Quote}, r.KeyFindings...)
		for _, w := range citation.Words(strings.Join(texts, " ")) {
			words[w] = true
		}
		out = append(out, recordProfile{id: r.ID, words: words})
	}
	return out
}

// bestMatch returns the record sharing the largest share of sentence's
// content words. Ties go to the earlier record.
func bestMatch(sentence string, profiles []recordProfile) (string, bool) {
	seen := make(map[string]bool)
	var words []string
	for _, w := range citation.Words(sentence) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "", false
	}

	best, bestScore := "", 0.0
	for _, p := range profiles {
		hits := 0
		for _, w := range words {
			if p.words[w] {
				hits++
			}
		}
		if score := float64(hits) / float64(len(words)); score > bestScore {
			best, bestScore = p.id, score
		}
	}
	return best, bestScore >= MinOverlap
}

// Stage validates the composed draft and commits the repaired version.
type Stage struct {
	logger *zap.Logger
}

// NewStage returns an attribution stage.
func NewStage(logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{logger: logger}
}

// Name returns "attribution".
func (s *Stage) Name() string { return Name }

// Run repairs the current draft. If the repaired draft still fails
// validation the stage reports an IntegrityViolation and commits nothing.
func (s *Stage) Run(_ context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.Evidence); err != nil {
		return nil, err
	}
	original, records := store.OriginalDraft(), store.Evidence()

	res := Validate(original, store.Draft(), records)
	for _, issue := range res.Issues {
		s.logger.Info("attribution repaired",
			zap.String("kind", string(issue.Kind)),
			zap.String("action", string(issue.Action)),
			zap.Strings("ids", issue.IDs),
		)
	}

	if again := Validate(original, res.Text, records); len(again.Issues) > 0 {
		violations := make([]string, len(again.Issues))
		for i, issue := range again.Issues {
			violations[i] = issue.String()
		}
		return nil, &pipeline.IntegrityViolation{Stage: Name, Violations: violations}
	}
	return record.NewDraft(res.Text), nil
}
