// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package record holds the shared session state of one pipeline run: a
// typed store of named artifacts written by the stages in execution order.
//
// Stages never mutate the store directly. A stage returns an Artifact and
// the orchestrator commits it once the stage has succeeded, so an artifact
// is either written completely or not at all.
package record

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/pdiddy/cite-engine/pkg/types"
)

// Artifact names.
const (
	OriginalDraft = "original_draft"
	Draft         = "draft"
	Topics        = "topics"
	SearchResults = "search_results"
	Evidence      = "evidence"
	Briefs        = "topic_briefs"
	References    = "references"
)

// ErrMissingArtifact is returned by Require when a stage runs before the
// artifact it reads has been committed.
var ErrMissingArtifact = errors.New("missing artifact")

// Artifact is one named stage output ready to be committed.
type Artifact interface {
	Name() string
	apply(s *Store)
}

type artifact struct {
	name string
	fn   func(s *Store)
}

func (a artifact) Name() string { return a.name }
func (a artifact) apply(s *Store) { a.fn(s) }

// NewDraft returns the current-draft artifact.
func NewDraft(text string) Artifact {
	return artifact{name: Draft, fn: func(s *Store) { s.draft = text }}
}

// NewTopics returns the topics artifact.
func NewTopics(topics []types.Topic) Artifact {
	topics = slices.Clone(topics)
	return artifact{name: Topics, fn: func(s *Store) { s.topics = topics }}
}

// NewSearchResults returns the search-results artifact.
func NewSearchResults(r types.SearchResults) Artifact {
	r.Entries = slices.Clone(r.Entries)
	return artifact{name: SearchResults, fn: func(s *Store) { s.search = r }}
}

// NewEvidence returns the evidence-records artifact.
func NewEvidence(records []types.EvidenceRecord) Artifact {
	records = slices.Clone(records)
	return artifact{name: Evidence, fn: func(s *Store) { s.evidence = records }}
}

// NewBriefs returns the topic-briefs artifact.
func NewBriefs(briefs []types.TopicBrief) Artifact {
	briefs = slices.Clone(briefs)
	return artifact{name: Briefs, fn: func(s *Store) { s.briefs = briefs }}
}

// NewReferences returns the reference-list artifact.
func NewReferences(lines []string) Artifact {
	lines = slices.Clone(lines)
	return artifact{name: References, fn: func(s *Store) { s.references = lines }}
}

// Store is the typed artifact store for one run. It is not safe for
// concurrent mutation; the orchestrator is its only writer.
type Store struct {
	original   string
	draft      string
	topics     []types.Topic
	search     types.SearchResults
	evidence   []types.EvidenceRecord
	briefs     []types.TopicBrief
	references []string

	// versions counts commits per artifact name.
	versions map[string]int
}

// New returns a store seeded with the input draft as both the original and
// the current draft.
func New(draft string) *Store {
	return &Store{
		original: draft,
		draft:    draft,
		versions: map[string]int{OriginalDraft: 1, Draft: 1},
	}
}

// Commit writes a, replacing any prior value under the same name.
func (s *Store) Commit(a Artifact) {
	a.apply(s)
	s.versions[a.Name()]++
}

// Has reports whether name has been committed at least once.
func (s *Store) Has(name string) bool { return s.versions[name] > 0 }

// Version returns how many times name has been committed.
func (s *Store) Version(name string) int { return s.versions[name] }

// Require returns ErrMissingArtifact naming the first absent artifact.
func (s *Store) Require(names ...string) error {
	for _, n := range names {
		if !s.Has(n) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, n)
		}
	}
	return nil
}

// Artifacts returns the names of every committed artifact, sorted.
func (s *Store) Artifacts() []string {
	names := make([]string, 0, len(s.versions))
	for n, v := range s.versions {
		if v > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) OriginalDraft() string { return s.original }
func (s *Store) Draft() string { return s.draft }
func (s *Store) Topics() []types.Topic { return slices.Clone(s.topics) }
func (s *Store) SearchResults() types.SearchResults { return s.search }
func (s *Store) Evidence() []types.EvidenceRecord { return slices.Clone(s.evidence) }
func (s *Store) Briefs() []types.TopicBrief { return slices.Clone(s.briefs) }
func (s *Store) References() []string { return slices.Clone(s.references) }

// Snapshot is a serializable copy of the store, used for diagnostics and
// the run archive.
type Snapshot struct {
	OriginalDraft string                 `json:"original_draft" yaml:"original_draft"`
	Draft         string                 `json:"draft" yaml:"draft"`
	Topics        []types.Topic          `json:"topics,omitempty" yaml:"topics,omitempty"`
	SearchResults *types.SearchResults   `json:"search_results,omitempty" yaml:"search_results,omitempty"`
	Evidence      []types.EvidenceRecord `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Briefs        []types.TopicBrief     `json:"topic_briefs,omitempty" yaml:"topic_briefs,omitempty"`
	References    []string               `json:"references,omitempty" yaml:"references,omitempty"`
	Artifacts     []string               `json:"artifacts" yaml:"artifacts"`
}

// Snapshot copies the committed artifacts.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		OriginalDraft: s.original,
		Draft:         s.draft,
		Topics:        s.Topics(),
		Evidence:      s.Evidence(),
		Briefs:        s.Briefs(),
		References:    s.References(),
		Artifacts:     s.Artifacts(),
	}
	if s.Has(SearchResults) {
		r := s.search
		snap.SearchResults = &r
	}
	return snap
}
