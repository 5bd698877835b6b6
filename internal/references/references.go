// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package references renders the reference list for the evidence records
// of a run, as plain text lines or as CSL-YAML.
package references

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// Name is the stage name used in reports and errors.
const Name = "references"

// maxAuthors is the number of authors listed before "et al.".
const maxAuthors = 3

// Stage renders the reference list. It does not call the model.
type Stage struct{}

// NewStage returns a reference stage.
func NewStage() *Stage { return &Stage{} }

// Name returns "references".
func (s *Stage) Name() string { return Name }

// Run renders one line per evidence record.
func (s *Stage) Run(_ context.Context, store *record.Store) (record.Artifact, error) {
	if err := store.Require(record.Evidence); err != nil {
		return nil, err
	}
	return record.NewReferences(Render(store.Evidence())), nil
}

// Render returns one reference line per record, sorted ascending by
// numeric id:
//
//	[OA1] Authors. Title. Venue, Year. URL
//
// Unknown parts are left out together with their punctuation.
func Render(records []types.EvidenceRecord) []string {
	sorted := sortRecords(records)
	lines := make([]string, len(sorted))
	for i, r := range sorted {
		lines[i] = Line(r)
	}
	return lines
}

// Line renders a single reference.
func Line(r types.EvidenceRecord) string {
	var parts []string
	if a := formatAuthors(r.Authors); a != "" {
		parts = append(parts, sentence(a))
	}
	if t := strings.TrimSpace(r.Title); t != "" && t != r.URL {
		parts = append(parts, sentence(t))
	}

	var venueYear []string
	if v := strings.TrimSpace(r.Venue); v != "" {
		venueYear = append(venueYear, strings.TrimRight(v, "."))
	}
	if r.Year > 0 {
		venueYear = append(venueYear, strconv.Itoa(r.Year))
	}
	if len(venueYear) > 0 {
		parts = append(parts, sentence(strings.Join(venueYear, ", ")))
	}
	parts = append(parts, r.URL)

	return "[" + r.ID + "] " + strings.Join(parts, " ")
}

// sentence terminates s with a period unless it already ends in terminal
// punctuation.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!") {
		return s
	}
	return s + "."
}

func formatAuthors(authors []string) string {
	var names []string
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}
	if len(names) > maxAuthors {
		return strings.Join(names[:maxAuthors], ", ") + ", et al"
	}
	return strings.Join(names, ", ")
}

func sortRecords(records []types.EvidenceRecord) []types.EvidenceRecord {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b types.EvidenceRecord) int {
		return types.CompareRecordIDs(a.ID, b.ID)
	})
	return sorted
}
