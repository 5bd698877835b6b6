// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// RecordIDPrefix prefixes every evidence record id (e.g. "OA3").
const RecordIDPrefix = "OA"

// RecordID formats the n-th evidence record id of a run.
func RecordID(n int) string {
	return fmt.Sprintf("%s%d", RecordIDPrefix, n)
}

// ParseRecordID returns the numeric suffix of an evidence record id.
func ParseRecordID(id string) (int, bool) {
	if !strings.HasPrefix(id, RecordIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(RecordIDPrefix):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CompareRecordIDs orders ids by numeric suffix. Ids that do not parse
// sort after all valid ids, in lexical order.
func CompareRecordIDs(a, b string) int {
	na, oka := ParseRecordID(a)
	nb, okb := ParseRecordID(b)
	switch {
	case oka && okb:
		return cmp.Compare(na, nb)
	case oka:
		return -1
	case okb:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortRecordIDs sorts ids ascending by numeric suffix.
func SortRecordIDs(ids []string) {
	slices.SortStableFunc(ids, CompareRecordIDs)
}

// EvidenceRecord is the atomic unit of support: one deduplicated source with
// the findings it backs. Records are created by the evidence stage and never
// mutated afterwards; later stages refer to them by ID.
type EvidenceRecord struct {
	// ID is "OA<n>", assigned sequentially from 1 within a run.
	ID string `json:"id" yaml:"id" validate:"required,startswith=OA"`

	// Topic is the first topic under which the URL was found.
	Topic Topic `json:"topic" yaml:"topic" validate:"required"`

	// URL is unique across the records of a run.
	URL string `json:"url" yaml:"url" validate:"required"`

	// Title is the source title, or the URL when no title is known.
	Title string `json:"title" yaml:"title" validate:"required"`

	// Authors lists author names in source order. Omitted when unknown.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year. Omitted when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty" validate:"omitempty,gte=1000,lte=9999"`

	// Venue is the journal or conference. Omitted when unknown.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// KeyFindings are short factual statements supported by the source.
	KeyFindings []string `json:"key_findings" yaml:"key_findings" validate:"min=1,dive,required"`

	// Relevance explains in one or two sentences why the source supports
	// or extends the draft.
	Relevance string `json:"relevance" yaml:"relevance" validate:"required"`

	// Quote is a short verbatim excerpt of the source. Omitted when none
	// is available.
	Quote string `json:"quote,omitempty" yaml:"quote,omitempty"`
}

// TopicBrief is the per-topic synthesis of its evidence records.
type TopicBrief struct {
	Topic Topic `json:"topic" yaml:"topic" validate:"required"`

	// Takeaways are one to three consensus statements, each carrying at
	// least one citation marker.
	Takeaways []string `json:"takeaways" yaml:"takeaways" validate:"min=1,max=3,dive,required"`

	// Tensions describes disagreement between sources, when there is any.
	Tensions string `json:"tensions,omitempty" yaml:"tensions,omitempty"`

	// SupportingCards is exactly the set of record ids cited in Takeaways
	// and Tensions, sorted by numeric id.
	SupportingCards []string `json:"supporting_cards" yaml:"supporting_cards" validate:"min=1,dive,startswith=OA"`
}

// RecordIndex maps record ids to records.
type RecordIndex map[string]EvidenceRecord

// IndexRecords builds a RecordIndex over records.
func IndexRecords(records []EvidenceRecord) RecordIndex {
	idx := make(RecordIndex, len(records))
	for _, r := range records {
		idx[r.ID] = r
	}
	return idx
}

// Has reports whether id names a known record.
func (x RecordIndex) Has(id string) bool {
	_, ok := x[id]
	return ok
}
