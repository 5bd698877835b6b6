// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation parses bracketed evidence markers such as [OA3] or
// [OA3, OA7] in free text, and splits text into sentences that can be
// edited and re-joined without disturbing the surrounding layout.
package citation

import (
	"regexp"
	"strings"

	"github.com/pdiddy/cite-engine/pkg/types"
)

// markerPattern matches a well-formed marker: one or more OA ids separated
// by commas or semicolons inside square brackets.
var markerPattern = regexp.MustCompile(`\[\s*(OA\d+(?:\s*[,;]\s*OA\d+)*)\s*\]`)

// idPattern matches a single id inside a marker.
var idPattern = regexp.MustCompile(`OA\d+`)

// Marker is one marker occurrence in a text.
type Marker struct {
	// Start and End are byte offsets of the brackets in the text.
	Start, End int

	// IDs lists the ids in the order written.
	IDs []string
}

// FindMarkers returns every well-formed marker in text, in order.
func FindMarkers(text string) []Marker {
	locs := markerPattern.FindAllStringSubmatchIndex(text, -1)
	markers := make([]Marker, 0, len(locs))
	for _, loc := range locs {
		inner := text[loc[2]:loc[3]]
		markers = append(markers, Marker{
			Start: loc[0],
			End:   loc[1],
			IDs:   idPattern.FindAllString(inner, -1),
		})
	}
	return markers
}

// HasMarker reports whether text contains at least one well-formed marker.
func HasMarker(text string) bool {
	return markerPattern.MatchString(text)
}

// IDs returns the distinct ids cited anywhere in texts, sorted by numeric id.
func IDs(texts ...string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range texts {
		for _, m := range FindMarkers(t) {
			for _, id := range m.IDs {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	types.SortRecordIDs(ids)
	return ids
}

// Format renders ids as a single marker, e.g. "[OA1, OA4]". It returns the
// empty string for no ids.
func Format(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

// Rewrite replaces every marker in text with the marker keep returns for
// its ids. When keep returns no ids the marker is removed together with
// the whitespace before it.
func Rewrite(text string, keep func(ids []string) []string) string {
	markers := FindMarkers(text)
	if len(markers) == 0 {
		return text
	}
	var b strings.Builder
	prev := 0
	for _, m := range markers {
		ids := keep(m.IDs)
		if len(ids) == 0 {
			b.WriteString(strings.TrimRight(text[prev:m.Start], " \t"))
		} else {
			b.WriteString(text[prev:m.Start])
			b.WriteString(Format(ids))
		}
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Strip removes every marker from text.
func Strip(text string) string {
	return Rewrite(text, func([]string) []string { return nil })
}

// Attach inserts a marker for ids at the end of sentence, before its
// terminal punctuation when there is any.
func Attach(sentence string, ids []string) string {
	marker := Format(ids)
	if marker == "" {
		return sentence
	}
	body := strings.TrimRight(sentence, " \t")
	cut := len(body)
	for cut > 0 && strings.IndexByte(`.!?"')`, body[cut-1]) >= 0 {
		cut--
	}
	if cut == 0 {
		return body + " " + marker
	}
	return body[:cut] + " " + marker + body[cut:]
}

// malformedPattern matches a bracket whose content reads as a citation but
// is not a well-formed marker: bare numbers, "#" or "OA#" placeholders,
// lower-case ids, or lists mixing those with ids.
var malformedPattern = regexp.MustCompile(`\[\s*((?i:oa)\s*(?:\d+|#)?|#|\d+)(\s*[,;]\s*((?i:oa)\s*(?:\d+|#)?|#|\d+))*\s*\]`)

// StripMalformed removes every citation-shaped bracket that is not a
// well-formed marker, together with the whitespace before it. It returns
// the cleaned text and the brackets removed, in order.
func StripMalformed(text string) (string, []string) {
	locs := malformedPattern.FindAllStringIndex(text, -1)
	var b strings.Builder
	var removed []string
	prev := 0
	for _, loc := range locs {
		raw := text[loc[0]:loc[1]]
		if markerPattern.MatchString(raw) {
			continue
		}
		b.WriteString(strings.TrimRight(text[prev:loc[0]], " \t"))
		removed = append(removed, raw)
		prev = loc[1]
	}
	if len(removed) == 0 {
		return text, nil
	}
	b.WriteString(text[prev:])
	return b.String(), removed
}
