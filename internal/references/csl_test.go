// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package references

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pdiddy/cite-engine/pkg/types"
)

func TestToCSLItem(t *testing.T) {
	r := types.EvidenceRecord{
		ID:          "OA2",
		URL:         "https://doi.org/10.1186/gb-2006-7-10-r100",
		Title:       "CellProfiler",
		Authors:     []string{"Anne E. Carpenter", "Jones, Thouis R."},
		Year:        2006,
		Venue:       "Genome Biology",
		KeyFindings: []string{"x"},
		Relevance:   "Describes the tool.",
	}

	item := toCSLItem(r)

	if item.ID != "OA2" {
		t.Errorf("ID = %q, want OA2", item.ID)
	}
	if item.Type != "article-journal" {
		t.Errorf("Type = %q, want article-journal", item.Type)
	}
	if item.ContainerTitle != "Genome Biology" {
		t.Errorf("ContainerTitle = %q", item.ContainerTitle)
	}
	if item.DOI != "10.1186/gb-2006-7-10-r100" {
		t.Errorf("DOI = %q", item.DOI)
	}
	if len(item.Author) != 2 {
		t.Fatalf("len(Author) = %d, want 2", len(item.Author))
	}
	if item.Author[0].Family != "Carpenter" || item.Author[0].Given != "Anne E." {
		t.Errorf("Author[0] = %+v", item.Author[0])
	}
	if item.Author[1].Family != "Jones" || item.Author[1].Given != "Thouis R." {
		t.Errorf("Author[1] = %+v", item.Author[1])
	}
	if item.Issued == nil || item.Issued.DateParts[0][0] != 2006 {
		t.Errorf("Issued year should be 2006")
	}
}

func TestToCSLItemMinimal(t *testing.T) {
	item := toCSLItem(types.EvidenceRecord{ID: "OA1", URL: "https://example.org/x", Title: "https://example.org/x"})

	if item.Type != "article" {
		t.Errorf("Type = %q, want article", item.Type)
	}
	if item.DOI != "" {
		t.Errorf("DOI should be empty for non-DOI URLs, got %q", item.DOI)
	}
	if item.Issued != nil {
		t.Errorf("Issued should be nil without a year")
	}
	if item.Author != nil {
		t.Errorf("Author should be nil, got %v", item.Author)
	}
}

func TestParseAuthorName(t *testing.T) {
	tests := []struct {
		in   string
		want CSLName
	}{
		{"Anne Carpenter", CSLName{Given: "Anne", Family: "Carpenter"}},
		{"Carpenter, Anne", CSLName{Given: "Anne", Family: "Carpenter"}},
		{"Plato", CSLName{Literal: "Plato"}},
		{"  ", CSLName{}},
	}
	for _, tt := range tests {
		if got := parseAuthorName(tt.in); got != tt.want {
			t.Errorf("parseAuthorName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFormatCSLSortsByID(t *testing.T) {
	records := []types.EvidenceRecord{
		{ID: "OA10", URL: "https://example.org/10", Title: "Ten"},
		{ID: "OA2", URL: "https://example.org/2", Title: "Two"},
	}

	var buf bytes.Buffer
	if err := FormatCSL(records, &buf); err != nil {
		t.Fatalf("FormatCSL: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "id: OA2") > strings.Index(out, "id: OA10") {
		t.Errorf("OA2 should precede OA10:\n%s", out)
	}
	if !strings.Contains(out, "URL: https://example.org/2") {
		t.Errorf("missing URL field:\n%s", out)
	}
}
