// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package attribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cite-engine/internal/citation"
	"github.com/pdiddy/cite-engine/internal/compose"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

const original = "CellProfiler is software for biologists. It is widely used."

var records = []types.EvidenceRecord{
	{
		ID: "OA1", Topic: "cellprofiler", URL: "https://doi.org/10.1/cp",
		Title:       "CellProfiler: image analysis software for identifying and quantifying cell phenotypes",
		KeyFindings: []string{"CellProfiler measures cell phenotypes from microscopy images."},
		Relevance:   "Primary description of the tool.",
	},
	{
		ID: "OA2", Topic: "deep learning", URL: "https://doi.org/10.1/dl",
		Title:       "Deep learning for cellular image analysis",
		KeyFindings: []string{"Deep learning segments cells accurately."},
		Relevance:   "Reviews segmentation methods.",
	},
}

func TestValidateValidDraftUnchanged(t *testing.T) {
	draft := "CellProfiler is software for biologists [OA1].  It is widely used.\n\nDeep learning segments cells accurately [OA2]."
	res := Validate(original, draft, records)
	assert.Empty(t, res.Issues)
	assert.Equal(t, draft, res.Text)
}

func TestValidateStripsUnknownIDs(t *testing.T) {
	draft := "CellProfiler is software for biologists. It is widely used [OA9]. Deep learning segments cells accurately [OA2, OA9]."
	res := Validate(original, draft, records)

	assert.Equal(t, "CellProfiler is software for biologists. It is widely used. Deep learning segments cells accurately [OA2].", res.Text)
	require.Len(t, res.Issues, 2)
	for _, issue := range res.Issues {
		assert.Equal(t, UnknownID, issue.Kind)
		assert.Equal(t, Stripped, issue.Action)
		assert.Equal(t, []string{"OA9"}, issue.IDs)
	}
}

func TestValidateStripsMalformedMarkers(t *testing.T) {
	tests := []struct {
		name   string
		marker string
	}{
		{"bare number", "[3]"},
		{"placeholder", "[#]"},
		{"mixed list", "[OA1, 7]"},
		{"lower case", "[oa1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images " + tt.marker + "."
			res := Validate(original, draft, records)

			assert.Equal(t, "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images [OA1].", res.Text)
			require.Len(t, res.Issues, 2)
			assert.Equal(t, MalformedMarker, res.Issues[0].Kind)
			assert.Equal(t, Stripped, res.Issues[0].Action)
			assert.Equal(t, []string{tt.marker}, res.Issues[0].IDs)
			assert.Equal(t, Attached, res.Issues[1].Action)

			again := Validate(original, res.Text, records)
			assert.Empty(t, again.Issues)
			assert.Equal(t, res.Text, again.Text)
		})
	}
}

func TestValidateStripsMalformedBesideGoodMarker(t *testing.T) {
	draft := "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images [OA1] on 40 datasets [7]."
	guarded, removed := compose.Guard(original, draft)
	require.Zero(t, removed)

	res := Validate(original, guarded, records)
	assert.Equal(t, "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images [OA1] on 40 datasets.", res.Text)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, MalformedMarker, res.Issues[0].Kind)
	assert.Equal(t, []string{"[7]"}, res.Issues[0].IDs)
	assert.NotContains(t, res.Text, "[7]")
}

func TestValidateAttachesBestRecord(t *testing.T) {
	draft := "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images."
	res := Validate(original, draft, records)

	assert.Equal(t, "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images [OA1].", res.Text)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, MissingMarker, res.Issues[0].Kind)
	assert.Equal(t, Attached, res.Issues[0].Action)
	assert.Equal(t, []string{"OA1"}, res.Issues[0].IDs)
}

func TestValidateRemovesUnsupported(t *testing.T) {
	draft := "CellProfiler is software for biologists. The weather in Paris was lovely today. It is widely used."
	res := Validate(original, draft, records)

	assert.Equal(t, original, res.Text)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, Removed, res.Issues[0].Action)
	assert.Equal(t, "The weather in Paris was lovely today.", res.Issues[0].Sentence)
}

func TestValidateIgnoresHeadingsAndFragments(t *testing.T) {
	draft := "# New Heading Without Citation Here\n\nCellProfiler is software for biologists. Short new bit. It is widely used."
	res := Validate(original, draft, records)
	assert.Empty(t, res.Issues)
	assert.Equal(t, draft, res.Text)
}

func TestValidateFixedPoint(t *testing.T) {
	drafts := []string{
		"CellProfiler is software for biologists [OA7]. CellProfiler measures phenotypes in microscopy images. " +
			"The weather in Paris was lovely today.\n\nIt is widely used.",
		"CellProfiler measures phenotypes [OA1] on many datasets [7]. Deep learning segments cells [oa2].",
		"Completely unrelated claim about volcanoes erupting. [OA3]\n\n- a list item about deep learning segmentation of cells\n",
		original,
		"",
	}
	for _, draft := range drafts {
		first := Validate(original, draft, records)
		second := Validate(original, first.Text, records)
		assert.Empty(t, second.Issues, "draft %q", draft)
		assert.Equal(t, first.Text, second.Text)

		base := citation.NewBaseline(original)
		for _, s := range citation.Split(first.Text) {
			if s.Text == "" || base.Contains(s.Text) || !factual(s.Text) {
				continue
			}
			assert.True(t, citation.HasMarker(s.Text), "unmarked sentence %q", s.Text)
		}
	}
}

func TestValidateRepairExample(t *testing.T) {
	draft := "CellProfiler is software for biologists [OA7]. CellProfiler measures phenotypes in microscopy images. " +
		"The weather in Paris was lovely today.\n\nIt is widely used."
	res := Validate(original, draft, records)
	assert.Equal(t, "CellProfiler is software for biologists. CellProfiler measures phenotypes in microscopy images [OA1].\n\nIt is widely used.", res.Text)
	assert.Len(t, res.Issues, 3)
}

func TestFactual(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Cells grow quickly here.", true},
		{"Cells grow quickly [OA1].", false},
		{"## Results and discussion section", false},
		{"Too short.", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, factual(tt.in), tt.in)
	}
}

func TestStageRun(t *testing.T) {
	store := record.New(original)
	_, err := NewStage(nil).Run(context.Background(), store)
	require.ErrorIs(t, err, record.ErrMissingArtifact)

	store.Commit(record.NewEvidence(records))
	store.Commit(record.NewDraft("CellProfiler is software for biologists [OA1]. The weather in Paris was lovely today. It is widely used."))

	a, err := NewStage(nil).Run(context.Background(), store)
	require.NoError(t, err)
	store.Commit(a)
	assert.Equal(t, "CellProfiler is software for biologists [OA1]. It is widely used.", store.Draft())
}
