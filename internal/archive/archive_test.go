// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/internal/evidence"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

var sampleRecords = []types.EvidenceRecord{
	{
		ID: "OA1", Topic: "cellprofiler", URL: "https://doi.org/10.1186/gb-2006-7-10-r100",
		Title: "CellProfiler: image analysis software", Authors: []string{"Carpenter, Anne E."},
		Year: 2006, Venue: "Genome Biology",
		KeyFindings: []string{"Measures cell phenotypes."}, Relevance: "Primary description.",
	},
	{
		ID: "OA2", Topic: "image analysis", URL: "https://example.org/ij", Title: "NIH Image to ImageJ",
		KeyFindings: []string{"Open-source 100% free imaging."}, Relevance: "History of tooling.",
		Quote: "ImageJ",
	},
}

func completedStore() *record.Store {
	s := record.New("Draft text.")
	s.Commit(record.NewEvidence(sampleRecords))
	s.Commit(record.NewReferences([]string{"[OA1] a", "[OA2] b"}))
	s.Commit(record.NewDraft("Draft text [OA1]."))
	return s
}

func TestNewRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := NewRun(started, completedStore(), pipeline.Report{}, nil)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, "Draft text [OA1].", run.Output)
	assert.Equal(t, "Draft text.", run.Input)

	err := &pipeline.StageError{Stage: "search", Kind: pipeline.KindExhausted, Err: errors.New("boom")}
	aborted := NewRun(started, record.New("Draft text."), pipeline.Report{}, err)
	assert.Equal(t, StatusAborted, aborted.Status)
	assert.Equal(t, "search", aborted.FailedStage)
	assert.Equal(t, pipeline.KindExhausted, aborted.Kind)
	assert.Empty(t, aborted.Output)

	other := NewRun(started, record.New("x"), pipeline.Report{}, errors.New("config"))
	assert.Equal(t, pipeline.KindFatal, other.Kind)
	assert.NotEqual(t, run.ID, aborted.ID)
}

func TestSaveAndGet(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	report := pipeline.Report{Stages: []pipeline.StageReport{
		{Stage: "search", Status: pipeline.StatusOK, Artifact: record.SearchResults, Attempts: 3, Duration: 2 * time.Second},
	}}
	run := NewRun(time.Now(), completedStore(), report, nil)
	require.NoError(t, a.Save(ctx, run))

	got, err := a.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Output, got.Output)
	assert.Equal(t, sampleRecords, got.Evidence)
	assert.Equal(t, []string{"[OA1] a", "[OA2] b"}, got.References)
	assert.Equal(t, report, got.Report)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))

	byPrefix, err := a.Get(ctx, run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, byPrefix.ID)
}

func TestGetNotFoundAndAmbiguous(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	_, err := a.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{"abc-1", "abc-2"} {
		run := NewRun(time.Now(), record.New("d"), pipeline.Report{}, nil)
		run.ID = id
		require.NoError(t, a.Save(ctx, run))
	}
	_, err = a.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	got, err := a.Get(ctx, "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-2", got.ID)
}

func TestList(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := NewRun(base, completedStore(), pipeline.Report{}, nil)
	newer := NewRun(base.Add(time.Hour), record.New("d"), pipeline.Report{},
		&pipeline.StageError{Stage: "search", Kind: pipeline.KindExhausted, Err: errors.New("x")})
	require.NoError(t, a.Save(ctx, older))
	require.NoError(t, a.Save(ctx, newer))

	runs, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, StatusAborted, runs[0].Status)
	assert.Equal(t, "search", runs[0].FailedStage)
	assert.Equal(t, 2, runs[1].Records)

	runs, err = a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSearch(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	run := NewRun(time.Now(), completedStore(), pipeline.Report{}, nil)
	require.NoError(t, a.Save(ctx, run))

	tests := []struct {
		query string
		want  []string
	}{
		{"imagej", []string{"OA2"}},
		{"PHENOTYPES", []string{"OA1"}},
		{"image", []string{"OA1", "OA2"}},
		{"100%", []string{"OA2"}},
		{"_", nil},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits, err := a.Search(ctx, tt.query, 10)
			require.NoError(t, err)
			var ids []string
			for _, h := range hits {
				assert.Equal(t, run.ID, h.RunID)
				ids = append(ids, h.Record.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestExport(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	run := NewRun(time.Now(), completedStore(), pipeline.Report{}, nil)
	require.NoError(t, a.Save(ctx, run))

	var buf bytes.Buffer
	require.NoError(t, a.Export(ctx, run.ID, FormatYAML, &buf))
	var decoded Run
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, run.ID, decoded.ID)
	assert.Equal(t, sampleRecords, decoded.Evidence)

	buf.Reset()
	require.NoError(t, a.Export(ctx, run.ID, FormatCSL, &buf))
	assert.Contains(t, buf.String(), "DOI: 10.1186/gb-2006-7-10-r100")
	assert.Contains(t, buf.String(), "family: Carpenter")

	buf.Reset()
	require.NoError(t, a.Export(ctx, run.ID, FormatEvidence, &buf))
	records, err := evidence.UnmarshalRecords(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)

	assert.ErrorContains(t, a.Export(ctx, run.ID, "bibtex", &buf), "unknown export format")
	assert.ErrorIs(t, a.Export(ctx, "nope", FormatCSL, &buf), ErrNotFound)
}
