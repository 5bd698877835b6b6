package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cite-engine/internal/archive"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, types.DefaultConfig())
	v.SetEnvPrefix("CITE_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig().Search, cfg.Search)
	assert.Equal(t, types.DefaultConfig().Retry, cfg.Retry)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CITE_ENGINE_LLM_PROVIDER", "openai")
	t.Setenv("CITE_ENGINE_RETRY_BASE_DELAY", "250ms")
	t.Setenv("CITE_ENGINE_SEARCH_WORKERS", "8")

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, types.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 8, cfg.Search.Workers)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("CITE_ENGINE_RETRY_MAX_RETRIES", "0")
	_, err := loadConfig(newViper())
	assert.ErrorContains(t, err, "max_retries")
}

func TestWriteResult(t *testing.T) {
	store := record.New("Draft.")
	store.Commit(record.NewDraft("Draft [OA1]."))
	store.Commit(record.NewReferences([]string{"[OA1] T. https://x"}))

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, store, true))
	assert.Equal(t, "Draft [OA1].\n\n## References\n\n[OA1] T. https://x\n", buf.String())

	buf.Reset()
	require.NoError(t, writeResult(&buf, store, false))
	assert.Equal(t, "Draft [OA1].\n", buf.String())
}

func TestWriteResultFile(t *testing.T) {
	store := record.New("Draft.")
	store.Commit(record.NewDraft("Draft [OA1]."))
	store.Commit(record.NewReferences([]string{"[OA1] T. https://x"}))

	path := filepath.Join(t.TempDir(), "out.md")
	require.NoError(t, writeResultFile(path, store, true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Draft [OA1].\n\n## References\n\n[OA1] T. https://x\n", string(data))

	assert.ErrorContains(t, writeResultFile(filepath.Join(t.TempDir(), "missing", "out.md"), store, true), "creating output file")
}

func TestWriteResultFileReportsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	store := record.New("Draft.")
	assert.Error(t, writeResultFile("/dev/full", store, true))
}

func TestFormatRun(t *testing.T) {
	run := archive.Run{
		ID: "r1", Status: archive.StatusAborted, FailedStage: "search", Kind: pipeline.KindExhausted,
		Input: "Original.",
		Report: pipeline.Report{Stages: []pipeline.StageReport{
			{Stage: "search", Status: pipeline.StatusFailed, Attempts: 4},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, formatRun(&buf, run))
	out := buf.String()
	assert.Contains(t, out, "Failed at search (exhausted)")
	assert.Contains(t, out, "attempts=4")
	assert.Contains(t, out, "No revised draft; input was:\n\nOriginal.")
}

func TestFormatRunList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatRunList(&buf, nil))
	assert.Equal(t, "No runs archived.\n", buf.String())

	buf.Reset()
	require.NoError(t, formatRunList(&buf, []archive.Summary{{ID: "abc", Status: archive.StatusCompleted, Records: 4}}))
	assert.Contains(t, buf.String(), "completed")
	assert.Contains(t, buf.String(), "1 runs")
}
