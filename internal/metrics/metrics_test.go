package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestWriteTextfile(t *testing.T) {
	Register()
	StageRunsTotal.WithLabelValues("search", "ok").Inc()

	path := filepath.Join(t.TempDir(), "cite.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cite_engine_stage_runs_total")
}

func TestCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("openalex", "error"))
	SearchRequestsTotal.WithLabelValues("openalex", "error").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("openalex", "error")))
}
