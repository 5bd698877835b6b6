package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIDRoundTrip(t *testing.T) {
	for _, n := range []int{1, 7, 42, 1000} {
		got, ok := ParseRecordID(RecordID(n))
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func TestParseRecordIDRejects(t *testing.T) {
	for _, id := range []string{"", "OA", "OA0", "OA-1", "oa3", "X3", "OA3a"} {
		_, ok := ParseRecordID(id)
		assert.False(t, ok, id)
	}
}

func TestSortRecordIDs(t *testing.T) {
	ids := []string{"OA10", "OA2", "bogus", "OA1"}
	SortRecordIDs(ids)
	assert.Equal(t, []string{"OA1", "OA2", "OA10", "bogus"}, ids)
}

func TestValidateEvidenceRecord(t *testing.T) {
	valid := EvidenceRecord{
		ID:          "OA1",
		Topic:       "phenotyping",
		URL:         "https://doi.org/10.1/x",
		Title:       "A title",
		KeyFindings: []string{"finding"},
		Relevance:   "supports the draft",
	}
	require.NoError(t, Validate(valid))

	missing := valid
	missing.KeyFindings = nil
	missing.Relevance = ""
	err := Validate(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_findings")
	assert.Contains(t, err.Error(), "relevance")

	badID := valid
	badID.ID = "X1"
	assert.Error(t, Validate(badID))

	badYear := valid
	badYear.Year = 12
	assert.Error(t, Validate(badYear))
}

func TestValidateTopicBrief(t *testing.T) {
	brief := TopicBrief{
		Topic:           "genome",
		Takeaways:       []string{"a [OA1]", "b [OA2]", "c [OA1]", "d [OA2]"},
		SupportingCards: []string{"OA1", "OA2"},
	}
	assert.Error(t, Validate(brief), "more than three takeaways")

	brief.Takeaways = brief.Takeaways[:2]
	assert.NoError(t, Validate(brief))
}

func TestSearchResultsAccessors(t *testing.T) {
	r := SearchResults{Entries: []TopicSources{
		{Topic: "a", Sources: []Source{{URL: "u1"}, {URL: "u2"}}},
		{Topic: "b"},
	}}
	assert.Equal(t, []Topic{"a", "b"}, r.Topics())
	assert.Equal(t, []string{"u1", "u2"}, r.URLs("a"))
	assert.Empty(t, r.URLs("b"))
	assert.Nil(t, r.Sources("missing"))
	assert.Equal(t, 2, r.Len())
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero llm timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "scholar" }},
		{"zero per topic", func(c *Config) { c.Search.PerTopic = 0 }},
		{"zero workers", func(c *Config) { c.Search.Workers = 0 }},
		{"zero search timeout", func(c *Config) { c.Search.Timeout = 0 }},
		{"zero retries", func(c *Config) { c.Retry.MaxRetries = 0 }},
		{"negative delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
