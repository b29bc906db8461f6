package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}

	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("LLM metrics have agent and model tags", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&PerfLLMCall,
			&StatsLLMCallsFailed,
			&StatsLLMCallsSucceeded,
			&StatsLLMInputTokens,
			&StatsLLMMessagesSent,
			&StatsLLMOutputTokens,
			&StatsLLMTotalTokens,
		} {
			assert.Equal(t, []string{"agent", "model"}, m.RequiredTags, m.Name)
		}
	})

	t.Run("Tool metrics have tool tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&PerfToolCall,
			&StatsToolCallsSucceeded,
			&StatsToolCallsFailed,
			&StatsToolCallsNotFound,
		} {
			assert.Contains(t, m.RequiredTags, "tool", m.Name)
		}
	})

	t.Run("MCP metrics have server tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&PerfMCPSessionOpen,
			&StatsMCPSessionsFailed,
			&StatsMCPSessionsOpened,
			&StatsMCPTokenExchangesFailed,
			&StatsMCPTokenExchangesSucceeded,
		} {
			assert.Equal(t, "server", m.RequiredTags[0], m.Name)
		}
	})
}
