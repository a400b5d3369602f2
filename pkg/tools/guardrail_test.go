package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
)

func testGuardrailConfig() *config.GuardrailConfig {
	return &config.GuardrailConfig{
		MaxEstimatedCostUSD:  0.50,
		MaxErrorRate:         0.5,
		MinCallsForErrorRate: 4,
	}
}

func TestGuardrailCostRule(t *testing.T) {
	g := NewGuardrail(testGuardrailConfig())
	g.Record("s1", false, 0.30)

	_, _, fired := g.Evaluate("s1")
	assert.False(t, fired)
	assert.False(t, g.WebSearchDisabled("s1"))

	g.Record("s1", false, 0.30)
	rule, details, fired := g.Evaluate("s1")
	require.True(t, fired)
	assert.Equal(t, RuleEstimatedCostExceeded, rule)
	assert.True(t, g.WebSearchDisabled("s1"))
	assert.Equal(t, 2, details["total_calls"])
	assert.InDelta(t, 0.0, details["error_rate"], 1e-9)
	assert.InDelta(t, 0.6, details["estimated_cost_usd"], 1e-9)

	// The rule fires once; websearch stays withdrawn.
	_, _, fired = g.Evaluate("s1")
	assert.False(t, fired)
	assert.True(t, g.WebSearchDisabled("s1"))
}

func TestGuardrailErrorRateRule(t *testing.T) {
	g := NewGuardrail(testGuardrailConfig())
	g.Record("s1", true, 0.001)
	g.Record("s1", true, 0.001)
	g.Record("s1", true, 0.001)

	// Below the minimum call count the rule stays quiet.
	_, _, fired := g.Evaluate("s1")
	assert.False(t, fired)

	g.Record("s1", false, 0.001)
	rule, details, fired := g.Evaluate("s1")
	require.True(t, fired)
	assert.Equal(t, RuleErrorRateExceeded, rule)
	assert.Equal(t, 4, details["total_calls"])
	assert.InDelta(t, 0.75, details["error_rate"], 1e-9)
}

func TestGuardrailEachRuleFiresOnce(t *testing.T) {
	g := NewGuardrail(testGuardrailConfig())
	for i := 0; i < 4; i++ {
		g.Record("s1", true, 0.20)
	}

	// Both rules hit; cost wins the first evaluation.
	rule, _, fired := g.Evaluate("s1")
	require.True(t, fired)
	assert.Equal(t, RuleEstimatedCostExceeded, rule)

	rule, _, fired = g.Evaluate("s1")
	require.True(t, fired)
	assert.Equal(t, RuleErrorRateExceeded, rule)

	_, _, fired = g.Evaluate("s1")
	assert.False(t, fired)
}

func TestGuardrailZeroThresholdDisablesRule(t *testing.T) {
	g := NewGuardrail(&config.GuardrailConfig{
		MaxEstimatedCostUSD:  0,
		MaxErrorRate:         0.5,
		MinCallsForErrorRate: 4,
	})
	g.Record("s1", false, 100)

	_, _, fired := g.Evaluate("s1")
	assert.False(t, fired)
	assert.False(t, g.WebSearchDisabled("s1"))
}

func TestGuardrailSessionIsolation(t *testing.T) {
	g := NewGuardrail(testGuardrailConfig())
	g.Record("s1", false, 1.0)
	_, _, fired := g.Evaluate("s1")
	require.True(t, fired)

	assert.False(t, g.WebSearchDisabled("s2"))
	_, _, fired = g.Evaluate("s2")
	assert.False(t, fired)
}

func TestGuardrailEndSession(t *testing.T) {
	g := NewGuardrail(testGuardrailConfig())
	g.Record("s1", false, 1.0)
	_, _, fired := g.Evaluate("s1")
	require.True(t, fired)

	g.EndSession("s1")
	assert.False(t, g.WebSearchDisabled("s1"))
	_, _, fired = g.Evaluate("s1")
	assert.False(t, fired)
}
