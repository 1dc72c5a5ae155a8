package estimator

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(3), EstimateTokens(""))
	assert.Equal(t, int64(4), EstimateTokens("abcd"))
	assert.Equal(t, int64(28), EstimateTokens(strings.Repeat("x", 100)))
}

func TestEstimateKnownModel(t *testing.T) {
	// 100 chars -> 28 tokens -> 0.001 + 28*0.0001
	estimate := Estimate("qwen2.5-7b", strings.Repeat("x", 100))
	assert.True(t, estimate.Equal(decimal.RequireFromString("0.0038")), "estimate %s", estimate)
}

func TestEstimateUnknownModelUsesDefaults(t *testing.T) {
	known := Estimate("qwen2.5-7b", "hello")
	unknown := Estimate("some-future-model", "hello")
	assert.True(t, known.Equal(unknown))
}

func TestLargerModelsCostMore(t *testing.T) {
	query := strings.Repeat("x", 400)
	small := Estimate("llama3.1-8b", query)
	large := Estimate("llama3.1-70b", query)
	assert.True(t, large.GreaterThan(small))
}

func TestEstimateIsPositiveAndDeterministic(t *testing.T) {
	first := Estimate("deepseek-r1", "same query")
	second := Estimate("deepseek-r1", "same query")
	assert.True(t, first.IsPositive())
	assert.True(t, first.Equal(second))
}
