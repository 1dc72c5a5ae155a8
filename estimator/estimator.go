// Package estimator prices a query before dispatch. The estimate is only an
// admission-control number: the upstream ledger delta after the call is the
// source of truth for billing.
package estimator

import (
	"github.com/shopspring/decimal"
)

// ~4 chars per token is close enough for an admission estimate.
const charsPerToken = 4

var (
	defaultBaseRate  = decimal.RequireFromString("0.001")
	defaultTokenRate = decimal.RequireFromString("0.0001")
)

// modelRates maps a model identifier to its base fee and per-token rate.
// Unknown models fall back to the defaults. Very simple for now; ultimately
// prompt and completion tokens will need different rates.
var modelRates = map[string]struct {
	base     decimal.Decimal
	perToken decimal.Decimal
}{
	"qwen2.5-7b":   {base: decimal.RequireFromString("0.001"), perToken: decimal.RequireFromString("0.0001")},
	"llama3.1-8b":  {base: decimal.RequireFromString("0.001"), perToken: decimal.RequireFromString("0.0001")},
	"llama3.1-70b": {base: decimal.RequireFromString("0.005"), perToken: decimal.RequireFromString("0.0008")},
	"deepseek-r1":  {base: decimal.RequireFromString("0.008"), perToken: decimal.RequireFromString("0.001")},
}

// EstimateTokens approximates the token count of a query.
func EstimateTokens(query string) int64 {
	// base overhead for the request framing
	return int64(len(query))/charsPerToken + 3
}

// Estimate returns the reservation amount for dispatching query against
// model. Deterministic and positive for any non-empty query.
func Estimate(model, query string) decimal.Decimal {
	base, perToken := defaultBaseRate, defaultTokenRate
	if rates, ok := modelRates[model]; ok {
		base, perToken = rates.base, rates.perToken
	}
	tokens := decimal.NewFromInt(EstimateTokens(query))
	return base.Add(perToken.Mul(tokens))
}
