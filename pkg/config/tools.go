package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ToolsConfig holds tool mediation settings: rate limiting, invocation
// caching, and cost estimation pricing.
type ToolsConfig struct {
	// RateLimitQPS bounds tool calls per second within one session.
	RateLimitQPS int

	// WebSearchLimit is the fallback search budget for agents without a
	// dedicated limit.
	WebSearchLimit int

	// CacheTTL and CacheMaxEntries bound the invocation cache. Entries are
	// keyed per session, so one session never serves another's results.
	CacheTTL        time.Duration
	CacheMaxEntries int

	// InputPricePer1K / OutputPricePer1K drive the cost estimate in USD
	// when no per-model override applies.
	InputPricePer1K  float64
	OutputPricePer1K float64

	// ModelPricing holds per-model price overrides, keyed by the
	// normalized model name (see ModelPriceKey).
	ModelPricing map[string]ModelPrice
}

// ModelPrice is a per-model pricing override in USD per 1K tokens. A zero
// side falls back to the global default.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// LoadToolsConfig reads tool mediation settings from the environment.
func LoadToolsConfig() (*ToolsConfig, error) {
	qps, err := getEnvInt("tools", "TOOL_RATE_LIMIT_QPS", 5)
	if err != nil {
		return nil, err
	}
	searchLimit, err := getEnvInt("tools", "WEB_SEARCH_LIMIT", 15)
	if err != nil {
		return nil, err
	}
	ttlSec, err := getEnvInt("tools", "TOOL_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	maxEntries, err := getEnvInt("tools", "TOOL_CACHE_MAX_ENTRIES", 128)
	if err != nil {
		return nil, err
	}
	inPrice, err := getEnvFloat("tools", "TOOL_ESTIMATED_INPUT_PRICE_USD_PER_1K", 0.0005)
	if err != nil {
		return nil, err
	}
	outPrice, err := getEnvFloat("tools", "TOOL_ESTIMATED_OUTPUT_PRICE_USD_PER_1K", 0.0020)
	if err != nil {
		return nil, err
	}
	pricing, err := loadModelPricing()
	if err != nil {
		return nil, err
	}

	cfg := &ToolsConfig{
		RateLimitQPS:     qps,
		WebSearchLimit:   searchLimit,
		CacheTTL:         time.Duration(ttlSec) * time.Second,
		CacheMaxEntries:  maxEntries,
		InputPricePer1K:  inPrice,
		OutputPricePer1K: outPrice,
		ModelPricing:     pricing,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const (
	modelPricePrefix       = "TOOL_ESTIMATED_PRICE_"
	modelPriceInputSuffix  = "_INPUT_USD_PER_1K"
	modelPriceOutputSuffix = "_OUTPUT_USD_PER_1K"
)

// loadModelPricing collects per-model price overrides of the form
// TOOL_ESTIMATED_PRICE_{MODEL}_INPUT_USD_PER_1K and its _OUTPUT_ twin,
// where {MODEL} is the normalized model name.
func loadModelPricing() (map[string]ModelPrice, error) {
	pricing := make(map[string]ModelPrice)
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(key, modelPricePrefix)
		if !ok {
			continue
		}

		var model string
		var isInput bool
		if m, found := strings.CutSuffix(rest, modelPriceInputSuffix); found {
			model, isInput = m, true
		} else if m, found := strings.CutSuffix(rest, modelPriceOutputSuffix); found {
			model, isInput = m, false
		} else {
			continue
		}
		if model == "" {
			continue
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || price < 0 {
			return nil, NewValidationError("tools", "", key, ErrInvalidValue)
		}
		p := pricing[model]
		if isInput {
			p.InputPer1K = price
		} else {
			p.OutputPer1K = price
		}
		pricing[model] = p
	}
	return pricing, nil
}

// PriceFor resolves the per-1K token prices for a model, preferring a
// per-model override when one was configured.
func (c *ToolsConfig) PriceFor(model string) (inputPer1K, outputPer1K float64) {
	inputPer1K, outputPer1K = c.InputPricePer1K, c.OutputPricePer1K
	if p, ok := c.ModelPricing[ModelPriceKey(model)]; ok {
		if p.InputPer1K > 0 {
			inputPer1K = p.InputPer1K
		}
		if p.OutputPer1K > 0 {
			outputPer1K = p.OutputPer1K
		}
	}
	return inputPer1K, outputPer1K
}

// ModelPriceKey normalizes a model name the way the pricing env keys spell
// it: uppercased, with every non-alphanumeric character replaced by an
// underscore.
func ModelPriceKey(model string) string {
	var b strings.Builder
	b.Grow(len(model))
	for _, r := range strings.ToUpper(model) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (c *ToolsConfig) validate() error {
	if c.RateLimitQPS < 1 {
		return NewValidationError("tools", "", "TOOL_RATE_LIMIT_QPS", ErrInvalidValue)
	}
	if c.CacheTTL < 0 {
		return NewValidationError("tools", "", "TOOL_CACHE_TTL_SECONDS", ErrInvalidValue)
	}
	if c.CacheMaxEntries < 1 {
		return NewValidationError("tools", "", "TOOL_CACHE_MAX_ENTRIES", ErrInvalidValue)
	}
	if c.InputPricePer1K < 0 || c.OutputPricePer1K < 0 {
		return NewValidationError("tools", "", "TOOL_ESTIMATED_INPUT_PRICE_USD_PER_1K", ErrInvalidValue)
	}
	return nil
}

// GuardrailConfig holds the per-session tool budget rules. A zero threshold
// disables the corresponding rule.
type GuardrailConfig struct {
	// MaxEstimatedCostUSD trips estimated_cost_exceeded when the session's
	// accumulated estimate passes it.
	MaxEstimatedCostUSD float64

	// MaxErrorRate trips error_rate_exceeded when the session error rate
	// passes it AND at least MinCallsForErrorRate calls were made.
	MaxErrorRate         float64
	MinCallsForErrorRate int
}

// LoadGuardrailConfig reads guardrail settings from the environment.
func LoadGuardrailConfig() (*GuardrailConfig, error) {
	maxCost, err := getEnvFloat("guardrails", "TOOL_GUARDRAIL_MAX_ESTIMATED_COST_USD", 0.50)
	if err != nil {
		return nil, err
	}
	maxErrRate, err := getEnvFloat("guardrails", "TOOL_GUARDRAIL_MAX_ERROR_RATE", 0.5)
	if err != nil {
		return nil, err
	}
	minCalls, err := getEnvInt("guardrails", "TOOL_GUARDRAIL_MIN_CALLS_FOR_ERROR_RATE", 4)
	if err != nil {
		return nil, err
	}

	cfg := &GuardrailConfig{
		MaxEstimatedCostUSD:  maxCost,
		MaxErrorRate:         maxErrRate,
		MinCallsForErrorRate: minCalls,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *GuardrailConfig) validate() error {
	if c.MaxEstimatedCostUSD < 0 {
		return NewValidationError("guardrails", "", "TOOL_GUARDRAIL_MAX_ESTIMATED_COST_USD", ErrInvalidValue)
	}
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		return NewValidationError("guardrails", "", "TOOL_GUARDRAIL_MAX_ERROR_RATE", ErrInvalidValue)
	}
	if c.MinCallsForErrorRate < 1 {
		return NewValidationError("guardrails", "", "TOOL_GUARDRAIL_MIN_CALLS_FOR_ERROR_RATE", ErrInvalidValue)
	}
	return nil
}
