package llm

import "fmt"

// Pricing holds per-token USD costs for a model.
type Pricing struct {
	InputCostPerToken  float64
	OutputCostPerToken float64
}

// modelCost is the static pricing catalog. Keys are bare model names without
// provider prefixes; LookupPricing strips prefixes before consulting it.
// Prices are per token (not per million).
var modelCost = map[string]Pricing{
	// OpenAI
	"gpt-4.1":      {InputCostPerToken: 2.00e-6, OutputCostPerToken: 8.00e-6},
	"gpt-4.1-mini": {InputCostPerToken: 0.40e-6, OutputCostPerToken: 1.60e-6},
	"gpt-4.1-nano": {InputCostPerToken: 0.10e-6, OutputCostPerToken: 0.40e-6},
	"gpt-4o":       {InputCostPerToken: 2.50e-6, OutputCostPerToken: 10.00e-6},
	"gpt-4o-mini":  {InputCostPerToken: 0.15e-6, OutputCostPerToken: 0.60e-6},
	"o1":           {InputCostPerToken: 15.00e-6, OutputCostPerToken: 60.00e-6},
	"o1-mini":      {InputCostPerToken: 1.10e-6, OutputCostPerToken: 4.40e-6},
	"o3-mini":      {InputCostPerToken: 1.10e-6, OutputCostPerToken: 4.40e-6},

	// Anthropic
	"claude-sonnet-4-20250514":   {InputCostPerToken: 3.00e-6, OutputCostPerToken: 15.00e-6},
	"claude-3-7-sonnet-20250219": {InputCostPerToken: 3.00e-6, OutputCostPerToken: 15.00e-6},
	"claude-3-5-haiku-20241022":  {InputCostPerToken: 0.80e-6, OutputCostPerToken: 4.00e-6},
	"claude-opus-4-20250514":     {InputCostPerToken: 15.00e-6, OutputCostPerToken: 75.00e-6},

	// Google
	"gemini-2.0-flash":      {InputCostPerToken: 0.10e-6, OutputCostPerToken: 0.40e-6},
	"gemini-2.5-pro":        {InputCostPerToken: 1.25e-6, OutputCostPerToken: 10.00e-6},
	"gemini-2.5-flash":      {InputCostPerToken: 0.30e-6, OutputCostPerToken: 2.50e-6},
	"gemini-2.0-flash-lite": {InputCostPerToken: 0.075e-6, OutputCostPerToken: 0.30e-6},

	// Mistral
	"mistral-large-latest": {InputCostPerToken: 2.00e-6, OutputCostPerToken: 6.00e-6},
	"mistral-small-latest": {InputCostPerToken: 0.10e-6, OutputCostPerToken: 0.30e-6},

	// Groq-hosted
	"llama-3.3-70b-versatile": {InputCostPerToken: 0.59e-6, OutputCostPerToken: 0.79e-6},
	"llama-3.1-8b-instant":    {InputCostPerToken: 0.05e-6, OutputCostPerToken: 0.08e-6},
}

// LookupPricing returns pricing for a model, trying the identifier as given
// and then without its provider prefix.
func LookupPricing(model string) (Pricing, bool) {
	if p, ok := modelCost[model]; ok {
		return p, true
	}
	if p, ok := modelCost[StripProviderPrefix(model)]; ok {
		return p, true
	}
	return Pricing{}, false
}

// CompletionCost computes the USD cost of a completion response shaped like
// the chat-completion wire format (a "model" field plus a "usage" block).
// Synthetic responses accumulated from streams work too. Callers treat a
// failure here as zero cost; it never fails a request.
func CompletionCost(response map[string]any) (float64, error) {
	model, _ := response["model"].(string)
	if model == "" {
		return 0, fmt.Errorf("completion cost: response has no model")
	}
	pricing, ok := LookupPricing(model)
	if !ok {
		return 0, fmt.Errorf("completion cost: no pricing for model %q", model)
	}

	usage, ok := response["usage"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("completion cost: response has no usage block")
	}
	prompt := numberField(usage, "prompt_tokens")
	completion := numberField(usage, "completion_tokens")
	return prompt*pricing.InputCostPerToken + completion*pricing.OutputCostPerToken, nil
}

// numberField reads a numeric JSON field that may have decoded as float64 or
// been set as an int by accumulation code.
func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
