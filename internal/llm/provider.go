package llm

import "strings"

// InferProviderFromModel maps a model identifier to a provider tag. Prefixed
// identifiers ("openai/gpt-4.1") win; bare names fall back to well-known
// naming patterns. Unrecognized names return "unknown".
func InferProviderFromModel(model string) string {
	if model == "" {
		return "unknown"
	}
	if i := strings.Index(model, "/"); i > 0 {
		return strings.ToLower(model[:i])
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-"),
		strings.HasPrefix(lower, "o1-"),
		strings.HasPrefix(lower, "text-davinci"),
		strings.HasPrefix(lower, "text-curie"):
		return "openai"
	case strings.Contains(lower, "claude"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini"), strings.HasPrefix(lower, "palm"):
		return "google"
	case strings.HasPrefix(lower, "mistral"):
		return "mistral"
	case strings.HasPrefix(lower, "llama"):
		return "meta"
	}
	return "unknown"
}

// StripProviderPrefix removes a leading "provider/" tag, returning the bare
// model name the upstream API expects.
func StripProviderPrefix(model string) string {
	if i := strings.Index(model, "/"); i > 0 {
		return model[i+1:]
	}
	return model
}
