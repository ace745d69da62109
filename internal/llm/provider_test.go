package llm

import "testing"

func TestInferProviderFromModel(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"openai/gpt-4.1", "openai"},
		{"anthropic/claude-sonnet-4-20250514", "anthropic"},
		{"gemini/gemini-2.0-flash", "gemini"},
		{"gpt-4o-mini", "openai"},
		{"o1-preview", "openai"},
		{"claude-3-5-haiku-20241022", "anthropic"},
		{"gemini-2.5-pro", "google"},
		{"palm-2", "google"},
		{"mistral-large-latest", "mistral"},
		{"llama-3.3-70b-versatile", "meta"},
		{"some-fine-tune", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := InferProviderFromModel(tc.model); got != tc.want {
			t.Errorf("InferProviderFromModel(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestStripProviderPrefix(t *testing.T) {
	if got := StripProviderPrefix("openai/gpt-4.1"); got != "gpt-4.1" {
		t.Fatalf("got %q", got)
	}
	if got := StripProviderPrefix("gpt-4.1"); got != "gpt-4.1" {
		t.Fatalf("got %q", got)
	}
}

func TestCompletionCost(t *testing.T) {
	resp := map[string]any{
		"model": "openai/gpt-4.1",
		"usage": map[string]any{
			"prompt_tokens":     float64(1000),
			"completion_tokens": float64(500),
		},
	}
	cost, err := CompletionCost(resp)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	want := 1000*2.00e-6 + 500*8.00e-6
	if diff := cost - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("cost = %v, want %v", cost, want)
	}
}

func TestCompletionCost_UnknownModel(t *testing.T) {
	_, err := CompletionCost(map[string]any{
		"model": "nobody/mystery-model",
		"usage": map[string]any{"prompt_tokens": float64(10)},
	})
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestCompletionCost_MissingUsage(t *testing.T) {
	_, err := CompletionCost(map[string]any{"model": "gpt-4.1"})
	if err == nil {
		t.Fatal("expected error when usage block is absent")
	}
}

func TestLookupPricing_StripsPrefix(t *testing.T) {
	direct, ok := LookupPricing("gpt-4o-mini")
	if !ok {
		t.Fatal("expected pricing for bare name")
	}
	prefixed, ok := LookupPricing("openai/gpt-4o-mini")
	if !ok {
		t.Fatal("expected pricing for prefixed name")
	}
	if direct != prefixed {
		t.Fatalf("prefix lookup mismatch: %v vs %v", direct, prefixed)
	}
}
