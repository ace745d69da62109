package engine

// accumulator rebuilds a full chat.completion response from stream chunks:
// concatenated assistant content, the last finish reason, and the final
// usage block. The synthetic response feeds cost calculation and the ledger
// after the stream ends.
type accumulator struct {
	id           string
	model        string
	created      any
	content      string
	finishReason any
	usage        map[string]any
}

// newAccumulator seeds the synthetic response with the provider-prefixed
// model id so the pricing lookup works even when chunks omit the model.
func newAccumulator(model string) *accumulator {
	return &accumulator{model: model}
}

func (a *accumulator) Add(chunk map[string]any) {
	if id, ok := chunk["id"].(string); ok && id != "" {
		a.id = id
	}
	if created, ok := chunk["created"]; ok && created != nil {
		a.created = created
	}
	if usage, ok := chunk["usage"].(map[string]any); ok && usage != nil {
		a.usage = usage
	}
	choices, ok := chunk["choices"].([]any)
	if !ok || len(choices) == 0 {
		return
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return
	}
	if delta, ok := choice["delta"].(map[string]any); ok {
		if content, ok := delta["content"].(string); ok {
			a.content += content
		}
	}
	if reason, ok := choice["finish_reason"]; ok && reason != nil {
		a.finishReason = reason
	}
}

// Response renders the accumulated chunks as a chat.completion object.
func (a *accumulator) Response() map[string]any {
	usage := a.usage
	if usage == nil {
		// Providers that never sent usage yield zero tokens and zero cost.
		usage = map[string]any{
			"prompt_tokens":     0,
			"completion_tokens": 0,
			"total_tokens":      0,
		}
	}
	resp := map[string]any{
		"id":     a.id,
		"object": "chat.completion",
		"model":  a.model,
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": a.content,
				},
				"finish_reason": a.finishReason,
			},
		},
		"usage": usage,
	}
	if a.created != nil {
		resp["created"] = a.created
	}
	return resp
}
