package handlers

import (
	"math"
	"net/http"

	"github.com/puente-ai/puente/internal/config"
	"github.com/puente-ai/puente/internal/llm"
)

type modelInfo struct {
	Name                 string   `json:"name"`
	Model                string   `json:"model"`
	Provider             string   `json:"provider"`
	Enabled              bool     `json:"enabled"`
	InputCostPerMillion  *float64 `json:"input_cost_per_million"`
	OutputCostPerMillion *float64 `json:"output_cost_per_million"`
}

// ModelsHandler lists the configured aliases with provider tags and
// per-million pricing where the catalog knows the model.
func ModelsHandler(table *config.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := []modelInfo{}
		for _, route := range table.Routes() {
			info := modelInfo{
				Name:     route.Alias,
				Model:    route.Model,
				Provider: llm.InferProviderFromModel(route.Model),
				Enabled:  route.IsEnabled(),
			}
			if pricing, ok := llm.LookupPricing(route.Model); ok {
				info.InputCostPerMillion = perMillion(pricing.InputCostPerToken)
				info.OutputCostPerMillion = perMillion(pricing.OutputCostPerToken)
			}
			models = append(models, info)
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": models})
	}
}

func perMillion(perToken float64) *float64 {
	if perToken == 0 {
		return nil
	}
	v := math.Round(perToken*1e6*100) / 100
	return &v
}
