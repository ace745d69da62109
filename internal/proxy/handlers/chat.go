package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/puente-ai/puente/internal/config"
	"github.com/puente-ai/puente/internal/llm"
	"github.com/puente-ai/puente/internal/logging"
	"github.com/puente-ai/puente/internal/proxy/engine"
	"github.com/puente-ai/puente/internal/util"
)

// ChatCompletionsHandler serves the OpenAI-compatible chat completions
// endpoint: resolve the alias, hand off to the engine. Resolution failures
// are themselves ledger-recorded so the dashboard sees every attempt.
func ChatCompletionsHandler(table *config.Table, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logging.FromRequest(r)
		r = r.WithContext(logging.WithRequestID(r.Context(), requestID))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", "Failed to read request body", "invalid_body")
			return
		}
		var data map[string]any
		if err := json.Unmarshal(body, &data); err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", "Request body is not valid JSON", "invalid_json")
			return
		}
		alias, _ := data["model"].(string)
		if alias == "" {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", "Model is required", "missing_model")
			return
		}

		if util.IsVerbose() {
			log.Printf("[%s] → LLM Request: %s | %s", requestID, alias, util.TruncateBytes(body))
		} else {
			streamTag := ""
			if stream, _ := data["stream"].(bool); stream {
				streamTag = " [streaming]"
			}
			log.Printf("[%s] → LLM Request: %s%s", requestID, alias, streamTag)
		}

		resolved, err := table.Resolve(alias, data)
		if err != nil {
			durationMs := time.Since(start).Milliseconds()
			var notFound *config.ModelNotFoundError
			var disabled *config.ModelDisabledError
			switch {
			case errors.As(err, &notFound):
				eng.RecordFailure(alias, "unknown", durationMs, data, "UnknownModel: "+err.Error())
				log.Printf("[%s] ✗ LLM Response: %s (unknown) | %dms | Error: UnknownModel", requestID, alias, durationMs)
				engine.WriteError(w, http.StatusNotFound, "invalid_request_error", err.Error(), "model_not_found")
			case errors.As(err, &disabled):
				eng.RecordFailure(alias, llm.InferProviderFromModel(alias), durationMs, data, "ModelDisabled: "+err.Error())
				log.Printf("[%s] ✗ LLM Response: %s | %dms | Error: ModelDisabled", requestID, alias, durationMs)
				engine.WriteError(w, http.StatusForbidden, "invalid_request_error", err.Error(), "model_disabled")
			default:
				eng.RecordFailure(alias, "unknown", durationMs, data, "UnexpectedError: "+err.Error())
				engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			}
			return
		}

		eng.Execute(w, r, resolved, data)
	}
}
