// Package engine executes resolved chat-completion requests against the
// provider client and guarantees exactly one ledger record per attempt.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/puente-ai/puente/internal/classify"
	"github.com/puente-ai/puente/internal/config"
	"github.com/puente-ai/puente/internal/ledger"
	"github.com/puente-ai/puente/internal/llm"
	"github.com/puente-ai/puente/internal/logging"
)

// ChunkIterator yields decoded stream chunks until io.EOF or a provider
// error.
type ChunkIterator interface {
	Next() (map[string]any, error)
	Close() error
	Provider() string
}

// Completer is the provider client surface the engine consumes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (ChunkIterator, error)
}

// clientAdapter narrows *llm.Client's concrete stream type to ChunkIterator.
type clientAdapter struct {
	c *llm.Client
}

func (a clientAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return a.c.Complete(ctx, req)
}

func (a clientAdapter) Stream(ctx context.Context, req llm.Request) (ChunkIterator, error) {
	s, err := a.c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Adapt wraps the concrete provider client as a Completer.
func Adapt(c *llm.Client) Completer {
	return clientAdapter{c: c}
}

// Engine drives one request end to end: provider call, response relay,
// ledger write.
type Engine struct {
	client Completer
	store  *ledger.Store
}

func New(client Completer, store *ledger.Store) *Engine {
	return &Engine{client: client, store: store}
}

// Execute runs the resolved request and writes the outcome to both the
// client and the ledger. clientBody is the request as the client sent it,
// kept for the ledger (credentials are never part of it).
func (e *Engine) Execute(w http.ResponseWriter, r *http.Request, res *config.Resolved, clientBody map[string]any) {
	req := llm.Request{
		Model:      res.Model,
		APIKey:     res.APIKey,
		Timeout:    res.Timeout,
		NumRetries: res.NumRetries,
		Extra:      res.Params,
	}
	if wantStream(clientBody) {
		e.executeStream(w, r, res, req, clientBody)
		return
	}
	e.executeBlocking(w, r, res, req, clientBody)
}

func wantStream(body map[string]any) bool {
	v, _ := body["stream"].(bool)
	return v
}

// executeBlocking performs a non-streaming call. The provider call is not
// tied to the client connection: a caller that gives up early still gets
// its attempt recorded in the ledger.
func (e *Engine) executeBlocking(w http.ResponseWriter, r *http.Request, res *config.Resolved, req llm.Request, clientBody map[string]any) {
	start := time.Now()
	ctx := context.WithoutCancel(r.Context())
	prefix := logging.Prefix(ctx)

	resp, err := e.client.Complete(ctx, req)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		provider := llm.InferProviderFromModel(res.Model)
		e.record(res.Alias, provider, nil, durationMs, clientBody, err)
		log.Printf("%s✗ LLM Response: %s (%s) | %dms | Error: %v", prefix, res.Alias, provider, durationMs, err)
		WriteClassifiedError(w, err)
		return
	}

	provider := resp.Provider
	if provider == "" || provider == "unknown" {
		provider = llm.InferProviderFromModel(res.Model)
	}
	rec := e.record(res.Alias, provider, resp.Data, durationMs, clientBody, nil)
	log.Printf("%s✓ LLM Response: %s (%s) | %dms | %d→%d tokens (%d total) | $%.4f",
		prefix, res.Alias, provider, durationMs, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp.Data); err != nil {
		log.Printf("⚠️ Failed writing response for %s: %v", res.Alias, err)
	}
}

// executeStream relays SSE chunks to the client while accumulating a
// synthetic full response for the ledger. The upstream stream is always
// consumed to completion, even after the client disconnects, so the final
// usage block still lands in the ledger. The single deferred record covers
// every exit path.
func (e *Engine) executeStream(w http.ResponseWriter, r *http.Request, res *config.Resolved, req llm.Request, clientBody map[string]any) {
	start := time.Now()
	ctx := context.WithoutCancel(r.Context())
	prefix := logging.Prefix(ctx)

	stream, err := e.client.Stream(ctx, req)
	if err != nil {
		durationMs := time.Since(start).Milliseconds()
		provider := llm.InferProviderFromModel(res.Model)
		e.record(res.Alias, provider, nil, durationMs, clientBody, err)
		log.Printf("%s✗ LLM Response: %s (%s) | %dms | Error: %v", prefix, res.Alias, provider, durationMs, err)
		WriteClassifiedError(w, err)
		return
	}
	defer stream.Close()

	provider := stream.Provider()
	if provider == "" || provider == "unknown" {
		provider = llm.InferProviderFromModel(res.Model)
	}

	acc := newAccumulator(res.Model)
	var streamErr error

	defer func() {
		durationMs := time.Since(start).Milliseconds()
		rec := e.record(res.Alias, provider, acc.Response(), durationMs, clientBody, streamErr)
		if streamErr != nil {
			log.Printf("%s✗ LLM Response: %s (%s) | %dms | Error: %v [streaming]", prefix, res.Alias, provider, durationMs, streamErr)
		} else {
			log.Printf("%s✓ LLM Response: %s (%s) | %dms | %d→%d tokens (%d total) | $%.4f [streaming]",
				prefix, res.Alias, provider, durationMs, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, canFlush := w.(http.Flusher)

	clientGone := false
	emit := func(payload []byte) {
		if clientGone {
			return
		}
		if r.Context().Err() != nil {
			log.Printf("%sℹ️ Client disconnected during streaming: %s", prefix, res.Alias)
			clientGone = true
			return
		}
		if _, err := w.Write(payload); err != nil {
			log.Printf("%sℹ️ Client disconnected during streaming: %s", prefix, res.Alias)
			clientGone = true
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}

	for {
		chunk, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Provider failed mid-stream: best-effort error event, then the
			// terminator. The attempt is recorded as an error either way.
			streamErr = err
			cls := classify.Classify(err)
			event, _ := json.Marshal(errorBody("stream_error", classify.ExtractMessage(err), cls.Code))
			emit(append(append([]byte("data: "), event...), '\n', '\n'))
			break
		}
		acc.Add(chunk)
		frame, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		emit(append(append([]byte("data: "), frame...), '\n', '\n'))
	}

	emit([]byte("data: [DONE]\n\n"))
}

// record writes one ledger row for the attempt. Token counts and cost come
// from the response usage block when present; cost lookup failures are
// swallowed and recorded as zero. Ledger failures are logged, never
// propagated: the HTTP response has already been decided.
func (e *Engine) record(alias, provider string, response map[string]any, durationMs int64, clientBody map[string]any, callErr error) *ledger.Record {
	rec := &ledger.Record{
		Model:      alias,
		Provider:   provider,
		DurationMs: durationMs,
	}
	if body, err := json.Marshal(clientBody); err == nil {
		rec.RequestData = string(body)
	}
	if callErr != nil {
		msg := callErr.Error()
		rec.Error = &msg
	} else if response != nil {
		if usage, ok := response["usage"].(map[string]any); ok {
			rec.PromptTokens = intField(usage, "prompt_tokens")
			rec.CompletionTokens = intField(usage, "completion_tokens")
			rec.TotalTokens = intField(usage, "total_tokens")
		}
		if cost, err := llm.CompletionCost(response); err == nil {
			rec.Cost = cost
		}
		if data, err := json.Marshal(response); err == nil {
			s := string(data)
			rec.ResponseData = &s
		}
	}
	if err := e.store.Append(rec); err != nil {
		log.Printf("⚠️ Failed writing ledger record for %s: %v", alias, err)
	}
	return rec
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// RecordFailure writes a ledger row for a request that never reached the
// provider, such as an unknown or disabled alias.
func (e *Engine) RecordFailure(alias, provider string, durationMs int64, clientBody map[string]any, message string) {
	rec := &ledger.Record{
		Model:      alias,
		Provider:   provider,
		DurationMs: durationMs,
		Error:      &message,
	}
	if body, err := json.Marshal(clientBody); err == nil {
		rec.RequestData = string(body)
	}
	if err := e.store.Append(rec); err != nil {
		log.Printf("⚠️ Failed writing ledger record for %s: %v", alias, err)
	}
}

// errorBody is the normalized error envelope every failure uses.
func errorBody(errType, message, code string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}
}

// WriteClassifiedError maps err through the classifier and writes the
// normalized JSON error envelope.
func WriteClassifiedError(w http.ResponseWriter, err error) {
	cls := classify.Classify(err)
	WriteError(w, cls.Status, cls.Type, classify.ExtractMessage(err), cls.Code)
}

// WriteError writes the normalized `{error:{message,type,code}}` envelope.
func WriteError(w http.ResponseWriter, status int, errType, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody(errType, message, code)); err != nil {
		log.Printf("⚠️ Failed writing error response: %v", err)
	}
}
