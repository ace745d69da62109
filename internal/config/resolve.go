package config

import (
	"fmt"
	"strings"
)

// reservedKeys never flow from the client or the route into provider params.
// Model and credentials are controlled by the route; cost metadata belongs
// to the pricing table.
var reservedKeys = map[string]bool{
	"model":                 true,
	"api_key":               true,
	"alias":                 true,
	"enabled":               true,
	"timeout":               true,
	"num_retries":           true,
	"input_cost_per_token":  true,
	"output_cost_per_token": true,
}

// ModelNotFoundError reports a request for an alias the table does not have.
// Available carries the sorted enabled aliases for the error message shown
// to the client.
type ModelNotFoundError struct {
	Alias     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	msg := fmt.Sprintf("Model '%s' not found in configuration.", e.Alias)
	if len(e.Available) > 0 {
		msg += " Available models: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// ModelDisabledError reports a request for a route that exists but is
// switched off.
type ModelDisabledError struct {
	Alias string
}

func (e *ModelDisabledError) Error() string {
	return fmt.Sprintf("Model '%s' is disabled", e.Alias)
}

// Resolved is a fully merged request ready for the provider client.
type Resolved struct {
	Alias      string
	Model      string
	APIKey     string
	Timeout    int
	NumRetries int
	// Params is the provider payload minus reserved keys: client values win,
	// route values fill gaps, explicit client nulls count as absent.
	Params map[string]any
}

// Resolve looks up alias and merges client params with the route's defaults.
// Precedence is client over route over global defaults; a client value of
// explicit null is treated as if the key were absent, so clients can send
// `"temperature": null` to fall back to the route's setting.
func (t *Table) Resolve(alias string, client map[string]any) (*Resolved, error) {
	snap := t.current.Load()
	var route *Route
	if snap != nil {
		route = snap.routes[alias]
	}
	if route == nil {
		return nil, &ModelNotFoundError{Alias: alias, Available: t.enabledAliases()}
	}
	if !route.IsEnabled() {
		return nil, &ModelDisabledError{Alias: alias}
	}

	params := make(map[string]any, len(client))
	for k, v := range client {
		if reservedKeys[k] || v == nil {
			continue
		}
		params[k] = v
	}
	fill := func(key string, value any) {
		if _, ok := params[key]; !ok {
			params[key] = value
		}
	}
	if route.Temperature != nil {
		fill("temperature", *route.Temperature)
	}
	if route.MaxTokens != nil {
		fill("max_tokens", *route.MaxTokens)
	}
	for k, v := range route.Extra {
		if reservedKeys[k] || v == nil {
			continue
		}
		fill(k, v)
	}

	res := &Resolved{
		Alias:      alias,
		Model:      route.Model,
		APIKey:     route.resolveAPIKey(),
		Timeout:    t.defaults.Timeout,
		NumRetries: t.defaults.NumRetries,
		Params:     params,
	}
	if route.Timeout != nil {
		res.Timeout = *route.Timeout
	}
	if route.NumRetries != nil {
		res.NumRetries = *route.NumRetries
	}
	// Client-side overrides for the transport knobs travel outside Params.
	if v, ok := intParam(client, "timeout"); ok && v > 0 {
		res.Timeout = v
	}
	if v, ok := intParam(client, "num_retries"); ok && v >= 0 {
		res.NumRetries = v
	}
	return res, nil
}

func (t *Table) enabledAliases() []string {
	var out []string
	for _, r := range t.Routes() {
		if r.IsEnabled() {
			out = append(out, r.Alias)
		}
	}
	return out
}

func intParam(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
