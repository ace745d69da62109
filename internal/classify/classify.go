// Package classify maps provider failures to stable (status, type, code)
// triples and extracts clean messages from verbose provider error strings.
package classify

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/puente-ai/puente/internal/llm"
)

// Classification is the normalized outcome presented to clients and stored
// alongside ledger errors.
type Classification struct {
	Status int
	Type   string
	Code   string
}

type rule struct {
	match func(error) bool
	out   Classification
}

func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// rules is scanned top to bottom; the first match wins. Specializations must
// precede the broader kinds they would also satisfy: the context-window and
// malformed-request rules sit above the generic 400 rule, which matches any
// llm.Error carrying that status.
var rules = []rule{
	{as[*llm.ContextWindowExceededError], Classification{400, "invalid_request_error", "context_length_exceeded"}},
	{as[*llm.MalformedRequestError], Classification{400, "invalid_request_error", "malformed_request"}},
	{as[*llm.RateLimitError], Classification{429, "rate_limit_error", "rate_limit_exceeded"}},
	{as[*llm.AuthenticationError], Classification{401, "authentication_error", "invalid_api_key"}},
	{as[*llm.PermissionDeniedError], Classification{403, "permission_denied", "permission_denied"}},
	{as[*llm.NotFoundError], Classification{404, "invalid_request_error", "model_not_found"}},
	{as[*llm.TimeoutError], Classification{504, "timeout_error", "request_timeout"}},
	{as[*llm.InternalServerError], Classification{503, "service_unavailable", "service_unavailable"}},
	{as[*llm.ServiceUnavailableError], Classification{503, "service_unavailable", "service_unavailable"}},
	{as[*llm.APIConnectionError], Classification{502, "connection_error", "connection_error"}},
	{matchStatus(400), Classification{400, "invalid_request_error", "bad_request"}},
}

// matchStatus matches any typed provider error with the given HTTP status.
func matchStatus(status int) func(error) bool {
	return func(err error) bool {
		var e llm.Error
		return errors.As(err, &e) && e.HTTPStatus() == status
	}
}

// Classify resolves err to its classification. Unrecognized errors fall back
// to a generic internal error.
func Classify(err error) Classification {
	for _, r := range rules {
		if r.match(err) {
			return r.out
		}
	}
	return Classification{500, "api_error", "internal_error"}
}

var (
	// Byte-string fragments like b'{"error": {...}}' as they appear inside
	// stringified upstream payloads.
	byteStringJSON = regexp.MustCompile(`b['"](\{.*\})['"]`)
	// Library wrapping of the form "llm.RateLimitError: OpenAIException - ".
	libPrefix = regexp.MustCompile(`^\w+(?:\.\w+)+: \w+Exception - `)
)

// ExtractMessage pulls a human-readable message out of a provider error whose
// string form embeds verbose wrapping. Raw provider errors are too noisy to
// show end users or to group in the dashboard.
func ExtractMessage(err error) string {
	s := err.Error()

	// 1. JSON object hiding inside a byte-string fragment.
	if m := byteStringJSON.FindStringSubmatch(s); m != nil {
		if msg := messageFromJSON(m[1]); msg != "" {
			return msg
		}
	}

	// 2. The whole string, or the part after the library prefix, may itself
	// be JSON.
	stripped := libPrefix.ReplaceAllString(s, "")
	for _, candidate := range []string{s, stripped} {
		if msg := messageFromJSON(candidate); msg != "" {
			return msg
		}
	}

	// 3. Library prefix stripped, remainder kept.
	if stripped != s {
		return stripped
	}

	// 4. Nothing recognized.
	return s
}

// messageFromJSON returns error.message or message from a JSON object string.
func messageFromJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return ""
	}
	if inner, ok := obj["error"].(map[string]any); ok {
		if msg, ok := inner["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg
	}
	return ""
}
