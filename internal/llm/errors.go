package llm

import (
	"fmt"
	"strings"
)

// Error is implemented by every provider error kind. HTTPStatus reports the
// upstream status (or the closest equivalent for transport failures), which
// lets callers match broad categories without enumerating concrete types.
type Error interface {
	error
	HTTPStatus() int
}

// providerError carries the fields shared by all error kinds.
type providerError struct {
	Provider   string
	Model      string
	Message    string // raw upstream payload or transport error text
	StatusCode int
}

func (e *providerError) HTTPStatus() int { return e.StatusCode }

// format renders the verbose wire form, e.g.
// "llm.RateLimitError: OpenAIException - {"error":{"message":"..."}}".
// classify.ExtractMessage knows how to strip this wrapping back off.
func (e *providerError) format(kind string) string {
	return fmt.Sprintf("llm.%s: %s - %s", kind, exceptionName(e.Provider), e.Message)
}

func exceptionName(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OpenAIException"
	case "anthropic":
		return "AnthropicException"
	case "gemini", "google":
		return "GoogleException"
	case "mistral":
		return "MistralException"
	case "groq":
		return "GroqException"
	default:
		return "APIException"
	}
}

// RateLimitError: upstream returned 429.
type RateLimitError struct{ providerError }

func (e *RateLimitError) Error() string { return e.format("RateLimitError") }

// AuthenticationError: upstream rejected the credentials (401).
type AuthenticationError struct{ providerError }

func (e *AuthenticationError) Error() string { return e.format("AuthenticationError") }

// PermissionDeniedError: credentials valid but not allowed (403).
type PermissionDeniedError struct{ providerError }

func (e *PermissionDeniedError) Error() string { return e.format("PermissionDeniedError") }

// NotFoundError: the provider does not know the requested model (404).
type NotFoundError struct{ providerError }

func (e *NotFoundError) Error() string { return e.format("NotFoundError") }

// TimeoutError: the call exceeded the resolved timeout.
type TimeoutError struct{ providerError }

func (e *TimeoutError) Error() string { return e.format("Timeout") }

// InternalServerError: upstream 500.
type InternalServerError struct{ providerError }

func (e *InternalServerError) Error() string { return e.format("InternalServerError") }

// ServiceUnavailableError: upstream 502/503.
type ServiceUnavailableError struct{ providerError }

func (e *ServiceUnavailableError) Error() string { return e.format("ServiceUnavailableError") }

// APIConnectionError: the request never reached the provider (DNS, refused
// connection, broken transport).
type APIConnectionError struct{ providerError }

func (e *APIConnectionError) Error() string { return e.format("APIConnectionError") }

// BadRequestError: upstream rejected the request parameters (400).
type BadRequestError struct{ providerError }

func (e *BadRequestError) Error() string { return e.format("BadRequestError") }

// MalformedRequestError: the request body itself was unprocessable (422).
// Reported with status 400 so it classifies alongside other client errors.
type MalformedRequestError struct{ providerError }

func (e *MalformedRequestError) Error() string { return e.format("MalformedRequestError") }

// ContextWindowExceededError: a bad request caused specifically by prompt
// length. Specialization of BadRequestError for classification purposes.
type ContextWindowExceededError struct{ providerError }

func (e *ContextWindowExceededError) Error() string { return e.format("ContextWindowExceededError") }

// NewStatusError converts an upstream HTTP status plus body into the
// matching typed error. Exposed for adapters and for tests that need to
// fabricate provider failures.
func NewStatusError(status int, provider, model, body string) error {
	return statusError(status, provider, model, body)
}

// statusError converts an upstream HTTP status plus body into the matching
// typed error.
func statusError(status int, provider, model, body string) error {
	pe := providerError{Provider: provider, Model: model, Message: body, StatusCode: status}
	switch status {
	case 400:
		if strings.Contains(body, "context_length_exceeded") || strings.Contains(strings.ToLower(body), "context window") {
			return &ContextWindowExceededError{pe}
		}
		return &BadRequestError{pe}
	case 401:
		return &AuthenticationError{pe}
	case 403:
		return &PermissionDeniedError{pe}
	case 404:
		return &NotFoundError{pe}
	case 408:
		pe.StatusCode = 504
		return &TimeoutError{pe}
	case 422:
		pe.StatusCode = 400
		return &MalformedRequestError{pe}
	case 429:
		return &RateLimitError{pe}
	case 500:
		return &InternalServerError{pe}
	case 502, 503:
		return &ServiceUnavailableError{pe}
	default:
		if status >= 500 {
			return &InternalServerError{pe}
		}
		return &BadRequestError{pe}
	}
}

// connectionError wraps a transport-level failure.
func connectionError(provider, model string, cause error) error {
	return &APIConnectionError{providerError{
		Provider:   provider,
		Model:      model,
		Message:    cause.Error(),
		StatusCode: 502,
	}}
}

// timeoutError wraps a deadline expiry.
func timeoutError(provider, model string, cause error) error {
	return &TimeoutError{providerError{
		Provider:   provider,
		Model:      model,
		Message:    cause.Error(),
		StatusCode: 504,
	}}
}

// retryable reports whether a call that produced err is worth retrying.
func retryable(err error) bool {
	e, ok := err.(Error)
	if !ok {
		return false
	}
	switch e.HTTPStatus() {
	case 429, 500, 502, 503:
		return true
	default:
		return false
	}
}
