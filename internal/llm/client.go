package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultTimeoutSeconds = 120
	maxRetryBackoff       = 30 * time.Second
)

// baseURLs maps provider tags to OpenAI-compatible chat-completion endpoints.
// Anthropic and Google both expose compatibility surfaces, which keeps the
// transport to a single code path.
var defaultBaseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"anthropic": "https://api.anthropic.com/v1",
	"gemini":    "https://generativelanguage.googleapis.com/v1beta/openai",
	"mistral":   "https://api.mistral.ai/v1",
	"groq":      "https://api.groq.com/openai/v1",
}

// Request is the resolved set of call parameters for one completion.
// Known fields are typed; everything else the client submitted rides along
// opaquely in Extra and is forwarded untouched.
type Request struct {
	Model      string // provider-prefixed identifier, e.g. "openai/gpt-4.1"
	APIKey     string
	Timeout    int // seconds
	NumRetries int
	Stream     bool
	Extra      map[string]any // messages, temperature, max_tokens, ...
}

// Response is a completed (non-streaming) call.
type Response struct {
	Data     map[string]any // wire-shape response body, returned to clients verbatim
	Provider string         // adapter that served the call
}

// Client forwards chat completions to upstream providers.
type Client struct {
	httpClient  *http.Client
	baseURLs    map[string]string
	googleToken oauth2.TokenSource
}

// NewClient builds a client with the default provider endpoints. If Google
// OAuth credentials are present in the environment, Gemini calls without an
// API key authenticate through a refresh-token source instead.
func NewClient() *Client {
	c := &Client{
		// Per-request deadlines come from the resolved timeout via context;
		// the transport itself stays unbounded for long streams.
		httpClient: &http.Client{},
		baseURLs:   map[string]string{},
	}
	for k, v := range defaultBaseURLs {
		c.baseURLs[k] = v
	}
	c.googleToken = googleTokenSourceFromEnv()
	return c
}

// SetBaseURL overrides the endpoint for one provider. Used by tests and by
// deployments pointing at regional or proxied endpoints.
func (c *Client) SetBaseURL(provider, baseURL string) {
	c.baseURLs[provider] = baseURL
}

// SetHTTPClient swaps the underlying transport.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// googleTokenSourceFromEnv builds a reusable token source from
// GOOGLE_OAUTH_CLIENT_ID / GOOGLE_OAUTH_CLIENT_SECRET / GOOGLE_OAUTH_REFRESH_TOKEN.
// Returns nil when the variables are absent.
func googleTokenSourceFromEnv() oauth2.TokenSource {
	clientID := os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET")
	refreshToken := os.Getenv("GOOGLE_OAUTH_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"https://www.googleapis.com/auth/generative-language"},
	}
	return conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: refreshToken})
}

// Complete performs a blocking chat-completion call and returns the decoded
// response body.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	req.Stream = false
	resp, provider, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError(provider, req.Model, err)
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &InternalServerError{providerError{
			Provider:   provider,
			Model:      req.Model,
			Message:    fmt.Sprintf("invalid JSON from upstream: %v", err),
			StatusCode: 500,
		}}
	}
	return &Response{Data: data, Provider: provider}, nil
}

// Stream starts a streaming chat-completion call. The caller owns the
// returned stream and must Close it.
func (c *Client) Stream(ctx context.Context, req Request) (*ChunkStream, error) {
	req.Stream = true
	resp, provider, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return newChunkStream(resp.Body, provider, req.Model), nil
}

// do issues the HTTP call with retry handling and classifies failures into
// the typed error hierarchy. A non-nil response always has status 200.
func (c *Client) do(ctx context.Context, req Request) (*http.Response, string, error) {
	provider := InferProviderFromModel(req.Model)
	baseURL, ok := c.baseURLs[provider]
	if !ok {
		return nil, provider, &NotFoundError{providerError{
			Provider:   provider,
			Model:      req.Model,
			Message:    fmt.Sprintf("no upstream endpoint for provider %q", provider),
			StatusCode: 404,
		}}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	// The cancel is tied to the response body: streaming callers keep reading
	// long after do returns.
	payload, err := json.Marshal(wirePayload(req))
	if err != nil {
		cancel()
		return nil, provider, &MalformedRequestError{providerError{
			Provider:   provider,
			Model:      req.Model,
			Message:    err.Error(),
			StatusCode: 400,
		}}
	}

	attempts := req.NumRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.attempt(ctx, baseURL, provider, req, payload)
		if err == nil {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, provider, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts-1 {
			break
		}
		if !sleepCtx(ctx, retryDelay(err, attempt)) {
			break
		}
	}
	cancel()
	if ctx.Err() != nil && !isTyped(lastErr) {
		return nil, provider, timeoutError(provider, req.Model, ctx.Err())
	}
	return nil, provider, lastErr
}

func (c *Client) attempt(ctx context.Context, baseURL, provider string, req Request, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, connectionError(provider, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := c.authorize(ctx, httpReq, provider, req.APIKey); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(provider, req.Model, err)
		}
		return nil, connectionError(provider, req.Model, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		err := statusError(resp.StatusCode, provider, req.Model, string(body))
		// Attach any Retry-After hint for the backoff calculation.
		if rl, ok := err.(*RateLimitError); ok {
			rl.Message = withRetryHint(rl.Message, resp.Header.Get("Retry-After"))
		}
		return nil, err
	}
	return resp, nil
}

// authorize sets the Authorization header. Gemini calls without an API key
// fall back to the OAuth token source when one is configured; everything else
// goes out with whatever credentials resolution produced, letting the
// provider itself reject unauthenticated calls.
func (c *Client) authorize(ctx context.Context, httpReq *http.Request, provider, apiKey string) error {
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		return nil
	}
	if provider == "gemini" && c.googleToken != nil {
		tok, err := c.googleToken.Token()
		if err != nil {
			return &AuthenticationError{providerError{
				Provider:   provider,
				Message:    fmt.Sprintf("oauth token refresh failed: %v", err),
				StatusCode: 401,
			}}
		}
		tok.SetAuthHeader(httpReq)
	}
	return nil
}

// wirePayload builds the upstream request body: pass-through extras plus the
// bare model name and stream flag. Credentials and proxy-level knobs never
// leave the process.
func wirePayload(req Request) map[string]any {
	payload := make(map[string]any, len(req.Extra)+2)
	for k, v := range req.Extra {
		payload[k] = v
	}
	payload["model"] = StripProviderPrefix(req.Model)
	if req.Stream {
		payload["stream"] = true
		// Ask for a usage block on the final chunk where supported.
		if _, ok := payload["stream_options"]; !ok {
			payload["stream_options"] = map[string]any{"include_usage": true}
		}
	} else {
		delete(payload, "stream")
	}
	return payload
}

// retryDelay picks the wait before the next attempt: an explicit Retry-After
// hint when the provider sent one, else exponential backoff.
func retryDelay(err error, attempt int) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		if d := parseRetryHint(rl.Message); d > 0 {
			return d
		}
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

const retryHintPrefix = "\nretry-after: "

func withRetryHint(message, retryAfter string) string {
	if retryAfter == "" {
		return message
	}
	return message + retryHintPrefix + retryAfter
}

func parseRetryHint(message string) time.Duration {
	i := strings.LastIndex(message, retryHintPrefix)
	if i < 0 {
		return 0
	}
	value := message[i+len(retryHintPrefix):]
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isTyped(err error) bool {
	var e Error
	return errors.As(err, &e)
}

// cancelOnClose releases the request deadline when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
