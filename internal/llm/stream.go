package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// ChunkStream iterates over the incremental chunks of a streaming completion.
// Next returns io.EOF after the upstream [DONE] sentinel or end of body.
type ChunkStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	provider string
	model    string
	done     bool
}

func newChunkStream(body io.ReadCloser, provider, model string) *ChunkStream {
	scanner := bufio.NewScanner(body)
	// Large SSE frames: tool calls and long deltas can exceed the default
	// 64KB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &ChunkStream{
		body:     body,
		scanner:  scanner,
		provider: provider,
		model:    model,
	}
}

// Provider returns the provider tag that served this stream.
func (s *ChunkStream) Provider() string { return s.provider }

// Next returns the next decoded chunk. Lines that are not data frames, and
// data frames that fail to decode, are skipped.
func (s *ChunkStream) Next() (map[string]any, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		// Mid-stream error frames come through as data payloads on some
		// providers; surface them as typed errors.
		if errObj, ok := chunk["error"].(map[string]any); ok {
			s.done = true
			raw, _ := json.Marshal(map[string]any{"error": errObj})
			return nil, statusError(errStatus(errObj), s.provider, s.model, string(raw))
		}
		return chunk, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, connectionError(s.provider, s.model, err)
	}
	return nil, io.EOF
}

// Close releases the underlying connection.
func (s *ChunkStream) Close() error {
	s.done = true
	return s.body.Close()
}

func errStatus(errObj map[string]any) int {
	if code, ok := errObj["code"].(float64); ok && code >= 400 && code < 600 {
		return int(code)
	}
	return 500
}
