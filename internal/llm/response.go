package llm

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Normalized stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// finishResponse turns the text a provider returned into a Response.
// Structured requests are unfenced, rejected when truncated, and validated
// against the schema. Unstructured text is encoded as a JSON string.
func finishResponse(req Request, text string, usage Usage, model, stop string) (*Response, error) {
	var content json.RawMessage
	if req.Schema == nil {
		b, err := json.Marshal(text)
		if err != nil {
			return nil, &ErrInvalidResponse{Err: err}
		}
		content = b
	} else {
		content = json.RawMessage(stripFences(text))
		if stop == StopMaxTokens {
			return nil, &ErrMaxTokensExceeded{Content: content}
		}
		if err := validateResponse(req.Schema, content); err != nil {
			return nil, err
		}
	}

	return &Response{
		Content:    content,
		Usage:      usage,
		Model:      model,
		StopReason: stop,
	}, nil
}

// stripFences removes a markdown code fence some models put around JSON
// even when asked for a bare object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
