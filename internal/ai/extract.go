package ai

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Extractor pulls generated text out of one known response shape.
type Extractor struct {
	Name    string
	Extract func(body []byte) (string, bool)
}

// DefaultExtractors lists the response shapes tried, in order, on a
// generation response body.
var DefaultExtractors = []Extractor{
	{Name: "result", Extract: extractResult},
	{Name: "results", Extract: extractResults},
	{Name: "response", Extract: extractResponse},
	{Name: "message", Extract: extractMessage},
	{Name: "ndjson", Extract: extractNDJSON},
}

// ExtractText returns the text found by the first matching extractor and its
// name. When none match, the raw body is returned with strategy "raw".
func ExtractText(body []byte, extractors []Extractor) (text, strategy string) {
	for _, e := range extractors {
		if s, ok := e.Extract(body); ok {
			return s, e.Name
		}
	}
	return strings.TrimSpace(string(body)), "raw"
}

var textKeys = []string{"content", "text", "message", "generated", "output"}

func decodeObject(b []byte) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(b), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func firstStringField(obj map[string]json.RawMessage, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := stringField(obj, k); ok {
			return s, true
		}
	}
	return "", false
}

// {"result": "..."}
func extractResult(body []byte) (string, bool) {
	obj, ok := decodeObject(body)
	if !ok {
		return "", false
	}
	return stringField(obj, "result")
}

// {"results": ["...", {"text": "..."}]}
func extractResults(body []byte) (string, bool) {
	obj, ok := decodeObject(body)
	if !ok {
		return "", false
	}
	raw, ok := obj["results"]
	if !ok {
		return "", false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", false
	}

	var parts []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		if o, ok := decodeObject(item); ok {
			for _, k := range textKeys {
				if s, ok := stringField(o, k); ok {
					parts = append(parts, s)
				}
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// {"response": "..."} or {"response": {"text": "..."}}
func extractResponse(body []byte) (string, bool) {
	obj, ok := decodeObject(body)
	if !ok {
		return "", false
	}
	if s, ok := stringField(obj, "response"); ok {
		return s, true
	}
	raw, ok := obj["response"]
	if !ok {
		return "", false
	}
	inner, ok := decodeObject(raw)
	if !ok {
		return "", false
	}
	return firstStringField(inner, []string{"generated", "text", "content", "output"})
}

// {"message": {"content": "..."}}
func extractMessage(body []byte) (string, bool) {
	obj, ok := decodeObject(body)
	if !ok {
		return "", false
	}
	raw, ok := obj["message"]
	if !ok {
		return "", false
	}
	inner, ok := decodeObject(raw)
	if !ok {
		return "", false
	}
	return stringField(inner, "content")
}

// One JSON object per line, as produced by streaming endpoints. Streamed
// "response" fragments are concatenated; other pieces are joined by newlines.
func extractNDJSON(body []byte) (string, bool) {
	var pieces []string
	fragments := true
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		obj, ok := decodeObject([]byte(line))
		if !ok {
			pieces = append(pieces, line)
			fragments = false
			continue
		}
		if s, ok := stringField(obj, "response"); ok {
			pieces = append(pieces, s)
			continue
		}
		if s, ok := firstStringField(obj, textKeys); ok {
			pieces = append(pieces, s)
			fragments = false
		}
	}
	if len(pieces) == 0 {
		return "", false
	}
	if fragments {
		return strings.Join(pieces, ""), true
	}
	return strings.Join(pieces, "\n"), true
}
