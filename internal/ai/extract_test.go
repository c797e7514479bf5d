package ai

import "testing"

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		strategy string
	}{
		{"result field", `{"result":"hello"}`, "hello", "result"},
		{"results list", `{"results":["a",{"text":"b"},{"content":"c"},7]}`, "a\nb\nc", "results"},
		{"ollama response string", `{"model":"llama3","response":"Paris.","done":true}`, "Paris.", "response"},
		{"response object", `{"response":{"output":"nested"}}`, "nested", "response"},
		{"chat message", `{"message":{"role":"assistant","content":"hi there"}}`, "hi there", "message"},
		{"streamed fragments", "{\"response\":\"Hel\"}\n{\"response\":\"lo\"}\n", "Hello", "ndjson"},
		{"mixed lines", "plain line\n{\"text\":\"json line\"}", "plain line\njson line", "ndjson"},
		{"unknown object falls back to raw", `{"foo":"bar"}`, `{"foo":"bar"}`, "raw"},
		{"empty body", "   ", "", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy := ExtractText([]byte(tt.body), DefaultExtractors)
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
			if strategy != tt.strategy {
				t.Errorf("strategy = %q, want %q", strategy, tt.strategy)
			}
		})
	}
}

func TestExtractTextFirstMatchWins(t *testing.T) {
	extractors := []Extractor{
		{Name: "never", Extract: func([]byte) (string, bool) { return "", false }},
		{Name: "first", Extract: func([]byte) (string, bool) { return "one", true }},
		{Name: "second", Extract: func([]byte) (string, bool) { return "two", true }},
	}
	got, strategy := ExtractText([]byte("x"), extractors)
	if got != "one" || strategy != "first" {
		t.Errorf("got %q via %q, want one via first", got, strategy)
	}
}

func TestParseModelNames(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"models":[{"name":"llama3:latest"},{"name":"mistral"}]}`, "llama3:latest"},
		{`{"tags":["phi3"]}`, "phi3"},
		{`["gemma"]`, "gemma"},
	}
	for _, tt := range tests {
		names := parseModelNames([]byte(tt.body))
		if len(names) == 0 || names[0] != tt.want {
			t.Errorf("parseModelNames(%s) = %v, want first %q", tt.body, names, tt.want)
		}
	}
	if names := parseModelNames([]byte(`{"models":[]}`)); len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}
