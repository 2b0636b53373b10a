package llm

import (
	"encoding/json"
	"testing"

	"github.com/m4xw311/rayo/errors"
)

func TestCreateAnthropicRequest(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "How are you?"},
	}
	body, err := createAnthropicRequest("be brief", msgs, 1024, 0.2)
	if err != nil {
		t.Fatalf("createAnthropicRequest failed: %v", err)
	}

	var got struct {
		AnthropicVersion string  `json:"anthropic_version"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float64 `json:"temperature"`
		System           string  `json:"system"`
		Messages         []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("request is not valid JSON: %v", err)
	}
	if got.AnthropicVersion != "bedrock-2023-05-31" {
		t.Errorf("anthropic_version = %q", got.AnthropicVersion)
	}
	if got.MaxTokens != 1024 || got.Temperature != 0.2 || got.System != "be brief" {
		t.Errorf("unexpected request header fields: %+v", got)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	for i, m := range got.Messages {
		if m.Role != msgs[i].Role {
			t.Errorf("message %d: role = %q, want %q", i, m.Role, msgs[i].Role)
		}
		if len(m.Content) != 1 || m.Content[0].Type != "text" || m.Content[0].Text != msgs[i].Content {
			t.Errorf("message %d: unexpected content %+v", i, m.Content)
		}
	}
}

func TestCreateAnthropicRequestOmitsEmptySystem(t *testing.T) {
	body, err := createAnthropicRequest("", []Message{{Role: "user", Content: "hi"}}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["system"]; ok {
		t.Errorf("system should be omitted when empty: %s", body)
	}
}

func TestProcessBedrockResponse(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"Hello, "},{"type":"tool_use","text":"ignored"},{"type":"text","text":"world"}]}`)
	text, err := processBedrockResponse(body)
	if err != nil {
		t.Fatalf("processBedrockResponse failed: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("text = %q", text)
	}
}

func TestProcessBedrockResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"content":`},
		{"api error", `{"error":{"type":"throttling"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processBedrockResponse([]byte(tt.body))
			if !errors.IsKind(err, errors.KindProvider) {
				t.Errorf("expected a provider error, got %v", err)
			}
		})
	}
}
