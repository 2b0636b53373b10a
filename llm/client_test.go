package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/session"
)

func TestFoldTurns(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleSystem, Content: "system prompt"},
		{Role: session.RoleUser, Content: "list the files"},
		{Role: session.RoleAssistant, Content: `{"tool":"list_files"}`},
		{Role: session.RoleTool, Content: "README.md", Tool: "list_files"},
		{Role: session.RoleUser, Content: "and read it"},
		{Role: session.RoleAssistant, Content: "done"},
	}
	system, msgs := foldTurns(turns)
	if system != "system prompt" {
		t.Errorf("system = %q", system)
	}
	want := []Message{
		{Role: "user", Content: "list the files"},
		{Role: "assistant", Content: `{"tool":"list_files"}`},
		{Role: "user", Content: ToolResultPrefix + "\nREADME.md\n\nand read it"},
		{Role: "assistant", Content: "done"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestFoldTurnsAlternates(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleUser, Content: "a"},
		{Role: session.RoleAssistant, Content: "b"},
		{Role: session.RoleTool, Content: "c"},
		{Role: session.RoleTool, Content: "d"},
		{Role: session.RoleAssistant, Content: "e"},
		{Role: session.RoleAssistant, Content: "f"},
	}
	_, msgs := foldTurns(turns)
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == msgs[i-1].Role {
			t.Fatalf("messages %d and %d share role %q", i-1, i, msgs[i].Role)
		}
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 folded messages, got %d", len(msgs))
	}
}

func TestMockLLMClient(t *testing.T) {
	m := &MockLLMClient{}
	out, err := m.Generate(context.Background(), []session.Turn{
		{Role: session.RoleSystem, Content: "sys"},
		{Role: session.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "You said: 'hello'") {
		t.Errorf("unexpected mock output %q", out)
	}
}

func testConfig(t *testing.T, provider string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLMClient = provider
	cfg.ProjectRoot = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, testConfig(t, "nope")); err == nil {
		t.Error("expected an error for an unknown provider")
	}

	cfg := testConfig(t, "anthropic")
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected an error when the API key is missing")
	}
	cfg.APIKeys["anthropic"] = "test-key"
	c, err := New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*AnthropicLLMClient); !ok {
		t.Errorf("expected *AnthropicLLMClient, got %T", c)
	}

	cfg = testConfig(t, "openai")
	cfg.APIKeys["openai"] = "test-key"
	cfg.BaseURL = "http://localhost:1234/v1"
	if c, err = New(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*OpenAILLMClient); !ok {
		t.Errorf("expected *OpenAILLMClient, got %T", c)
	}

	cfg = testConfig(t, "mock")
	cfg.RequestsPerMinute = 30
	if c, err = New(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*RateLimited); !ok {
		t.Errorf("expected *RateLimited, got %T", c)
	}
}

type countingClient struct{ calls int }

func (c *countingClient) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	c.calls++
	return "ok", nil
}

func TestRateLimited(t *testing.T) {
	inner := &countingClient{}
	r := NewRateLimited(inner, 1)
	if _, err := r.Generate(context.Background(), nil); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Generate(ctx, nil)
	if !errors.IsKind(err, errors.KindCancelled) {
		t.Errorf("expected Cancelled while waiting for the limiter, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner client called %d times, want 1", inner.calls)
	}
}

func TestProviderError(t *testing.T) {
	err := providerError(context.Background(), errors.New("boom"), "openai")
	if !errors.IsKind(err, errors.KindProvider) {
		t.Errorf("expected ProviderError, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = providerError(ctx, errors.New("boom"), "openai")
	if !errors.IsKind(err, errors.KindCancelled) {
		t.Errorf("expected Cancelled, got %v", err)
	}
}
