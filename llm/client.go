package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/session"
	"golang.org/x/time/rate"
)

// Client generates the next model message for a conversation.
type Client interface {
	Generate(ctx context.Context, turns []session.Turn) (string, error)
}

// ToolResultPrefix introduces tool observations, which reach the model as
// user messages.
const ToolResultPrefix = "Tool execution result:"

// Message is a chat message in provider wire roles ("user" or "assistant").
type Message struct {
	Role    string
	Content string
}

// foldTurns splits the system prompt from the conversation and merges
// consecutive messages of the same wire role, which some providers reject.
func foldTurns(turns []session.Turn) (string, []Message) {
	var system []string
	var msgs []Message
	for _, t := range turns {
		var m Message
		switch t.Role {
		case session.RoleSystem:
			system = append(system, t.Content)
			continue
		case session.RoleAssistant:
			m = Message{Role: "assistant", Content: t.Content}
		case session.RoleTool:
			m = Message{Role: "user", Content: ToolResultPrefix + "\n" + t.Content}
		default:
			m = Message{Role: "user", Content: t.Content}
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
			msgs[n-1].Content += "\n\n" + m.Content
			continue
		}
		msgs = append(msgs, m)
	}
	return strings.Join(system, "\n\n"), msgs
}

// New creates the client named by cfg.LLMClient, rate limited when
// cfg.RequestsPerMinute is set.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.LLMClient {
	case "anthropic":
		c, err = NewAnthropicLLMClient(cfg)
	case "openai":
		c, err = NewOpenAILLMClient(cfg)
	case "gemini":
		c, err = NewGeminiLLMClient(ctx, cfg)
	case "bedrock":
		c, err = NewBedrockLLMClient(ctx, cfg)
	case "mock":
		c = &MockLLMClient{}
	default:
		return nil, errors.New("unsupported LLM client: '%s' (expected anthropic, openai, gemini, bedrock or mock)", cfg.LLMClient)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		c = NewRateLimited(c, cfg.RequestsPerMinute)
	}
	return c, nil
}

func requireKey(cfg *config.Config, provider, env string) (string, error) {
	key := cfg.APIKey(provider)
	if key == "" {
		return "", errors.New("no API key for %s: set %s or api_keys.%s in the config file", provider, env, provider)
	}
	return key, nil
}

// providerError tags a failed request. Errors caused by the caller's
// context are reported as cancellations.
func providerError(ctx context.Context, err error, provider string) error {
	if ctx.Err() != nil {
		return errors.WrapKind(ctx.Err(), errors.KindCancelled, "%s request cancelled", provider)
	}
	return errors.WrapKind(err, errors.KindProvider, "%s request failed", provider)
}

// RateLimited throttles another client with a token bucket.
type RateLimited struct {
	client  Client
	limiter *rate.Limiter
}

func NewRateLimited(c Client, perMinute int) *RateLimited {
	return &RateLimited{
		client:  c,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", errors.WrapKind(ctx.Err(), errors.KindCancelled, "waiting for rate limit")
		}
		return "", errors.WrapKind(err, errors.KindProvider, "rate limit")
	}
	return r.client.Generate(ctx, turns)
}

// MockLLMClient echoes the last user message. It needs no credentials.
type MockLLMClient struct{}

func (m *MockLLMClient) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	_, msgs := foldTurns(turns)
	if len(msgs) == 0 {
		return "I am a mock LLM. There is nothing to respond to.", nil
	}
	last := msgs[len(msgs)-1].Content
	return fmt.Sprintf("I am a mock LLM. You said: '%s'.", last), nil
}
