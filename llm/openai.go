package llm

import (
	"context"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/session"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API, or any
// compatible endpoint set through base_url.
type OpenAILLMClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAILLMClient creates a new OpenAILLMClient. The key comes from
// api_keys.openai or OPENAI_API_KEY.
func NewOpenAILLMClient(cfg *config.Config) (*OpenAILLMClient, error) {
	apiKey, err := requireKey(cfg, "openai", "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	// The v2 SDK returns the client by value; keep a pointer to it.
	c := openai.NewClient(options...)
	return &OpenAILLMClient{
		client:      &c,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (o *OpenAILLMClient) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	system, msgs := foldTurns(turns)
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		Messages:            convertMessagesToOpenaiContent(system, msgs),
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
		Temperature:         openai.Float(o.temperature),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", providerError(ctx, err, "openai")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func convertMessagesToOpenaiContent(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		if m.Role == "assistant" {
			out = append(out, openai.AssistantMessage(m.Content))
		} else {
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
