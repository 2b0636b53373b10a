package llm

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/session"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient. The key comes from
// api_keys.gemini or GEMINI_API_KEY.
func NewGeminiLLMClient(ctx context.Context, cfg *config.Config) (*GeminiLLMClient, error) {
	apiKey, err := requireKey(cfg, "gemini", "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(cfg.Temperature))
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	return &GeminiLLMClient{client: client, model: model}, nil
}

func (g *GeminiLLMClient) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	system, msgs := foldTurns(turns)
	if len(msgs) == 0 {
		return "", errors.E(errors.KindProvider, "gemini: no message to send")
	}
	if system != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	history := convertMessagesToGeminiContent(msgs)
	last := history[len(history)-1]
	chat := g.model.StartChat()
	chat.History = history[:len(history)-1]
	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", providerError(ctx, err, "gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.E(errors.KindProvider, "received an empty response from Gemini")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text, nil
}

// Close releases the underlying connection.
func (g *GeminiLLMClient) Close() error {
	return g.client.Close()
}

func convertMessagesToGeminiContent(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return contents
}
