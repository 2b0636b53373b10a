package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/session"
)

// BedrockLLMClient is a client for Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float64
}

// NewBedrockLLMClient creates a new BedrockLLMClient. Credentials come from
// the default AWS chain; BEDROCK_ENDPOINT_URL overrides the endpoint.
func NewBedrockLLMClient(ctx context.Context, cfg *config.Config) (*BedrockLLMClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if os.Getenv("AWS_REGION") == "" && os.Getenv("AWS_DEFAULT_REGION") == "" {
		opts = append(opts, awsconfig.WithRegion("us-east-1"))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if awsCfg.Region == "" {
		if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
			awsCfg.Region = r
		}
	}

	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &BedrockLLMClient{
		client:      client,
		modelID:     cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (b *BedrockLLMClient) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	system, msgs := foldTurns(turns)
	body, err := createAnthropicRequest(system, msgs, b.maxTokens, b.temperature)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create Anthropic request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", providerError(ctx, err, "bedrock")
	}
	return processBedrockResponse(resp.Body)
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

// createAnthropicRequest builds the Anthropic messages body Bedrock expects.
func createAnthropicRequest(system string, msgs []Message, maxTokens int, temperature float64) ([]byte, error) {
	req := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      temperature,
		System:           system,
		Messages:         make([]bedrockMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, bedrockMessage{
			Role:    m.Role,
			Content: []bedrockContent{{Type: "text", Text: m.Content}},
		})
	}
	return json.Marshal(req)
}

func processBedrockResponse(body []byte) (string, error) {
	var resp struct {
		Content []bedrockContent `json:"content"`
		Error   any              `json:"error"`
		Message string           `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.WrapKind(err, errors.KindProvider, "failed to unmarshal Bedrock response")
	}
	if resp.Error != nil {
		return "", errors.E(errors.KindProvider, "Bedrock API error: %v", resp.Error)
	}
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text, nil
}
