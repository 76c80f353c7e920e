package llmgateway

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIBackend implements Provider against the OpenAI Chat Completions and
// Embeddings APIs (or any OpenAI-compatible endpoint via BaseURL), grounded
// on the teacher's internal/llm/openai/client.go call shape.
type OpenAIBackend struct {
	client       sdk.Client
	defaultModel string
	embedModel   string
}

func NewOpenAIBackend(apiKey, baseURL, defaultModel, embedModel string) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{
		client:       sdk.NewClient(opts...),
		defaultModel: defaultModel,
		embedModel:   embedModel,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(model),
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}
	messages = append(messages, sdk.UserMessage(req.Prompt))
	params.Messages = messages

	if req.JSONMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	comp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return CompleteResult{}, fmt.Errorf("openai completion: empty choices")
	}
	return CompleteResult{
		Text:             comp.Choices[0].Message.Content,
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}, nil
}

func (b *OpenAIBackend) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	model := req.Model
	if model == "" {
		model = b.embedModel
	}
	resp, err := b.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
