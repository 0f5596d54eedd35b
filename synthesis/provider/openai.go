package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

func openAIOptions(apiKey, baseURL string) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

// OpenAIResponses calls the Responses API. Requests that carry a JSON schema ask for
// structured output.
type OpenAIResponses struct {
	client *openai.Client
	model  string
	retry  RetryPolicy
}

func NewOpenAIResponses(apiKey, baseURL, model string, retry RetryPolicy) (*OpenAIResponses, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("NewOpenAIResponses: model is empty")
	}
	client := openai.NewClient(openAIOptions(apiKey, baseURL)...)
	return &OpenAIResponses{client: &client, model: model, retry: retry}, nil
}

func (o *OpenAIResponses) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	if req.Params.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.Params.MaxOutputTokens))
	}
	if req.JSONSchema != nil {
		name := req.SchemaName
		if name == "" {
			name = string(req.Task)
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: req.JSONSchema,
					Strict: openai.Bool(StrictCompatible(req.JSONSchema)),
					Type:   "json_schema",
				},
			},
		}
	}

	resp, err := CallWithRetry(ctx, req.Task, "responses", o.retry, func(ctx context.Context) (*responses.Response, error) {
		return o.client.Responses.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

// OpenAIChat calls Chat Completions. It works with any OpenAI-compatible endpoint.
type OpenAIChat struct {
	client *openai.Client
	model  string
	retry  RetryPolicy
}

func NewOpenAIChat(apiKey, baseURL, model string, retry RetryPolicy) (*OpenAIChat, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("NewOpenAIChat: model is empty")
	}
	client := openai.NewClient(openAIOptions(apiKey, baseURL)...)
	return &OpenAIChat{client: &client, model: model, retry: retry}, nil
}

func (o *OpenAIChat) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	if req.Params.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Params.MaxOutputTokens))
	}

	resp, err := CallWithRetry(ctx, req.Task, "chat", o.retry, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return o.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &synthesis.BackendError{Task: req.Task, Op: "chat", Retryable: true, Err: errors.New("response has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
