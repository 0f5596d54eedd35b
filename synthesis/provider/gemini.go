package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

// Gemini calls the Gemini API. Requests that carry a JSON schema ask for a JSON response.
type Gemini struct {
	client *genai.Client
	model  string
	retry  RetryPolicy
}

func NewGemini(ctx context.Context, apiKey, baseURL, model string, retry RetryPolicy) (*Gemini, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("NewGemini: model is empty")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model, retry: retry}, nil
}

func (g *Gemini) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.Params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Params.Temperature))
	}
	if req.Params.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.Params.TopP))
	}
	if req.Params.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Params.MaxOutputTokens)
	}
	if req.JSONSchema != nil {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := CallWithRetry(ctx, req.Task, "gemini", g.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
