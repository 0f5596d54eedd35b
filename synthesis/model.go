package synthesis

import (
	"context"
	"errors"
)

// Task names the kind of work a model request performs.
type Task string

const (
	TaskRewriteChunk      Task = "rewrite_chunk"
	TaskPlanGeneration    Task = "plan_generation"
	TaskSectionGeneration Task = "section_generation"
	TaskConsistencyPass   Task = "consistency_pass"
)

// GenerationParams are sampling settings forwarded to the backend. Zero values mean
// "backend default".
type GenerationParams struct {
	Temperature     float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
}

// Request is one call to the text-generation backend.
type Request struct {
	Task   Task
	Prompt string
	Params GenerationParams

	// JSONSchema asks backends that support structured output to constrain the reply.
	JSONSchema map[string]any
	SchemaName string
}

// Model is the text-generation capability.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// RewriteRequest is one rewrite attempt for a chunk.
type RewriteRequest struct {
	StyleInstruction string
	GlobalAnchor     string
	GeneratedPrefix  string
	CurrentChunk     string
	ChunkIndex       int
	TotalChunks      int
	RetryIndex       int
	StrictFidelity   bool
	PromptLanguage   PromptLanguage
}

// Rewriter is the rewrite capability used by the rephrase pipeline.
type Rewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) (string, error)
}

// LLMRewriter renders a rewrite prompt and sends it to a general Model.
type LLMRewriter struct {
	Model  Model
	Params GenerationParams
}

func (r LLMRewriter) Rewrite(ctx context.Context, req RewriteRequest) (string, error) {
	if r.Model == nil {
		return "", errors.New("LLMRewriter: model is nil")
	}
	return r.Model.Generate(ctx, Request{
		Task:   TaskRewriteChunk,
		Prompt: RenderRewritePrompt(req),
		Params: r.Params,
	})
}

// EchoRewriter returns every chunk unchanged. It is useful for dry runs.
type EchoRewriter struct{}

func (EchoRewriter) Rewrite(_ context.Context, req RewriteRequest) (string, error) {
	return req.CurrentChunk, nil
}
