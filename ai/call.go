package ai

import (
	"context"
	"fmt"
)

// Call is a single generation request bound to its results. Job bodies build
// one from a model, prompts and a target length, run Execute, and read the
// output text, token counts, cost and stop reason afterwards. A failed call
// reports false; the collaborator-failure path job bodies translate into a
// failed (resubmittable) job rather than an error.
type Call struct {
	client Caller

	// Request
	Model        string
	SystemPrompt string
	Prompt       string
	TargetWords  int
	Params       map[string]interface{} // Free-form overrides: "temperature", "max_tokens"

	// Results, populated by Execute
	Output           string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	StopReason       string

	err error
}

// NewCall builds a generation call. Model may be empty to use the client
// default.
func NewCall(client Caller, model, systemPrompt, prompt string, targetWords int, params map[string]interface{}) *Call {
	return &Call{
		client:       client,
		Model:        model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		TargetWords:  targetWords,
		Params:       params,
	}
}

// Execute runs the call, returning true on success. On failure the call
// records the error (see Err) and returns false.
func (c *Call) Execute(ctx context.Context) bool {
	req := ChatRequest{
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		UserPrompt:   c.Prompt,
	}

	if c.TargetWords > 0 {
		// A loose words->tokens conversion keeps completions near the target
		maxTokens := c.TargetWords * 2
		req.MaxTokens = &maxTokens
		req.UserPrompt = fmt.Sprintf("%s\n\nTarget length: about %d words.", c.Prompt, c.TargetWords)
	}

	if c.Params != nil {
		if t, ok := c.Params["temperature"].(float64); ok {
			req.Temperature = &t
		}
		if m, ok := c.Params["max_tokens"].(int); ok {
			req.MaxTokens = &m
		}
	}

	resp, err := c.client.Chat(ctx, req)
	if err != nil {
		c.err = err
		return false
	}

	c.Output = resp.Content
	c.PromptTokens = resp.Usage.PromptTokens
	c.CompletionTokens = resp.Usage.CompletionTokens
	c.Cost = resp.Cost
	c.StopReason = resp.FinishReason
	return true
}

// Err returns the failure recorded by Execute, nil after a successful call
func (c *Call) Err() error {
	return c.err
}
