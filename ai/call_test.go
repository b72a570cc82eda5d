package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfeldman/bookbot-sub000/errors"
)

// fakeCaller records the last request and returns a canned response or error
type fakeCaller struct {
	lastReq ChatRequest
	resp    *ChatResponse
	err     error
}

func (f *fakeCaller) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestCallExecuteSuccess(t *testing.T) {
	fake := &fakeCaller{resp: &ChatResponse{
		Content:      "Once upon a time.",
		FinishReason: "stop",
		Usage:        Usage{PromptTokens: 12, CompletionTokens: 34},
		Cost:         0.0021,
	}}

	call := NewCall(fake, "openai/gpt-4o-mini", "You are a novelist.", "Write an opening line.", 50, nil)
	ok := call.Execute(context.Background())

	require.True(t, ok)
	require.NoError(t, call.Err())
	assert.Equal(t, "Once upon a time.", call.Output)
	assert.Equal(t, 12, call.PromptTokens)
	assert.Equal(t, 34, call.CompletionTokens)
	assert.Equal(t, 0.0021, call.Cost)
	assert.Equal(t, "stop", call.StopReason)
}

func TestCallExecuteAppendsTargetLength(t *testing.T) {
	fake := &fakeCaller{resp: &ChatResponse{Content: "x"}}

	call := NewCall(fake, "", "", "Write a scene.", 800, nil)
	require.True(t, call.Execute(context.Background()))

	assert.Contains(t, fake.lastReq.UserPrompt, "Write a scene.")
	assert.Contains(t, fake.lastReq.UserPrompt, "about 800 words")
	require.NotNil(t, fake.lastReq.MaxTokens)
	assert.Equal(t, 1600, *fake.lastReq.MaxTokens)
}

func TestCallExecuteParamOverrides(t *testing.T) {
	fake := &fakeCaller{resp: &ChatResponse{Content: "x"}}

	call := NewCall(fake, "", "", "prompt", 0, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  256,
	})
	require.True(t, call.Execute(context.Background()))

	require.NotNil(t, fake.lastReq.Temperature)
	assert.Equal(t, 0.2, *fake.lastReq.Temperature)
	require.NotNil(t, fake.lastReq.MaxTokens)
	assert.Equal(t, 256, *fake.lastReq.MaxTokens)
}

func TestCallExecuteFailure(t *testing.T) {
	fake := &fakeCaller{err: errors.New("upstream unavailable")}

	call := NewCall(fake, "", "", "prompt", 0, nil)
	ok := call.Execute(context.Background())

	assert.False(t, ok)
	require.Error(t, call.Err())
	assert.Contains(t, call.Err().Error(), "upstream unavailable")
	assert.Empty(t, call.Output)
}
