package ai

// ModelPricing contains per-token pricing for OpenRouter models.
// Prices are in USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64 // USD per 1M prompt tokens
	CompletionPrice float64 // USD per 1M completion tokens
}

// modelPricing contains hardcoded pricing for common OpenRouter models
var modelPricing = map[string]ModelPricing{
	// OpenAI models via OpenRouter
	"openai/gpt-4o": {
		PromptPrice:     2.50,
		CompletionPrice: 10.00,
	},
	"openai/gpt-4o-mini": {
		PromptPrice:     0.15,
		CompletionPrice: 0.60,
	},
	"openai/gpt-4-turbo": {
		PromptPrice:     10.00,
		CompletionPrice: 30.00,
	},

	// Anthropic models via OpenRouter
	"anthropic/claude-3.5-sonnet": {
		PromptPrice:     3.00,
		CompletionPrice: 15.00,
	},
	"anthropic/claude-3-haiku": {
		PromptPrice:     0.25,
		CompletionPrice: 1.25,
	},

	// Google models via OpenRouter
	"google/gemini-pro-1.5": {
		PromptPrice:     1.25,
		CompletionPrice: 5.00,
	},
	"google/gemini-flash-1.5": {
		PromptPrice:     0.075,
		CompletionPrice: 0.30,
	},

	// Meta models via OpenRouter
	"meta-llama/llama-3.1-70b-instruct": {
		PromptPrice:     0.40,
		CompletionPrice: 0.40,
	},
}

// defaultPricing is a conservative estimate for models not in the table
var defaultPricing = ModelPricing{
	PromptPrice:     5.00,
	CompletionPrice: 15.00,
}

// GetModelPricing returns pricing for a model, falling back to a conservative
// default for unknown models
func GetModelPricing(model string) ModelPricing {
	if pricing, ok := modelPricing[model]; ok {
		return pricing
	}
	return defaultPricing
}

// CalculateCost computes the USD cost of a completion from token counts
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing := GetModelPricing(model)
	promptCost := float64(promptTokens) / 1_000_000 * pricing.PromptPrice
	completionCost := float64(completionTokens) / 1_000_000 * pricing.CompletionPrice
	return promptCost + completionCost
}
