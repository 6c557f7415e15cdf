package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
)

// OpenAIProvider implements TextProvider using the OpenAI chat API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	prompts *config.Prompts
}

// NewOpenAIProvider creates a new OpenAIProvider.
func NewOpenAIProvider(apiKey string, prompts *config.Prompts) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClient(apiKey),
		model:   openai.GPT4oMini,
		prompts: prompts,
	}
}

// createChatCompletionWithRetry retries rate-limit and server errors.
func (p *OpenAIProvider) createChatCompletionWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	const maxRetries = 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		shouldRetry, waitTime := classifyOpenAIError(err)
		if !shouldRetry {
			return openai.ChatCompletionResponse{}, fmt.Errorf("openai API error: %w", err)
		}

		logger.Get().Warn("openai API error, retrying",
			zap.Error(err),
			zap.Int("attempt", i+1),
		)

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			case <-time.After(waitTime * time.Duration(i+1)):
			}
		}
	}

	return openai.ChatCompletionResponse{}, fmt.Errorf("openai API: exhausted %d retries: %w", maxRetries, lastErr)
}

// classifyOpenAIError determines whether an OpenAI API error is retryable.
func classifyOpenAIError(err error) (shouldRetry bool, waitTime time.Duration) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return true, 2 * time.Second
		case 500, 502, 503:
			return true, 2 * time.Second
		default:
			return false, 0
		}
	}
	return false, 0
}

// Complete sends a single-turn prompt and returns the text reply.
func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := p.createChatCompletionWithRetry(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("OpenAI API returned an empty message")
	}
	return resp.Choices[0].Message.Content, nil
}

// ExtractRecipeFromText extracts a structured recipe via function calling.
func (p *OpenAIProvider) ExtractRecipeFromText(ctx context.Context, pageURL, text string) (*RecipeResult, error) {
	userPrompt, err := config.RenderPrompt(p.prompts.Extract.User, map[string]interface{}{
		"URL":  pageURL,
		"Text": truncateText(text),
	})
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	resp, err := p.createChatCompletionWithRetry(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.prompts.Extract.System},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        recipeToolName,
				Description: "Record the recipe found on the page.",
				Parameters:  recipeSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: recipeToolName},
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.New("OpenAI API returned no tool call")
	}
	return decodeRecipeResult([]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments))
}
