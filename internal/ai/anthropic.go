package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
)

// AnthropicProvider implements TextProvider using Claude.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	prompts *config.Prompts
}

// NewAnthropicProvider creates a new AnthropicProvider with the given API key
// and prompt configuration. Interpretation and extraction are short tasks, so
// the cheaper Haiku model is used.
func NewAnthropicProvider(apiKey string, prompts *config.Prompts) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client:  client,
		model:   anthropic.Model("claude-haiku-4-5-20251001"),
		prompts: prompts,
	}
}

// recordRecipeTool builds the Claude tool definition for recipe extraction.
func recordRecipeTool() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        recipeToolName,
			Description: anthropic.String("Record the recipe found on the page."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: recipeSchema["properties"],
			},
		},
	}
}

// newUserMessage creates a user message param with the given content blocks.
func newUserMessage(blocks ...anthropic.ContentBlockParamUnion) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleUser,
		Content: blocks,
	}
}

// createMessageWithRetry wraps the Claude API call with exponential backoff.
func (p *AnthropicProvider) createMessageWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	const maxRetries = 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		resp, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		shouldRetry, waitTime := classifyAnthropicError(err)
		if !shouldRetry {
			return nil, fmt.Errorf("claude API error: %w", err)
		}

		logger.Get().Warn("claude API error, retrying",
			zap.Error(err),
			zap.Int("attempt", i+1),
		)

		backoff := waitTime * time.Duration(i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("claude API: exhausted %d retries: %w", maxRetries, lastErr)
}

// classifyAnthropicError determines whether to retry and the base wait duration.
func classifyAnthropicError(err error) (shouldRetry bool, waitTime time.Duration) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return true, 2 * time.Second
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return true, 2 * time.Second
		default:
			return false, 0
		}
	}
	return false, 0
}

// extractTextContent returns the concatenated text blocks from a Claude response.
func extractTextContent(msg *anthropic.Message) (string, error) {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", errors.New("no text content in Claude response")
	}
	return text, nil
}

// Complete sends a single-turn prompt and returns the text reply.
func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			newUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.createMessageWithRetry(ctx, params)
	if err != nil {
		return "", err
	}
	return extractTextContent(resp)
}

// ExtractRecipeFromText extracts a structured recipe via Claude tool use.
func (p *AnthropicProvider) ExtractRecipeFromText(ctx context.Context, pageURL, text string) (*RecipeResult, error) {
	userPrompt, err := config.RenderPrompt(p.prompts.Extract.User, map[string]interface{}{
		"URL":  pageURL,
		"Text": truncateText(text),
	})
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: p.prompts.Extract.System},
		},
		Messages: []anthropic.MessageParam{
			newUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{recordRecipeTool()},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfToolChoiceTool: &anthropic.ToolChoiceToolParam{
				Name: recipeToolName,
			},
		},
	}

	resp, err := p.createMessageWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			raw, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			return decodeRecipeResult(raw)
		}
	}
	return nil, errors.New("no tool_use block found in Claude response")
}
