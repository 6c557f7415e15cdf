package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
)

// OllamaProvider implements TextProvider against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	prompts    *config.Prompts
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for the Ollama server at baseURL.
func NewOllamaProvider(baseURL, model string, prompts *config.Prompts) *OllamaProvider {
	logger.Get().Info("ollama provider initialized",
		zap.String("base_url", baseURL),
		zap.String("model", model))

	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		prompts: prompts,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (p *OllamaProvider) chat(ctx context.Context, req ollamaChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}
	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("ollama returned an empty message")
	}
	return chatResp.Message.Content, nil
}

// Complete sends a single-turn prompt and returns the text reply.
func (p *OllamaProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	var messages []ollamaMessage
	if system != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	return p.chat(ctx, ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
	})
}

// ExtractRecipeFromText asks the model for a JSON recipe object. Ollama has
// no tool calling for every model, so the schema goes in the system prompt
// and JSON output mode is requested.
func (p *OllamaProvider) ExtractRecipeFromText(ctx context.Context, pageURL, text string) (*RecipeResult, error) {
	userPrompt, err := config.RenderPrompt(p.prompts.Extract.User, map[string]interface{}{
		"URL":  pageURL,
		"Text": truncateText(text),
	})
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	schema, err := json.Marshal(recipeSchema)
	if err != nil {
		return nil, err
	}
	system := p.prompts.Extract.System + "\n\nReply with a single JSON object matching this schema:\n" + string(schema)

	content, err := p.chat(ctx, ollamaChatRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userPrompt},
		},
		Format: "json",
	})
	if err != nil {
		return nil, err
	}
	return decodeRecipeResult([]byte(content))
}
