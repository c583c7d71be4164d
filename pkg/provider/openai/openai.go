// Package openai implements the provider contract on the OpenAI chat
// completions API: JSON-mode replies plus function tools.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"pavebot/pkg/config"
	"pavebot/pkg/provider"
)

const (
	// Replies over WhatsApp stay short; the budget matches that.
	maxCompletionTokens = 400
	temperature         = 0.4
)

func init() {
	provider.RegisterFactory("openai", func(cfg *config.Config) (provider.Client, error) {
		return New(cfg.Provider.OpenAI)
	})
}

// Client wraps the OpenAI SDK with the pipeline's request timeout and
// fixed sampling settings.
type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
}

// New validates configuration and constructs the client.
func New(cfg config.OpenAIConfig) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("provider.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("provider.openai.model is required")
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

// Complete runs the first round of a turn.
func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Completion, error) {
	messages := []osdk.ChatCompletionMessageParamUnion{
		osdk.SystemMessage(req.System),
		osdk.UserMessage(req.User),
	}

	return c.chat(ctx, "complete", req, messages)
}

// CompleteWithToolResult runs the second round: the original exchange
// plus the executed tool call and its serialized result.
func (c *Client) CompleteWithToolResult(ctx context.Context, req provider.Request, call provider.ToolRequest, result string) (provider.Completion, error) {
	assistant := osdk.ChatCompletionAssistantMessageParam{
		ToolCalls: []osdk.ChatCompletionMessageToolCallUnionParam{{
			OfFunction: &osdk.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: osdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			},
		}},
	}

	messages := []osdk.ChatCompletionMessageParamUnion{
		osdk.SystemMessage(req.System),
		osdk.UserMessage(req.User),
		{OfAssistant: &assistant},
		osdk.ToolMessage(result, call.ID),
	}

	return c.chat(ctx, "complete_with_tool_result", req, messages)
}

func (c *Client) chat(ctx context.Context, operation string, req provider.Request, messages []osdk.ChatCompletionMessageParamUnion) (provider.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	log := providerLogger().With("operation", operation)
	startedAt := time.Now()
	log.Debug("provider request started", "model", c.model, "tools", len(req.Tools))

	params := osdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: osdk.Float(temperature),
		MaxTokens:   osdk.Int(maxCompletionTokens),
		ResponseFormat: osdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return provider.Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return provider.Completion{}, errors.New("chat completion returned no choices")
	}

	message := completion.Choices[0].Message
	result := provider.Completion{Content: strings.TrimSpace(message.Content)}
	for _, toolCall := range message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, provider.ToolRequest{
			ID:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: toolCall.Function.Arguments,
		})
	}

	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"tool_calls", len(result.ToolCalls),
		"content_length", len(result.Content),
	)

	return result, nil
}

func toolParams(tools []provider.ToolDefinition) []osdk.ChatCompletionToolUnionParam {
	params := make([]osdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		params = append(params, osdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: osdk.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		}))
	}

	return params
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
