// Package provider abstracts the language-model service. The
// orchestrator speaks this interface only; provider specifics (message
// threading, tool encodings) stay inside the implementations.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	osdk "github.com/openai/openai-go/v3"

	"pavebot/pkg/config"
)

// ToolDefinition declares one callable capability to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// ToolRequest is the model asking for one tool invocation.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments string
}

// Request carries one model invocation: instructions, the user prompt,
// and the declared tools.
type Request struct {
	System string
	User   string
	Tools  []ToolDefinition
}

// Completion is the model's answer: either tool requests, or final
// content (raw JSON, validated downstream).
type Completion struct {
	Content   string
	ToolCalls []ToolRequest
}

// Client is the language-model service contract.
type Client interface {
	// Complete runs the first round of a turn.
	Complete(ctx context.Context, req Request) (Completion, error)
	// CompleteWithToolResult runs the second round: the original
	// request plus the executed tool call and its serialized result.
	CompleteWithToolResult(ctx context.Context, req Request, call ToolRequest, result string) (Completion, error)
}

// Factory builds the configured provider client. Implementations are
// registered here rather than injected so cmd wiring stays flat.
type Factory func(cfg *config.Config) (Client, error)

var factories = map[string]Factory{}

// RegisterFactory installs a named provider constructor.
func RegisterFactory(name string, factory Factory) {
	factories[name] = factory
}

// New resolves the configured provider client.
func New(cfg *config.Config) (Client, error) {
	providerID := cfg.Provider.Default
	if providerID == "" {
		providerID = "openai"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	factory, ok := factories[providerID]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}

	return factory(cfg)
}

// IsRetryable classifies transient provider failures: connection
// problems, timeouts, provider throttling, and server errors. Anything
// the provider rejected outright (bad request, auth) is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *osdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408, apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	// Non-API errors are transport-level: connection resets, DNS, TLS.
	return true
}
