// Package tools is the bounded tool-calling layer. The model never
// touches collaborators directly: every invocation passes through the
// registry, which validates the tool name and arguments, injects the
// sender identity, enforces a timeout, and always hands back a
// structured result the model can relay.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pavebot/pkg/provider"
)

// TruncationMarker is appended when a serialized payload exceeds the
// configured byte cap.
const TruncationMarker = "...[truncated]"

// Result codes for failed invocations.
const (
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidArguments = "invalid_arguments"
	CodeTimeout          = "timeout"
	CodeToolPanic        = "tool_panic"
)

// Handler executes one tool. args is the decoded argument object with
// the sender identity already injected under "phone_number".
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON-schema object advertised to the model.
	Parameters map[string]any
	// Timeout bounds one execution; zero means the registry default.
	Timeout time.Duration
	Handler Handler
}

// Result is the uniform outcome of a dispatch. It is always serialized
// and returned to the model, success or not, so the conversation can
// continue either way.
type Result struct {
	Success    bool   `json:"success"`
	Tool       string `json:"tool"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	NextStep   string `json:"next_step,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Registry holds the registered tools and dispatch policy.
type Registry struct {
	tools           map[string]Tool
	order           []string
	defaultTimeout  time.Duration
	maxPayloadBytes int
	log             *slog.Logger
}

// NewRegistry builds an empty registry. maxPayloadBytes caps serialized
// results; zero disables the cap.
func NewRegistry(defaultTimeout time.Duration, maxPayloadBytes int) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = 4 * time.Second
	}

	return &Registry{
		tools:           make(map[string]Tool),
		defaultTimeout:  defaultTimeout,
		maxPayloadBytes: maxPayloadBytes,
		log:             slog.Default().With("component", "tools"),
	}
}

// Register adds a tool. Later registrations with the same name replace
// earlier ones.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Definitions lists the registered tools in registration order, in the
// shape the provider advertises to the model.
func (r *Registry) Definitions() []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, provider.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}

	return defs
}

// Dispatch runs one requested tool call for the given sender and
// returns the serialized result. It never returns an error to the
// caller: failures are encoded in the payload so the model can explain
// them to the user.
func (r *Registry) Dispatch(ctx context.Context, sender string, call provider.ToolRequest) string {
	log := r.log.With("tool", call.Name)
	startedAt := time.Now()

	tool, ok := r.tools[call.Name]
	if !ok {
		log.Warn("unknown tool requested")
		return r.serialize(Result{
			Tool:       call.Name,
			Code:       CodeUnknownTool,
			Error:      fmt.Sprintf("no tool named %q", call.Name),
			Suggestion: "Usa únicamente las herramientas declaradas.",
			NextStep:   "Responde al usuario sin herramientas.",
		})
	}

	args := map[string]any{}
	if raw := call.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			log.Warn("tool arguments did not decode", "error", err)
			return r.serialize(Result{
				Tool:       call.Name,
				Code:       CodeInvalidArguments,
				Error:      "arguments were not a JSON object",
				Suggestion: "Envía los argumentos como objeto JSON.",
				NextStep:   "Pide al usuario los datos que falten.",
			})
		}
	}
	// The sender identity always comes from the transport, never from
	// the model.
	args["phone_number"] = sender

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := r.execute(ctx, tool, args)
	elapsed := time.Since(startedAt)

	switch {
	case err == nil:
		log.Debug("tool completed", "duration_ms", elapsed.Milliseconds())
		return r.serialize(Result{Success: true, Tool: call.Name, Data: data})
	case ctx.Err() != nil:
		log.Warn("tool timed out", "duration_ms", elapsed.Milliseconds())
		return r.serialize(Result{
			Tool:       call.Name,
			Code:       CodeTimeout,
			Error:      "the tool did not finish in time",
			Suggestion: "Informa al usuario que hubo una demora.",
			NextStep:   "Sugiere intentar de nuevo en un momento.",
		})
	default:
		log.Warn("tool failed", "duration_ms", elapsed.Milliseconds(), "error", err)
		result := Result{
			Tool:  call.Name,
			Error: err.Error(),
		}
		var enriched *ResultError
		if errors.As(err, &enriched) {
			result.Code = enriched.Code
			result.Suggestion = enriched.Suggestion
			result.NextStep = enriched.NextStep
		}
		return r.serialize(result)
	}
}

// execute isolates handler panics so a buggy tool degrades to a
// structured failure instead of killing the message goroutine.
func (r *Registry) execute(ctx context.Context, tool Tool, args map[string]any) (data any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &ResultError{
				Code:       CodeToolPanic,
				Message:    fmt.Sprintf("tool panicked: %v", recovered),
				Suggestion: "Informa al usuario de un problema momentáneo.",
				NextStep:   "Sugiere intentar de nuevo.",
			}
		}
	}()

	return tool.Handler(ctx, args)
}

func (r *Registry) serialize(result Result) string {
	payload, err := json.Marshal(result)
	if err != nil {
		// Result only holds JSON-encodable data in practice; keep the
		// protocol alive regardless.
		return fmt.Sprintf(`{"success":false,"tool":%q,"code":"internal","error":"result not serializable"}`, result.Tool)
	}

	if r.maxPayloadBytes > 0 && len(payload) > r.maxPayloadBytes {
		cut := r.maxPayloadBytes - len(TruncationMarker)
		if cut < 0 {
			cut = 0
		}
		return string(payload[:cut]) + TruncationMarker
	}

	return string(payload)
}

// ResultError carries the structured fields of a failed tool execution.
// Handlers return it when they can suggest a recovery path.
type ResultError struct {
	Code       string
	Message    string
	Suggestion string
	NextStep   string
}

func (e *ResultError) Error() string {
	return e.Message
}
