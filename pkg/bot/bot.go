// Package bot is the conversational orchestrator: it turns one inbound
// message into one validated structured reply, driving the model, the
// tool registry, and the session state.
package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"pavebot/pkg/provider"
	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
	"pavebot/pkg/session"
	"pavebot/pkg/tools"
)

// nonTextPlaceholder stands in for messages with no usable text body
// (audio, stickers, locations) so the model still gets a turn.
const nonTextPlaceholder = "[non-text]"

// Bot orchestrates one turn per inbound message. Every path out of
// HandleMessage produces a validated reply; it never returns an error.
type Bot struct {
	provider     provider.Client
	registry     *tools.Registry
	sessions     *session.Manager
	retryPolicy  retry.Policy
	modelTimeout time.Duration
	log          *slog.Logger
}

// New wires the orchestrator. modelTimeout bounds each model attempt;
// the retry policy bounds how many attempts one round gets.
func New(client provider.Client, registry *tools.Registry, sessions *session.Manager, policy retry.Policy, modelTimeout time.Duration, log *slog.Logger) *Bot {
	if modelTimeout <= 0 {
		modelTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Bot{
		provider:     client,
		registry:     registry,
		sessions:     sessions,
		retryPolicy:  policy,
		modelTimeout: modelTimeout,
		log:          log.With("component", "bot"),
	}
}

// HandleMessage runs one conversational turn for a sender. The sender
// identity comes from the transport and is the only identity tools ever
// see, whatever the model claims.
func (b *Bot) HandleMessage(ctx context.Context, sender, body string) reply.StructuredReply {
	log := b.log.With("sender", maskSender(sender))
	startedAt := time.Now()

	if strings.TrimSpace(body) == "" {
		body = nonTextPlaceholder
	}

	// Context updates run before and independent of the model, so the
	// conversation memory survives model failures.
	conv := b.sessions.UpdateFromMessage(ctx, sender, body)
	annotation := session.InterpretVagueReference(body, conv)
	if annotation != "" {
		log.Debug("vague reference resolved", "annotation", annotation)
	}

	req := provider.Request{
		System: systemPrompt,
		User:   buildUserPrompt(sender, body, annotation, conv),
		Tools:  b.registry.Definitions(),
	}

	completion, err := b.complete(ctx, func(attemptCtx context.Context) (provider.Completion, error) {
		return b.provider.Complete(attemptCtx, req)
	})
	if err != nil {
		log.Warn("model round failed after retries", "error", err, "duration_ms", time.Since(startedAt).Milliseconds())
		return reply.Text(reply.Unavailable)
	}

	if len(completion.ToolCalls) > 0 {
		return b.runToolTurn(ctx, log, req, conv, completion, startedAt)
	}

	out := reply.Parse(completion.Content)
	log.Debug("turn completed", "reply_type", string(out.Type), "duration_ms", time.Since(startedAt).Milliseconds())
	return out
}

// runToolTurn executes exactly one tool call and the follow-up model
// round. Extra tool requests in either round are dropped.
func (b *Bot) runToolTurn(ctx context.Context, log *slog.Logger, req provider.Request, conv session.Context, first provider.Completion, startedAt time.Time) reply.StructuredReply {
	call := first.ToolCalls[0]
	if len(first.ToolCalls) > 1 {
		log.Warn("model requested multiple tools, executing first only", "requested", len(first.ToolCalls), "tool", call.Name)
	}

	result := b.registry.Dispatch(ctx, conv.Sender, call)
	if toolSucceeded(result) {
		b.sessions.AdvancePhase(ctx, conv, call.Name)
	}

	second, err := b.complete(ctx, func(attemptCtx context.Context) (provider.Completion, error) {
		return b.provider.CompleteWithToolResult(attemptCtx, req, call, result)
	})
	if err != nil {
		log.Warn("tool follow-up round failed after retries", "tool", call.Name, "error", err)
		return reply.Text(reply.Unavailable)
	}

	// The protocol allows one tool per turn. A second request is not
	// honored; the turn closes with whatever text the model produced.
	if len(second.ToolCalls) > 0 {
		log.Warn("model requested a second tool, refusing", "tool", second.ToolCalls[0].Name)
		if strings.TrimSpace(second.Content) == "" {
			return reply.Text(reply.DefaultPrompt)
		}
	}

	out := reply.Parse(second.Content)
	log.Debug("turn completed", "reply_type", string(out.Type), "tool", call.Name, "duration_ms", time.Since(startedAt).Milliseconds())
	return out
}

// complete runs one model round under the retry policy, with the
// per-attempt timeout applied inside each attempt.
func (b *Bot) complete(ctx context.Context, round func(ctx context.Context) (provider.Completion, error)) (provider.Completion, error) {
	var completion provider.Completion
	err := retry.Do(ctx, b.retryPolicy, provider.IsRetryable, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, b.modelTimeout)
		defer cancel()

		result, err := round(attemptCtx)
		if err != nil {
			return err
		}
		completion = result
		return nil
	})

	return completion, err
}

func toolSucceeded(serialized string) bool {
	var outcome struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(serialized), &outcome); err != nil {
		return false
	}

	return outcome.Success
}

// maskSender keeps the last four digits for log correlation.
func maskSender(sender string) string {
	if len(sender) <= 4 {
		return "****"
	}

	return strings.Repeat("*", len(sender)-4) + sender[len(sender)-4:]
}
