// Package pipeline runs the per-message intake path: idempotency claim,
// rate limiting, the conversational turn, and outbound delivery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pavebot/pkg/bot"
	"pavebot/pkg/gateway"
	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
	"pavebot/pkg/store"
)

// Envelope is one inbound message after transport normalization.
type Envelope struct {
	// MessageID is the transport's unique id, used for deduplication.
	MessageID string
	// Sender is the normalized sender identity (MSISDN or chat id).
	Sender string
	// Body is the text content; empty for non-text messages.
	Body string
}

// Outcome classifies what the pipeline did with a message.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeThrottled Outcome = "throttled"
	OutcomeFailed    Outcome = "failed"
)

// Processor owns the intake policy for one gateway.
type Processor struct {
	idempotency *store.Idempotency
	limiter     *store.RateLimiter
	bot         *bot.Bot
	deliverer   *gateway.Deliverer
	ratePerMin  int
	deadline    time.Duration
	log         *slog.Logger
}

// NewProcessor wires the pipeline. deadline bounds the whole turn for
// one message; past it the sender gets the fixed delay notice instead
// of silence.
func NewProcessor(idempotency *store.Idempotency, limiter *store.RateLimiter, b *bot.Bot, deliverer *gateway.Deliverer, ratePerMin int, deadline time.Duration, log *slog.Logger) *Processor {
	if ratePerMin <= 0 {
		ratePerMin = 30
	}
	if deadline <= 0 {
		deadline = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Processor{
		idempotency: idempotency,
		limiter:     limiter,
		bot:         b,
		deliverer:   deliverer,
		ratePerMin:  ratePerMin,
		deadline:    deadline,
		log:         log.With("component", "pipeline"),
	}
}

// Process handles one message end to end and reports what happened.
// Duplicates are dropped silently; everything else produces exactly one
// reply to the sender.
func (p *Processor) Process(ctx context.Context, env Envelope) Outcome {
	log := p.log.With("message_id", env.MessageID, "sender", maskSender(env.Sender))
	startedAt := time.Now()

	var claim store.ClaimOutcome
	err := retry.Do(ctx, retry.Policy{Attempts: 2, BaseDelay: 100 * time.Millisecond}, nil, func(ctx context.Context) error {
		var claimErr error
		claim, claimErr = p.idempotency.Claim(ctx, env.MessageID, env.Sender, env.Body)
		return claimErr
	})
	if err != nil {
		// The claim store is unreachable; processing once more beats
		// dropping the message.
		log.Warn("idempotency claim degraded, processing anyway", "error", err)
		claim = store.Accepted
	}
	if claim == store.Duplicate {
		log.Debug("duplicate message dropped")
		return OutcomeDuplicate
	}

	allowed, count := p.limiter.CheckAndIncrement(ctx, env.Sender, p.ratePerMin)
	if !allowed {
		log.Info("sender throttled", "count", count, "limit", p.ratePerMin)
		if err := p.deliverer.Deliver(ctx, env.Sender, reply.Text(reply.Throttled)); err != nil {
			log.Warn("throttle notice delivery failed", "error", err)
		}
		return OutcomeThrottled
	}

	turnCtx, cancel := context.WithTimeout(ctx, p.deadline)
	response := p.bot.HandleMessage(turnCtx, env.Sender, env.Body)
	deadlineHit := errors.Is(turnCtx.Err(), context.DeadlineExceeded)
	cancel()

	if deadlineHit {
		log.Warn("turn deadline exceeded", "deadline_ms", p.deadline.Milliseconds())
		response = reply.Text(reply.Delayed)
	}

	// Delivery runs on the parent context so a turn that consumed the
	// whole deadline still gets its reply out.
	if err := p.deliverer.Deliver(ctx, env.Sender, response); err != nil {
		log.Error("delivery failed", "error", err, "duration_ms", time.Since(startedAt).Milliseconds())
		return OutcomeFailed
	}

	log.Info("message processed", "outcome", string(OutcomeDelivered), "duration_ms", time.Since(startedAt).Milliseconds())
	return OutcomeDelivered
}

func maskSender(sender string) string {
	if len(sender) <= 4 {
		return "****"
	}

	return strings.Repeat("*", len(sender)-4) + sender[len(sender)-4:]
}
