package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
)

// Deliverer applies the delivery policy: text before images on combined
// replies, sequential image sends with pacing between them, bounded
// retries per item, and no abort on a single item failure.
type Deliverer struct {
	client Client
	pacing time.Duration
	policy retry.Policy
	log    *slog.Logger

	// sleep is swapped in tests to observe pacing without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer builds a deliverer. pacing is the gap between
// consecutive image sends.
func NewDeliverer(client Client, pacing time.Duration, policy retry.Policy, log *slog.Logger) *Deliverer {
	if log == nil {
		log = slog.Default()
	}

	return &Deliverer{
		client: client,
		pacing: pacing,
		policy: policy,
		log:    log.With("component", "gateway.delivery"),
		sleep:  sleepCtx,
	}
}

// Deliver sends one validated reply to a recipient. Item failures are
// logged and collected; delivery continues so one bad image does not
// swallow the rest of the reply.
func (d *Deliverer) Deliver(ctx context.Context, to string, r reply.StructuredReply) error {
	var failures []error

	if r.Type == reply.TypeText || r.Type == reply.TypeCombined {
		if err := d.sendWithRetry(ctx, func(ctx context.Context) error {
			return d.client.SendText(ctx, to, r.Message)
		}); err != nil {
			d.log.Warn("text delivery failed", "error", err)
			failures = append(failures, fmt.Errorf("text: %w", err))
		}
	}

	for i, img := range r.Images {
		if i > 0 || r.Type == reply.TypeCombined {
			// Pace between sends only; the first item of an
			// images-only reply goes out immediately.
			if err := d.sleep(ctx, d.pacing); err != nil {
				failures = append(failures, err)
				break
			}
		}

		img := img
		if err := d.sendWithRetry(ctx, func(ctx context.Context) error {
			return d.client.SendImage(ctx, to, img.URL, img.Caption)
		}); err != nil {
			d.log.Warn("image delivery failed", "url", img.URL, "error", err)
			failures = append(failures, fmt.Errorf("image %d: %w", i, err))
		}
	}

	return errors.Join(failures...)
}

func (d *Deliverer) sendWithRetry(ctx context.Context, send func(ctx context.Context) error) error {
	return retry.Do(ctx, d.policy, nil, send)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
