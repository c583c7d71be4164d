package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const messageKeyPrefix = "msg:"

// ClaimOutcome is the result of an idempotency claim.
type ClaimOutcome int

const (
	// Accepted means this process won the claim (or no claim was possible).
	Accepted ClaimOutcome = iota
	// Duplicate means the message id was already claimed.
	Duplicate
)

// claimRecord is the value stored under the message key, kept for the
// retention window so operators can inspect what was processed.
type claimRecord struct {
	Sender     string    `json:"sender"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Idempotency records processed provider message ids and rejects
// duplicates atomically via SET NX.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewIdempotency builds the store. A nil client accepts every claim:
// without a shared store the system runs at-least-once.
func NewIdempotency(client *redis.Client, ttl time.Duration, log *slog.Logger) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}

	return &Idempotency{
		client: client,
		ttl:    ttl,
		log:    log.With("component", "store.idempotency"),
	}
}

// Claim registers messageID exactly once. A missing messageID is
// Accepted, since the provider gave us nothing to deduplicate on.
// Infrastructure errors are returned to the caller; they never mask a
// Duplicate and a Duplicate is never reported in error.
func (s *Idempotency) Claim(ctx context.Context, messageID, sender, body string) (ClaimOutcome, error) {
	if messageID == "" || s.client == nil {
		return Accepted, nil
	}

	value, err := json.Marshal(claimRecord{Sender: sender, Body: body, ReceivedAt: time.Now().UTC()})
	if err != nil {
		return Accepted, err
	}

	ok, err := s.client.SetNX(ctx, messageKeyPrefix+messageID, value, s.ttl).Result()
	if err != nil {
		return Accepted, err
	}
	if !ok {
		s.log.Debug("Duplicate message id", "message_id", messageID)
		return Duplicate, nil
	}

	return Accepted, nil
}
