// Package session owns per-sender conversation state: the phase of the
// ordering dialogue, recently discussed products, and the draft order.
// State lives in redis under one key per sender and survives across
// messages for the lifetime of the relationship, not per message.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	contextKeyPrefix = "ctx:"

	// maxDiscussedProducts bounds the remembered product list.
	maxDiscussedProducts = 5
)

// Phase is the position of a sender inside the ordering dialogue.
type Phase string

const (
	PhaseGreeting   Phase = "greeting"
	PhaseBrowsing   Phase = "browsing"
	PhaseOrdering   Phase = "ordering"
	PhaseConfirming Phase = "confirming"
	PhaseDelivery   Phase = "delivery"
	PhasePayment    Phase = "payment"
	PhaseCompleted  Phase = "completed"
)

// Context is the conversation state for one sender. It is owned by the
// orchestrator and mutated once per turn.
type Context struct {
	Sender            string         `json:"sender"`
	Phase             Phase          `json:"phase"`
	DiscussedProducts []string       `json:"discussed_products,omitempty"`
	MentionedSizes    []string       `json:"mentioned_sizes,omitempty"`
	DraftOrder        map[string]any `json:"draft_order,omitempty"`
	LastTopic         string         `json:"last_topic,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Manager loads and stores conversation contexts. A nil redis client
// degrades to per-message empty contexts: the model loses memory but the
// pipeline keeps answering.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewManager builds a session manager with a 24h TTL by default.
func NewManager(client *redis.Client, ttl time.Duration, log *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		client: client,
		ttl:    ttl,
		log:    log.With("component", "session.manager"),
	}
}

// Get returns the sender's context, or a fresh greeting-phase context
// when none is stored or the store is unavailable.
func (m *Manager) Get(ctx context.Context, sender string) Context {
	fresh := Context{Sender: sender, Phase: PhaseGreeting}
	if m.client == nil {
		return fresh
	}

	raw, err := m.client.Get(ctx, contextKeyPrefix+sender).Result()
	if err == redis.Nil {
		return fresh
	}
	if err != nil {
		m.log.Warn("Context load failed, starting fresh", "sender", sender, "error", err)
		return fresh
	}

	var stored Context
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.log.Warn("Context is corrupt, starting fresh", "sender", sender, "error", err)
		return fresh
	}
	if stored.Phase == "" {
		stored.Phase = PhaseGreeting
	}
	stored.Sender = sender

	return stored
}

// Save persists the context best-effort, refreshing the TTL. Failures
// are logged, never propagated: context is an aid, not a requirement.
func (m *Manager) Save(ctx context.Context, c Context) {
	if m.client == nil {
		return
	}

	c.UpdatedAt = time.Now().UTC()
	value, err := json.Marshal(c)
	if err != nil {
		m.log.Warn("Context marshal failed", "sender", c.Sender, "error", err)
		return
	}

	if err := m.client.Set(ctx, contextKeyPrefix+c.Sender, value, m.ttl).Err(); err != nil {
		m.log.Warn("Context save failed", "sender", c.Sender, "error", err)
	}
}

// UpdateFromMessage applies the local text heuristics to the sender's
// context and persists the result. This runs unconditionally on every
// turn, independent of the model, so context stays useful even when the
// model step fails.
func (m *Manager) UpdateFromMessage(ctx context.Context, sender, message string) Context {
	current := m.Get(ctx, sender)
	ApplyMessage(&current, message)
	m.Save(ctx, current)
	return current
}

// AdvancePhase moves the dialogue forward after a successful tool call
// and persists the change.
func (m *Manager) AdvancePhase(ctx context.Context, c Context, toolName string) Context {
	next := phaseAfterTool(c.Phase, toolName)
	if next == c.Phase {
		return c
	}

	c.Phase = next
	m.Save(ctx, c)
	return c
}

func phaseAfterTool(current Phase, toolName string) Phase {
	switch toolName {
	case "get_menu":
		if current == PhaseGreeting {
			return PhaseBrowsing
		}
	case "create_order", "update_order":
		return PhaseConfirming
	case "cancel_order":
		return PhaseCompleted
	}

	return current
}
