package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(client, time.Hour, nil)
}

func TestGetReturnsFreshContextForNewSender(t *testing.T) {
	m := testManager(t)

	c := m.Get(context.Background(), "+573001112233")
	if c.Phase != PhaseGreeting {
		t.Fatalf("phase = %s, want greeting", c.Phase)
	}
	if c.Sender != "+573001112233" {
		t.Fatalf("sender = %q", c.Sender)
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	c := m.Get(ctx, "+573001112233")
	c.Phase = PhaseOrdering
	c.DiscussedProducts = []string{"Maracuyá"}
	c.LastTopic = "eligiendo_productos"
	m.Save(ctx, c)

	loaded := m.Get(ctx, "+573001112233")
	if loaded.Phase != PhaseOrdering {
		t.Fatalf("phase = %s, want ordering", loaded.Phase)
	}
	if len(loaded.DiscussedProducts) != 1 || loaded.DiscussedProducts[0] != "Maracuyá" {
		t.Fatalf("products = %v", loaded.DiscussedProducts)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set on save")
	}
}

func TestUpdateFromMessagePersistsHeuristics(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	c := m.UpdateFromMessage(ctx, "+573001112233", "quiero un pave de maracuya de 16 onzas")
	if len(c.DiscussedProducts) == 0 {
		t.Fatal("products not extracted")
	}

	loaded := m.Get(ctx, "+573001112233")
	if len(loaded.DiscussedProducts) == 0 {
		t.Fatal("products not persisted")
	}
}

func TestAdvancePhaseFollowsToolOutcomes(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	c := m.Get(ctx, "+573001112233")

	c = m.AdvancePhase(ctx, c, "get_menu")
	if c.Phase != PhaseBrowsing {
		t.Fatalf("after get_menu phase = %s, want browsing", c.Phase)
	}

	// get_menu only advances out of greeting.
	c = m.AdvancePhase(ctx, c, "get_menu")
	if c.Phase != PhaseBrowsing {
		t.Fatalf("phase = %s, want browsing unchanged", c.Phase)
	}

	c = m.AdvancePhase(ctx, c, "create_order")
	if c.Phase != PhaseConfirming {
		t.Fatalf("after create_order phase = %s, want confirming", c.Phase)
	}

	c = m.AdvancePhase(ctx, c, "cancel_order")
	if c.Phase != PhaseCompleted {
		t.Fatalf("after cancel_order phase = %s, want completed", c.Phase)
	}
}

func TestGetSurvivesCorruptState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := NewManager(client, time.Hour, nil)

	mr.Set("ctx:+573001112233", "{not json")

	c := m.Get(context.Background(), "+573001112233")
	if c.Phase != PhaseGreeting {
		t.Fatalf("phase = %s, want fresh greeting context", c.Phase)
	}
}

func TestManagerWithoutStoreDegrades(t *testing.T) {
	m := NewManager(nil, 0, nil)
	ctx := context.Background()

	c := m.UpdateFromMessage(ctx, "+573001112233", "quiero maracuya")
	if len(c.DiscussedProducts) == 0 {
		t.Fatal("heuristics must still run without a store")
	}

	again := m.Get(ctx, "+573001112233")
	if len(again.DiscussedProducts) != 0 {
		t.Fatal("nothing should persist without a store")
	}
}
