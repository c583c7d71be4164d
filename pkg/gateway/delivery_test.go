package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
)

type recordingClient struct {
	mu    sync.Mutex
	sends []string

	failTexts  int
	failImages map[string]int
}

func (c *recordingClient) SendText(_ context.Context, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTexts > 0 {
		c.failTexts--
		return errors.New("text send failed")
	}
	c.sends = append(c.sends, "text:"+body)
	return nil
}

func (c *recordingClient) SendImage(_ context.Context, _, url, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := c.failImages[url]; remaining > 0 {
		c.failImages[url] = remaining - 1
		return errors.New("image send failed")
	}
	c.sends = append(c.sends, "image:"+url)
	return nil
}

func (c *recordingClient) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sends))
	copy(out, c.sends)
	return out
}

func testDeliverer(client Client) (*Deliverer, *[]time.Duration) {
	d := NewDeliverer(client, 400*time.Millisecond, retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}, nil)
	var sleeps []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return nil
	}
	return d, &sleeps
}

func TestDeliverCombinedSendsTextFirst(t *testing.T) {
	client := &recordingClient{}
	d, _ := testDeliverer(client)

	err := d.Deliver(context.Background(), "+57300", reply.StructuredReply{
		Type:    reply.TypeCombined,
		Message: "Aquí está el menú",
		Images:  []reply.Image{{URL: "https://cdn.example/a.jpg"}, {URL: "https://cdn.example/b.jpg"}},
	})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}

	got := client.snapshot()
	want := []string{"text:Aquí está el menú", "image:https://cdn.example/a.jpg", "image:https://cdn.example/b.jpg"}
	if len(got) != len(want) {
		t.Fatalf("sends = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sends[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeliverPacesBetweenImagesOnly(t *testing.T) {
	client := &recordingClient{}
	d, sleeps := testDeliverer(client)

	err := d.Deliver(context.Background(), "+57300", reply.StructuredReply{
		Type: reply.TypeImages,
		Images: []reply.Image{
			{URL: "https://cdn.example/a.jpg"},
			{URL: "https://cdn.example/b.jpg"},
			{URL: "https://cdn.example/c.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}

	// Three images, two gaps: no pause before the first, none after the last.
	if len(*sleeps) != 2 {
		t.Fatalf("pacing sleeps = %d, want 2", len(*sleeps))
	}
	for _, s := range *sleeps {
		if s != 400*time.Millisecond {
			t.Fatalf("pacing = %v, want 400ms", s)
		}
	}
}

func TestDeliverRetriesTransientItemFailures(t *testing.T) {
	client := &recordingClient{failTexts: 1}
	d, _ := testDeliverer(client)

	err := d.Deliver(context.Background(), "+57300", reply.Text("hola"))
	if err != nil {
		t.Fatalf("Deliver error after retry: %v", err)
	}
	if got := client.snapshot(); len(got) != 1 || got[0] != "text:hola" {
		t.Fatalf("sends = %v", got)
	}
}

func TestDeliverContinuesPastItemFailure(t *testing.T) {
	client := &recordingClient{failImages: map[string]int{"https://cdn.example/bad.jpg": 5}}
	d, _ := testDeliverer(client)

	err := d.Deliver(context.Background(), "+57300", reply.StructuredReply{
		Type: reply.TypeImages,
		Images: []reply.Image{
			{URL: "https://cdn.example/bad.jpg"},
			{URL: "https://cdn.example/good.jpg"},
		},
	})
	if err == nil {
		t.Fatal("want aggregated error for the failed item")
	}

	got := client.snapshot()
	if len(got) != 1 || got[0] != "image:https://cdn.example/good.jpg" {
		t.Fatalf("sends = %v, want the good image delivered", got)
	}
}
