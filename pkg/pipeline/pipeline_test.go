package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"pavebot/pkg/bot"
	"pavebot/pkg/gateway"
	"pavebot/pkg/orders"
	"pavebot/pkg/provider"
	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
	"pavebot/pkg/session"
	"pavebot/pkg/store"
	"pavebot/pkg/tools"
)

type scriptedProvider struct {
	content string
	block   bool
}

func (p *scriptedProvider) Complete(ctx context.Context, _ provider.Request) (provider.Completion, error) {
	if p.block {
		<-ctx.Done()
		return provider.Completion{}, ctx.Err()
	}
	return provider.Completion{Content: p.content}, nil
}

func (p *scriptedProvider) CompleteWithToolResult(ctx context.Context, _ provider.Request, _ provider.ToolRequest, _ string) (provider.Completion, error) {
	return provider.Completion{Content: p.content}, nil
}

type recordingGateway struct {
	mu    sync.Mutex
	texts []string
}

func (g *recordingGateway) SendText(_ context.Context, _, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, body)
	return nil
}

func (g *recordingGateway) SendImage(context.Context, string, string, string) error {
	return nil
}

func (g *recordingGateway) sentTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.texts))
	copy(out, g.texts)
	return out
}

func testProcessor(t *testing.T, p provider.Client, ratePerMin int, deadline time.Duration) (*Processor, *recordingGateway) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := tools.NewRegistry(time.Second, 0)
	tools.RegisterOrderTools(registry, orders.NewMemoryService(), time.Second)

	policy := retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}
	sessions := session.NewManager(client, time.Hour, nil)
	b := bot.New(p, registry, sessions, policy, time.Second, nil)

	gw := &recordingGateway{}
	deliverer := gateway.NewDeliverer(gw, 0, policy, nil)

	idempotency := store.NewIdempotency(client, time.Hour, nil)
	limiter := store.NewRateLimiter(client, time.Minute, nil)

	return NewProcessor(idempotency, limiter, b, deliverer, ratePerMin, deadline, nil), gw
}

func TestProcessDeliversReply(t *testing.T) {
	p := &scriptedProvider{content: `{"type":"text","text_message":"¡Hola!"}`}
	processor, gw := testProcessor(t, p, 30, 5*time.Second)

	outcome := processor.Process(context.Background(), Envelope{MessageID: "SM1", Sender: "+573001112233", Body: "hola"})
	require.Equal(t, OutcomeDelivered, outcome)
	require.Equal(t, []string{"¡Hola!"}, gw.sentTexts())
}

func TestProcessDropsDuplicatesSilently(t *testing.T) {
	p := &scriptedProvider{content: `{"type":"text","text_message":"¡Hola!"}`}
	processor, gw := testProcessor(t, p, 30, 5*time.Second)
	ctx := context.Background()

	env := Envelope{MessageID: "SM1", Sender: "+573001112233", Body: "hola"}
	require.Equal(t, OutcomeDelivered, processor.Process(ctx, env))
	require.Equal(t, OutcomeDuplicate, processor.Process(ctx, env))

	// The duplicate produced no second reply.
	require.Len(t, gw.sentTexts(), 1)
}

func TestProcessThrottlesAndNotifies(t *testing.T) {
	p := &scriptedProvider{content: `{"type":"text","text_message":"¡Hola!"}`}
	processor, gw := testProcessor(t, p, 1, 5*time.Second)
	ctx := context.Background()

	require.Equal(t, OutcomeDelivered, processor.Process(ctx, Envelope{MessageID: "SM1", Sender: "+573001112233", Body: "hola"}))

	outcome := processor.Process(ctx, Envelope{MessageID: "SM2", Sender: "+573001112233", Body: "hola otra vez"})
	require.Equal(t, OutcomeThrottled, outcome)

	texts := gw.sentTexts()
	require.Len(t, texts, 2)
	require.Equal(t, reply.Throttled, texts[1])
}

func TestProcessDeadlineSendsDelayNotice(t *testing.T) {
	p := &scriptedProvider{block: true}
	processor, gw := testProcessor(t, p, 30, 50*time.Millisecond)

	outcome := processor.Process(context.Background(), Envelope{MessageID: "SM1", Sender: "+573001112233", Body: "hola"})
	require.Equal(t, OutcomeDelivered, outcome)

	texts := gw.sentTexts()
	require.Len(t, texts, 1)
	require.Equal(t, reply.Delayed, texts[0])
}

func TestProcessWithoutMessageIDStillProcesses(t *testing.T) {
	p := &scriptedProvider{content: `{"type":"text","text_message":"¡Hola!"}`}
	processor, gw := testProcessor(t, p, 30, 5*time.Second)
	ctx := context.Background()

	env := Envelope{Sender: "+573001112233", Body: "hola"}
	require.Equal(t, OutcomeDelivered, processor.Process(ctx, env))
	require.Equal(t, OutcomeDelivered, processor.Process(ctx, env))
	require.Len(t, gw.sentTexts(), 2)
}
