package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClaimFirstAcceptedThenDuplicate(t *testing.T) {
	idem := NewIdempotency(testClient(t), time.Hour, nil)
	ctx := context.Background()

	outcome, err := idem.Claim(ctx, "SM123", "+573001112233", "hola")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if outcome != Accepted {
		t.Fatalf("first claim = %v, want Accepted", outcome)
	}

	outcome, err = idem.Claim(ctx, "SM123", "+573001112233", "hola")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if outcome != Duplicate {
		t.Fatalf("second claim = %v, want Duplicate", outcome)
	}
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	idem := NewIdempotency(testClient(t), time.Hour, nil)
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	outcomes := make([]ClaimOutcome, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := idem.Claim(ctx, "SM-race", "+573001112233", "hola")
			if err != nil {
				t.Errorf("Claim error: %v", err)
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, outcome := range outcomes {
		if outcome == Accepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
}

func TestClaimWithoutMessageIDAccepts(t *testing.T) {
	idem := NewIdempotency(testClient(t), time.Hour, nil)

	for i := 0; i < 2; i++ {
		outcome, err := idem.Claim(context.Background(), "", "+573001112233", "hola")
		if err != nil {
			t.Fatalf("Claim error: %v", err)
		}
		if outcome != Accepted {
			t.Fatalf("claim = %v, want Accepted", outcome)
		}
	}
}

func TestClaimWithoutStoreAccepts(t *testing.T) {
	idem := NewIdempotency(nil, time.Hour, nil)

	outcome, err := idem.Claim(context.Background(), "SM123", "+573001112233", "hola")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if outcome != Accepted {
		t.Fatalf("claim = %v, want Accepted", outcome)
	}
}
