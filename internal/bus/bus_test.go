package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, "carrier-1", domain.TopicCargoRated, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, "carrier-1", domain.TopicCargoRated, []byte(`{"status":"ALLOWED"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.CarrierID != "carrier-1" {
			t.Errorf("expected carrier-1, got %s", msg.CarrierID)
		}
		if msg.Topic != domain.TopicCargoRated {
			t.Errorf("expected topic %s, got %s", domain.TopicCargoRated, msg.Topic)
		}
		if string(msg.Payload) != `{"status":"ALLOWED"}` {
			t.Errorf("unexpected payload: %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected a message id")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelBusCarrierIsolation(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var count int64
	b.Subscribe(ctx, "carrier-1", domain.TopicCargoRated, func(ctx context.Context, msg *domain.Message) error {
		atomic.AddInt64(&count, 1)
		return nil
	})

	// Published for a different carrier: the subscriber must not see it.
	b.Publish(ctx, "carrier-2", domain.TopicCargoRated, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt64(&count) != 0 {
		t.Errorf("expected no cross-carrier delivery, got %d messages", count)
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	var count int64

	for i := 0; i < 2; i++ {
		b.Subscribe(ctx, "carrier-1", domain.TopicCargoBlocked, func(ctx context.Context, msg *domain.Message) error {
			atomic.AddInt64(&count, 1)
			wg.Done()
			return nil
		})
	}

	b.Publish(ctx, "carrier-1", domain.TopicCargoBlocked, []byte("x"))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fan-out delivery")
	}
	if atomic.LoadInt64(&count) != 2 {
		t.Errorf("expected 2 deliveries, got %d", count)
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var count int64
	sub, _ := b.Subscribe(ctx, "carrier-1", domain.TopicCargoRated, func(ctx context.Context, msg *domain.Message) error {
		atomic.AddInt64(&count, 1)
		return nil
	})

	sub.Unsubscribe()
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, "carrier-1", domain.TopicCargoRated, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt64(&count) != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", count)
	}
}

func TestChannelBusRequiresCarrier(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", domain.TopicCargoRated, []byte("x")); err == nil {
		t.Error("expected error for empty carrierID on publish")
	}
	if _, err := b.Subscribe(ctx, "", domain.TopicCargoRated, nil); err == nil {
		t.Error("expected error for empty carrierID on subscribe")
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(100)
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := b.Publish(ctx, "carrier-1", domain.TopicCargoRated, []byte("x")); err == nil {
		t.Error("expected error publishing on a closed bus")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping to fail on a closed bus")
	}
	// Closing twice is fine.
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestChannelBusRequestReply(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	// Responder echoes the payload back on the reply topic carried in
	// the request's topic suffix convention.
	b.Subscribe(ctx, "carrier-1", domain.TopicRateRequest, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	// No responder publishes a reply: the request times out via context.
	_, err := b.Request(reqCtx, "carrier-1", domain.TopicRateRequest, []byte("x"))
	if err == nil {
		t.Error("expected a timeout without a responder")
	}
}
