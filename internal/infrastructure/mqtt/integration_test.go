//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func TestIntegration_SubscriptionTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "rsufleet-int-sub-track"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		Topics{}.AllRSUAcks(SegmentConfig),
		Topics{}.AllRSUAcks(SegmentLog),
		Topics{}.RSUHeartbeatUp(),
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

// Wildcard ack subscriptions receive per-device acks in publish order.
func TestIntegration_OrderedWildcardDelivery(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "rsufleet-int-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	cfg.Broker.ClientID = "rsufleet-int-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	const n = 5
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	err = sub.Subscribe(Topics{}.AllRSUAcks(SegmentConfig), 1, func(_ string, p []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(p))
		if len(got) == n {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < n; i++ {
		if err := pub.Publish(Topics{}.RSUAck("ESN1", SegmentConfig), []byte{byte('0' + i)}, 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for acks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, p := range got {
		if p != string(byte('0'+i)) {
			t.Errorf("message %d = %q, out of order", i, p)
		}
	}
}
