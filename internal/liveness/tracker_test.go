package liveness

import (
	"context"
	"testing"
	"time"
)

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	tr := NewTracker(NewMemoryStore(clock.Now), 30*time.Second, 20*time.Second)
	tr.now = clock.Now
	return tr, clock
}

func TestTracker_RSU(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()

	alive, err := tr.RSUAlive(ctx, "ESN1")
	if err != nil || alive {
		t.Fatalf("RSUAlive() before touch = (%v, %v), want (false, nil)", alive, err)
	}

	if err := tr.TouchRSU(ctx, "ESN1"); err != nil {
		t.Fatalf("TouchRSU() error = %v", err)
	}
	seen, ok, err := tr.RSULastSeen(ctx, "ESN1")
	if err != nil || !ok || !seen.Equal(clock.Now()) {
		t.Errorf("RSULastSeen() = (%v, %v, %v), want (%v, true, nil)", seen, ok, err, clock.Now())
	}

	clock.Advance(29 * time.Second)
	if alive, _ := tr.RSUAlive(ctx, "ESN1"); !alive {
		t.Error("RSUAlive() = false inside TTL")
	}

	clock.Advance(2 * time.Second)
	if alive, _ := tr.RSUAlive(ctx, "ESN1"); alive {
		t.Error("RSUAlive() = true after TTL")
	}
}

func TestTracker_ForgetRSU(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	_ = tr.TouchRSU(ctx, "ESN1")
	if err := tr.ForgetRSU(ctx, "ESN1"); err != nil {
		t.Fatalf("ForgetRSU() error = %v", err)
	}
	if alive, _ := tr.RSUAlive(ctx, "ESN1"); alive {
		t.Error("RSUAlive() = true after ForgetRSU")
	}
}

func TestTracker_Edge(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()

	if err := tr.TouchEdge(ctx, 7); err != nil {
		t.Fatalf("TouchEdge() error = %v", err)
	}
	if alive, _ := tr.EdgeAlive(ctx, 7); !alive {
		t.Error("EdgeAlive() = false right after touch")
	}
	if alive, _ := tr.EdgeAlive(ctx, 8); alive {
		t.Error("EdgeAlive() = true for an edge never touched")
	}

	clock.Advance(21 * time.Second)
	if alive, _ := tr.EdgeAlive(ctx, 7); alive {
		t.Error("EdgeAlive() = true after edge TTL")
	}

	_ = tr.TouchEdge(ctx, 7)
	_ = tr.ForgetEdge(ctx, 7)
	if alive, _ := tr.EdgeAlive(ctx, 7); alive {
		t.Error("EdgeAlive() = true after ForgetEdge")
	}
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(NewMemoryStore(nil), 0, -1)
	if tr.rsuTTL != DefaultRSUTTL || tr.edgeTTL != DefaultEdgeTTL {
		t.Errorf("ttls = %v/%v, want defaults", tr.rsuTTL, tr.edgeTTL)
	}
}

func TestKeys(t *testing.T) {
	if got := RSUKey("ESN1"); got != "rsu:ESN1" {
		t.Errorf("RSUKey() = %q", got)
	}
	if got := EdgeKey(42); got != "edge:42" {
		t.Errorf("EdgeKey() = %q", got)
	}
}
