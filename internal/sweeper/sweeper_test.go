package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/rsu-fleet-core/internal/liveness"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fleet struct {
	registry *rsu.Registry
	tracker  *liveness.Tracker
	clock    *manualClock
	sweeper  *Sweeper
}

func newFleet(t *testing.T) *fleet {
	t.Helper()
	db := dbtest.Open(t)
	clock := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := rsu.NewRegistry(rsu.NewSQLiteRepository(db.DB))
	tracker := liveness.NewTracker(liveness.NewMemoryStore(clock.Now), 30*time.Second, 30*time.Second)
	return &fleet{
		registry: reg,
		tracker:  tracker,
		clock:    clock,
		sweeper:  New(reg, tracker, "cloud-test"),
	}
}

func (f *fleet) createRSU(t *testing.T, esn string) *rsu.RSU {
	t.Helper()
	d := &rsu.RSU{ESN: esn}
	if err := f.registry.Create(context.Background(), d); err != nil {
		t.Fatalf("Create(%s) error = %v", esn, err)
	}
	return d
}

type recordedSweep struct {
	online, marked int
}

type recordingMetrics struct {
	sweeps []recordedSweep
}

func (m *recordingMetrics) WriteFleetLiveness(_ string, online, marked int, _ time.Time) {
	m.sweeps = append(m.sweeps, recordedSweep{online, marked})
}

func TestSweepRSUs_TTL(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)
	metrics := &recordingMetrics{}
	f.sweeper.SetMetrics(metrics)

	d := f.createRSU(t, "ESN-1")
	if err := f.tracker.TouchRSU(ctx, d.ESN); err != nil {
		t.Fatalf("TouchRSU() error = %v", err)
	}

	// Heard from 29s ago: still online.
	f.clock.Advance(29 * time.Second)
	marked, err := f.sweeper.SweepRSUs(ctx)
	if err != nil {
		t.Fatalf("SweepRSUs() error = %v", err)
	}
	if marked != 0 {
		t.Errorf("SweepRSUs() at 29s marked %d, want 0", marked)
	}

	// Heard from 31s ago: offline.
	f.clock.Advance(2 * time.Second)
	marked, err = f.sweeper.SweepRSUs(ctx)
	if err != nil {
		t.Fatalf("SweepRSUs() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("SweepRSUs() at 31s marked %d, want 1", marked)
	}

	got, err := f.registry.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Online {
		t.Error("device still online after TTL expired")
	}

	want := []recordedSweep{{1, 0}, {0, 1}}
	if len(metrics.sweeps) != len(want) {
		t.Fatalf("metrics sweeps = %+v, want %+v", metrics.sweeps, want)
	}
	for i := range want {
		if metrics.sweeps[i] != want[i] {
			t.Errorf("sweep %d metrics = %+v, want %+v", i, metrics.sweeps[i], want[i])
		}
	}
}

func TestSweepRSUs_NeverMarksOnline(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)

	d := f.createRSU(t, "ESN-1")
	if err := f.registry.SetOnline(ctx, d.ID, false); err != nil {
		t.Fatalf("SetOnline() error = %v", err)
	}
	if err := f.tracker.TouchRSU(ctx, d.ESN); err != nil {
		t.Fatalf("TouchRSU() error = %v", err)
	}

	if _, err := f.sweeper.SweepRSUs(ctx); err != nil {
		t.Fatalf("SweepRSUs() error = %v", err)
	}

	got, err := f.registry.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Online {
		t.Error("sweep flipped an offline device online")
	}
}

func TestSweepRSUs_OnlyExpired(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)

	live := f.createRSU(t, "ESN-LIVE")
	silent := f.createRSU(t, "ESN-SILENT")
	if err := f.tracker.TouchRSU(ctx, live.ESN); err != nil {
		t.Fatalf("TouchRSU() error = %v", err)
	}

	marked, err := f.sweeper.SweepRSUs(ctx)
	if err != nil {
		t.Fatalf("SweepRSUs() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("SweepRSUs() marked %d, want 1", marked)
	}

	online, err := f.registry.ListOnline(ctx)
	if err != nil {
		t.Fatalf("ListOnline() error = %v", err)
	}
	if len(online) != 1 || online[0].ID != live.ID {
		t.Errorf("ListOnline() = %+v, want only %s", online, live.ESN)
	}
	if got, err := f.registry.Get(ctx, silent.ID); err != nil || got.Online {
		t.Errorf("silent device = %+v, %v; want offline", got, err)
	}
}

type failingLiveness struct{}

func (failingLiveness) RSUAlive(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func (failingLiveness) EdgeAlive(context.Context, int64) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestSweep_StoreErrorLeavesState(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)
	f.sweeper = New(f.registry, failingLiveness{}, "cloud-test")

	d := f.createRSU(t, "ESN-1")
	edge, err := f.registry.RegisterEdge(ctx, "edge-1", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}

	if marked, err := f.sweeper.SweepRSUs(ctx); err != nil || marked != 0 {
		t.Errorf("SweepRSUs() = %d, %v; want 0, nil", marked, err)
	}
	if deleted, err := f.sweeper.SweepEdges(ctx); err != nil || deleted != 0 {
		t.Errorf("SweepEdges() = %d, %v; want 0, nil", deleted, err)
	}

	if got, err := f.registry.Get(ctx, d.ID); err != nil || !got.Online {
		t.Errorf("device after failed lookup = %+v, %v; want online", got, err)
	}
	if _, err := f.registry.GetEdge(ctx, edge.ID); err != nil {
		t.Errorf("edge after failed lookup: %v", err)
	}
}

func TestSweepEdges(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)

	live, err := f.registry.RegisterEdge(ctx, "edge-live", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	silent, err := f.registry.RegisterEdge(ctx, "edge-silent", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	if err := f.registry.ReplaceEdgeFleet(ctx, silent.ID, []rsu.EdgeRSU{{ESN: "A", Location: protocol.Location{}}}); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	for _, id := range []int64{live.ID, silent.ID} {
		if err := f.tracker.TouchEdge(ctx, id); err != nil {
			t.Fatalf("TouchEdge() error = %v", err)
		}
	}
	f.clock.Advance(20 * time.Second)
	if err := f.tracker.TouchEdge(ctx, live.ID); err != nil {
		t.Fatalf("TouchEdge() error = %v", err)
	}
	f.clock.Advance(15 * time.Second)

	deleted, err := f.sweeper.SweepEdges(ctx)
	if err != nil {
		t.Fatalf("SweepEdges() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("SweepEdges() deleted %d, want 1", deleted)
	}

	if _, err := f.registry.GetEdge(ctx, silent.ID); !errors.Is(err, rsu.ErrEdgeNotFound) {
		t.Errorf("silent edge GetEdge() error = %v, want ErrEdgeNotFound", err)
	}
	fleetRSUs, err := f.registry.ListEdgeRSUs(ctx, silent.ID)
	if err != nil {
		t.Fatalf("ListEdgeRSUs() error = %v", err)
	}
	if len(fleetRSUs) != 0 {
		t.Errorf("expired edge left %d devices", len(fleetRSUs))
	}
	if _, err := f.registry.GetEdge(ctx, live.ID); err != nil {
		t.Errorf("live edge removed: %v", err)
	}
}

func TestSweepTmps(t *testing.T) {
	ctx := context.Background()
	f := newFleet(t)

	if _, err := f.registry.ReportIdentity(ctx, protocol.IdentityReport{ESN: "ESN-TMP"}); err != nil {
		t.Fatalf("ReportIdentity() error = %v", err)
	}

	n, err := f.sweeper.SweepTmps(ctx, 0)
	if err != nil || n != 0 {
		t.Errorf("SweepTmps(0) = %d, %v; want disabled", n, err)
	}
	n, err = f.sweeper.SweepTmps(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Errorf("SweepTmps(1h) = %d, %v; want 0 fresh records removed", n, err)
	}

	tmps, err := f.registry.ListTmps(ctx)
	if err != nil {
		t.Fatalf("ListTmps() error = %v", err)
	}
	if len(tmps) != 1 {
		t.Errorf("ListTmps() = %d records, want 1", len(tmps))
	}
}
