package rsu

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

func TestRegisterEdge_IdempotentByName(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	first, err := reg.RegisterEdge(ctx, "edge-north", "10.0.0.1", "310000")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	second, err := reg.RegisterEdge(ctx, "edge-north", "10.0.0.2", "310000")
	if err != nil {
		t.Fatalf("RegisterEdge() again error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("re-registration changed id: %d -> %d", first.ID, second.ID)
	}
	if second.IP != "10.0.0.2" {
		t.Errorf("IP = %q, want refreshed 10.0.0.2", second.IP)
	}

	edges, err := reg.ListEdges(ctx)
	if err != nil {
		t.Fatalf("ListEdges() error = %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("ListEdges() returned %d, want 1", len(edges))
	}

	if _, err := reg.RegisterEdge(ctx, "", "", ""); !errors.Is(err, ErrInvalidRSU) {
		t.Errorf("RegisterEdge(empty) error = %v, want ErrInvalidRSU", err)
	}
	if _, err := reg.RegisterEdge(ctx, "edge/#", "", ""); !errors.Is(err, ErrInvalidRSU) {
		t.Errorf("RegisterEdge(wildcard) error = %v, want ErrInvalidRSU", err)
	}
}

func TestReplaceEdgeFleet(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	edge, err := reg.RegisterEdge(ctx, "edge-1", "10.0.0.1", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}

	initial := []EdgeRSU{{ESN: "A", Online: true}, {ESN: "B"}, {ESN: "C"}}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, initial); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	replacement := []EdgeRSU{{ESN: "D", Name: "delta"}}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, replacement); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	got, err := reg.ListEdgeRSUs(ctx, edge.ID)
	if err != nil {
		t.Fatalf("ListEdgeRSUs() error = %v", err)
	}
	if len(got) != 1 || got[0].ESN != "D" || got[0].Name != "delta" || got[0].EdgeID != edge.ID {
		t.Errorf("ListEdgeRSUs() = %+v, want exactly D", got)
	}
}

func TestReplaceEdgeFleet_Rejected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	edge, err := reg.RegisterEdge(ctx, "edge-1", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, []EdgeRSU{{ESN: "A"}}); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	tests := []struct {
		name    string
		edgeID  int64
		rsus    []EdgeRSU
		wantErr error
	}{
		{"duplicate esn", edge.ID, []EdgeRSU{{ESN: "X"}, {ESN: "X"}}, ErrInvalidRSU},
		{"missing esn", edge.ID, []EdgeRSU{{Name: "anon"}}, ErrInvalidRSU},
		{"esn with wildcard", edge.ID, []EdgeRSU{{ESN: "X+"}}, ErrInvalidRSU},
		{"unknown edge", 999, []EdgeRSU{{ESN: "Y"}}, ErrEdgeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ReplaceEdgeFleet(ctx, tt.edgeID, tt.rsus)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReplaceEdgeFleet() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := reg.ListEdgeRSUs(ctx, edge.ID)
	if err != nil {
		t.Fatalf("ListEdgeRSUs() error = %v", err)
	}
	if len(got) != 1 || got[0].ESN != "A" {
		t.Errorf("rejected sync changed fleet: %+v", got)
	}
}

func TestReplaceEdgeFleet_Empty(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	edge, err := reg.RegisterEdge(ctx, "edge-1", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, []EdgeRSU{{ESN: "A"}}); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, nil); err != nil {
		t.Fatalf("ReplaceEdgeFleet(nil) error = %v", err)
	}

	got, err := reg.ListEdgeRSUs(ctx, edge.ID)
	if err != nil {
		t.Fatalf("ListEdgeRSUs() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListEdgeRSUs() = %+v, want empty", got)
	}
}

func TestUpdateEdgeRSULocation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	edge, err := reg.RegisterEdge(ctx, "edge-1", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, []EdgeRSU{{ESN: "A"}}); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	loc := protocol.Location{Lon: 121.47, Lat: 31.23}
	if err := reg.UpdateEdgeRSULocation(ctx, edge.ID, "A", loc); err != nil {
		t.Fatalf("UpdateEdgeRSULocation() error = %v", err)
	}
	got, err := reg.ListEdgeRSUs(ctx, edge.ID)
	if err != nil {
		t.Fatalf("ListEdgeRSUs() error = %v", err)
	}
	if got[0].Location != loc {
		t.Errorf("Location = %+v, want %+v", got[0].Location, loc)
	}

	if err := reg.UpdateEdgeRSULocation(ctx, edge.ID, "B", loc); !errors.Is(err, ErrRSUNotFound) {
		t.Errorf("UpdateEdgeRSULocation(unknown esn) error = %v, want ErrRSUNotFound", err)
	}
	if err := reg.UpdateEdgeRSULocation(ctx, edge.ID, "A", protocol.Location{Lat: 91}); !errors.Is(err, ErrInvalidRSU) {
		t.Errorf("UpdateEdgeRSULocation(bad loc) error = %v, want ErrInvalidRSU", err)
	}
}

func TestDeleteEdge_CascadesFleet(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	edge, err := reg.RegisterEdge(ctx, "edge-1", "", "")
	if err != nil {
		t.Fatalf("RegisterEdge() error = %v", err)
	}
	if err := reg.ReplaceEdgeFleet(ctx, edge.ID, []EdgeRSU{{ESN: "A"}, {ESN: "B"}}); err != nil {
		t.Fatalf("ReplaceEdgeFleet() error = %v", err)
	}

	if err := reg.DeleteEdge(ctx, edge.ID); err != nil {
		t.Fatalf("DeleteEdge() error = %v", err)
	}

	var n int
	if err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edge_rsus").Scan(&n); err != nil {
		t.Fatalf("counting edge_rsus: %v", err)
	}
	if n != 0 {
		t.Errorf("edge_rsus has %d rows after edge delete", n)
	}

	if _, err := reg.GetEdge(ctx, edge.ID); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("GetEdge() error = %v, want ErrEdgeNotFound", err)
	}
	if err := reg.DeleteEdge(ctx, edge.ID); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("second DeleteEdge() error = %v, want ErrEdgeNotFound", err)
	}
}

func TestEdgeRSUFromMessage(t *testing.T) {
	m := protocol.EdgeRSU{ESN: "A", Name: "a", Version: "2", Status: 3, Online: true,
		Location: protocol.Location{Lon: 1, Lat: 2}}
	got := EdgeRSUFromMessage(m)
	if got.ESN != "A" || got.Name != "a" || got.Version != "2" || got.Status != 3 || !got.Online || got.Location != m.Location {
		t.Errorf("EdgeRSUFromMessage() = %+v", got)
	}
}
