package rsu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// EdgeRepository defines persistence for edge nodes and their sub-fleets.
type EdgeRepository interface {
	// UpsertEdge registers an edge node by name, refreshing ip and area
	// code when the name is already known. The returned id is stable
	// across re-registrations.
	UpsertEdge(ctx context.Context, name, ip, areaCode string) (*Edge, error)

	// GetEdge retrieves an edge node by id.
	// Returns ErrEdgeNotFound if it does not exist.
	GetEdge(ctx context.Context, id int64) (*Edge, error)

	// ListEdges retrieves all edge nodes ordered by id.
	ListEdges(ctx context.Context) ([]Edge, error)

	// DeleteEdge removes an edge node; its sub-fleet cascades.
	// Returns ErrEdgeNotFound if it does not exist.
	DeleteEdge(ctx context.Context, id int64) error

	// ReplaceEdgeRSUs replaces an edge node's entire sub-fleet.
	// Returns ErrEdgeNotFound if the edge does not exist.
	ReplaceEdgeRSUs(ctx context.Context, edgeID int64, rsus []EdgeRSU) error

	// UpdateEdgeRSULocation moves one device of an edge node's sub-fleet.
	// Returns ErrRSUNotFound if the edge does not hold that ESN.
	UpdateEdgeRSULocation(ctx context.Context, edgeID int64, esn string, loc protocol.Location) error

	// ListEdgeRSUs retrieves an edge node's sub-fleet ordered by ESN.
	ListEdgeRSUs(ctx context.Context, edgeID int64) ([]EdgeRSU, error)
}

const edgeColumns = "id, name, ip, area_code, created_at, updated_at"

// UpsertEdge registers or refreshes an edge node.
func (r *SQLiteRepository) UpsertEdge(ctx context.Context, name, ip, areaCode string) (*Edge, error) {
	now := database.FormatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO edge_nodes (name, ip, area_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ip = excluded.ip,
			area_code = excluded.area_code,
			updated_at = excluded.updated_at`,
		name, ip, areaCode, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting edge node: %w", err)
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+edgeColumns+" FROM edge_nodes WHERE name = ?", name)
	e, err := scanEdge(row)
	if err != nil {
		return nil, fmt.Errorf("reading edge node: %w", err)
	}
	return e, nil
}

// GetEdge retrieves an edge node by id.
func (r *SQLiteRepository) GetEdge(ctx context.Context, id int64) (*Edge, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+edgeColumns+" FROM edge_nodes WHERE id = ?", id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEdgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying edge node: %w", err)
	}
	return e, nil
}

// ListEdges retrieves all edge nodes.
func (r *SQLiteRepository) ListEdges(ctx context.Context) ([]Edge, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+edgeColumns+" FROM edge_nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying edge nodes: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning edge node: %w", err)
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edge nodes: %w", err)
	}
	return edges, nil
}

// DeleteEdge removes an edge node and its sub-fleet.
func (r *SQLiteRepository) DeleteEdge(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM edge_nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting edge node: %w", err)
	}
	return requireRow(result, ErrEdgeNotFound)
}

// ReplaceEdgeRSUs deletes the edge node's sub-fleet and inserts rsus in
// one transaction. A failure leaves the previous sub-fleet untouched.
func (r *SQLiteRepository) ReplaceEdgeRSUs(ctx context.Context, edgeID int64, rsus []EdgeRSU) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM edge_nodes WHERE id = ?", edgeID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEdgeNotFound
		}
		if err != nil {
			return fmt.Errorf("checking edge node: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM edge_rsus WHERE edge_id = ?", edgeID); err != nil {
			return fmt.Errorf("clearing edge fleet: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edge_rsus (edge_id, esn, name, version, lon, lat, status, online, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing edge fleet insert: %w", err)
		}
		defer stmt.Close()

		now := database.FormatTime(time.Now())
		for _, d := range rsus {
			if _, err := stmt.ExecContext(ctx,
				edgeID, d.ESN, d.Name, d.Version, d.Location.Lon, d.Location.Lat,
				d.Status, boolToInt(d.Online), now,
			); err != nil {
				return fmt.Errorf("inserting edge rsu %s: %w", d.ESN, err)
			}
		}
		return nil
	})
}

// UpdateEdgeRSULocation moves one device of an edge node's sub-fleet.
func (r *SQLiteRepository) UpdateEdgeRSULocation(ctx context.Context, edgeID int64, esn string, loc protocol.Location) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE edge_rsus SET lon = ?, lat = ?, updated_at = ?
		WHERE edge_id = ? AND esn = ?`,
		loc.Lon, loc.Lat, database.FormatTime(time.Now()), edgeID, esn,
	)
	if err != nil {
		return fmt.Errorf("updating edge rsu location: %w", err)
	}
	return requireRow(result, ErrRSUNotFound)
}

// ListEdgeRSUs retrieves an edge node's sub-fleet.
func (r *SQLiteRepository) ListEdgeRSUs(ctx context.Context, edgeID int64) ([]EdgeRSU, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, edge_id, esn, name, version, lon, lat, status, online, updated_at
		FROM edge_rsus WHERE edge_id = ? ORDER BY esn`, edgeID)
	if err != nil {
		return nil, fmt.Errorf("querying edge rsus: %w", err)
	}
	defer rows.Close()

	var rsus []EdgeRSU
	for rows.Next() {
		var d EdgeRSU
		var online int
		var updatedAt string
		if err := rows.Scan(
			&d.ID, &d.EdgeID, &d.ESN, &d.Name, &d.Version, &d.Location.Lon, &d.Location.Lat,
			&d.Status, &online, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning edge rsu: %w", err)
		}
		d.Online = online != 0
		d.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
		rsus = append(rsus, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edge rsus: %w", err)
	}
	return rsus, nil
}

func scanEdge(s rowScanner) (*Edge, error) {
	var e Edge
	var createdAt, updatedAt string
	if err := s.Scan(&e.ID, &e.Name, &e.IP, &e.AreaCode, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	e.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
	return &e, nil
}
