package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// ResultIDPrefix marks query-result correlation ids.
const ResultIDPrefix = "qr-"

// Repository defines persistence for queries and their results.
type Repository interface {
	// CreateQuery inserts q and one pending placeholder per device id in a
	// single transaction. Returns rsu.ErrRSUNotFound, without writing
	// anything, if any id is unknown.
	CreateQuery(ctx context.Context, q *Query, rsuIDs []int64) error

	// AppendResponse attaches data to the result with correlation id id and
	// marks it delivered. found is false when no result has that id.
	AppendResponse(ctx context.Context, id string, data json.RawMessage) (found bool, err error)

	// GetQuery retrieves a query with all results and their data.
	// Returns ErrQueryNotFound if it does not exist.
	GetQuery(ctx context.Context, id int64) (*Query, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db    *sql.DB
	newID func() string
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:    db,
		newID: func() string { return ResultIDPrefix + uuid.NewString() },
	}
}

// CreateQuery inserts a query with its placeholders.
func (r *SQLiteRepository) CreateQuery(ctx context.Context, q *Query, rsuIDs []int64) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		esns := make([]string, len(rsuIDs))
		for i, id := range rsuIDs {
			err := tx.QueryRowContext(ctx, "SELECT esn FROM rsus WHERE id = ?", id).Scan(&esns[i])
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("target %d: %w", id, rsu.ErrRSUNotFound)
			}
			if err != nil {
				return fmt.Errorf("resolving target %d: %w", id, err)
			}
		}

		now := time.Now().UTC()
		ts := database.FormatTime(now)

		result, err := tx.ExecContext(ctx,
			"INSERT INTO queries (query_type, time_type, created_at) VALUES (?, ?, ?)",
			q.QueryType, q.TimeType, ts,
		)
		if err != nil {
			return fmt.Errorf("inserting query: %w", err)
		}
		queryID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading query id: %w", err)
		}
		q.ID = queryID
		q.CreatedAt = now

		q.Results = make([]Result, 0, len(rsuIDs))
		for i, rsuID := range rsuIDs {
			res := Result{
				ID:        r.newID(),
				QueryID:   queryID,
				RSUID:     rsuID,
				ESN:       esns[i],
				Status:    dispatch.StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO query_results (id, query_id, rsu_id, status, created_at, updated_at)
				VALUES (?, ?, ?, 0, ?, ?)`,
				res.ID, queryID, rsuID, ts, ts,
			); err != nil {
				return fmt.Errorf("inserting result for rsu %d: %w", rsuID, err)
			}
			q.Results = append(q.Results, res)
		}
		return nil
	})
}

// AppendResponse attaches one response payload to a result.
func (r *SQLiteRepository) AppendResponse(ctx context.Context, id string, data json.RawMessage) (bool, error) {
	found := false
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		ts := database.FormatTime(time.Now())
		result, err := tx.ExecContext(ctx,
			"UPDATE query_results SET status = ?, updated_at = ? WHERE id = ?",
			int(dispatch.StatusDelivered), ts, id,
		)
		if err != nil {
			return fmt.Errorf("updating query result: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO query_result_data (result_id, data, created_at) VALUES (?, ?, ?)",
			id, string(data), ts,
		); err != nil {
			return fmt.Errorf("inserting result data: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// GetQuery retrieves a query with its results and data.
func (r *SQLiteRepository) GetQuery(ctx context.Context, id int64) (*Query, error) {
	var q Query
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, query_type, time_type, created_at FROM queries WHERE id = ?", id,
	).Scan(&q.ID, &q.QueryType, &q.TimeType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying query: %w", err)
	}
	q.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled

	results, err := r.listResults(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := r.listData(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Data = data[results[i].ID]
	}
	q.Results = results
	return &q, nil
}

func (r *SQLiteRepository) listResults(ctx context.Context, queryID int64) ([]Result, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT qr.id, qr.query_id, qr.rsu_id, r.esn, qr.status, qr.created_at, qr.updated_at
		FROM query_results qr
		JOIN rsus r ON r.id = qr.rsu_id
		WHERE qr.query_id = ?
		ORDER BY qr.rsu_id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var res Result
		var createdAt, updatedAt string
		if err := rows.Scan(&res.ID, &res.QueryID, &res.RSUID, &res.ESN, &res.Status,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		res.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
		res.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// listData returns a query's data rows keyed by result id, oldest first.
func (r *SQLiteRepository) listData(ctx context.Context, queryID int64) (map[string][]Data, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.result_id, d.id, d.data, d.created_at
		FROM query_result_data d
		JOIN query_results qr ON qr.id = d.result_id
		WHERE qr.query_id = ?
		ORDER BY d.id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("querying result data: %w", err)
	}
	defer rows.Close()

	byResult := make(map[string][]Data)
	for rows.Next() {
		var resultID, payload, createdAt string
		var d Data
		if err := rows.Scan(&resultID, &d.ID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning result data: %w", err)
		}
		d.Data = json.RawMessage(payload)
		d.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
		byResult[resultID] = append(byResult[resultID], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result data: %w", err)
	}
	return byResult, nil
}
