package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// TargetIDPrefix marks delivery-target correlation ids.
const TargetIDPrefix = "dt-"

// Repository defines persistence for jobs, delivery targets and the
// acknowledgement side of query results.
type Repository interface {
	// CreateJob inserts job and one pending target per device id in a
	// single transaction. MNG jobs also upsert each device's management
	// settings. Returns rsu.ErrRSUNotFound, without writing anything, if
	// any id is unknown.
	CreateJob(ctx context.Context, job *Job, rsuIDs []int64) ([]Target, error)

	// GetJob retrieves a job by id.
	// Returns ErrJobNotFound if it does not exist.
	GetJob(ctx context.Context, id int64) (*Job, error)

	// ListTargets retrieves a job's targets ordered by device id.
	ListTargets(ctx context.Context, jobID int64) ([]Target, error)

	// MarkTarget sets the state of the target with correlation id id.
	// found is false when no target has that id.
	MarkTarget(ctx context.Context, id string, status Status, errorCode int) (found bool, err error)

	// MarkQueryResult sets the state of the query result with correlation
	// id id. found is false when no result has that id.
	MarkQueryResult(ctx context.Context, id string, status Status) (found bool, err error)
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
		newID: func() string { return TargetIDPrefix + uuid.NewString() },
	}
}

// CreateJob inserts a job with its pending targets.
func (r *SQLiteRepository) CreateJob(ctx context.Context, job *Job, rsuIDs []int64) ([]Target, error) {
	var targets []Target
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
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
			"INSERT INTO jobs (kind, name, content, created_at) VALUES (?, ?, ?, ?)",
			string(job.Kind), job.Name, string(job.Content), ts,
		)
		if err != nil {
			return fmt.Errorf("inserting job: %w", err)
		}
		jobID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading job id: %w", err)
		}
		job.ID = jobID
		job.CreatedAt = now

		targets = make([]Target, 0, len(rsuIDs))
		for i, rsuID := range rsuIDs {
			t := Target{
				ID:        r.newID(),
				JobID:     jobID,
				RSUID:     rsuID,
				ESN:       esns[i],
				Status:    StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO delivery_targets (id, job_id, rsu_id, status, error_code, created_at, updated_at)
				VALUES (?, ?, ?, 0, 0, ?, ?)`,
				t.ID, jobID, rsuID, ts, ts,
			); err != nil {
				return fmt.Errorf("inserting target for rsu %d: %w", rsuID, err)
			}

			if job.Kind == KindMng {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO rsu_mng (rsu_id, settings, updated_at) VALUES (?, ?, ?)
					ON CONFLICT(rsu_id) DO UPDATE SET
						settings = excluded.settings,
						updated_at = excluded.updated_at`,
					rsuID, string(job.Content), ts,
				); err != nil {
					return fmt.Errorf("storing management settings for rsu %d: %w", rsuID, err)
				}
			}
			targets = append(targets, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// GetJob retrieves a job by id.
func (r *SQLiteRepository) GetJob(ctx context.Context, id int64) (*Job, error) {
	var j Job
	var kind, content, createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, kind, name, content, created_at FROM jobs WHERE id = ?", id,
	).Scan(&j.ID, &kind, &j.Name, &content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	j.Kind = Kind(kind)
	j.Content = []byte(content)
	j.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	return &j, nil
}

// ListTargets retrieves a job's targets.
func (r *SQLiteRepository) ListTargets(ctx context.Context, jobID int64) ([]Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.job_id, t.rsu_id, r.esn, t.status, t.error_code, t.created_at, t.updated_at
		FROM delivery_targets t
		JOIN rsus r ON r.id = t.rsu_id
		WHERE t.job_id = ?
		ORDER BY t.rsu_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.JobID, &t.RSUID, &t.ESN, &t.Status, &t.ErrorCode,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		t.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
		t.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating targets: %w", err)
	}
	return targets, nil
}

// MarkTarget sets a target's delivery state.
func (r *SQLiteRepository) MarkTarget(ctx context.Context, id string, status Status, errorCode int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE delivery_targets SET status = ?, error_code = ?, updated_at = ? WHERE id = ?",
		int(status), errorCode, database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("updating target: %w", err)
	}
	return affected(result)
}

// MarkQueryResult sets a query result's delivery state.
func (r *SQLiteRepository) MarkQueryResult(ctx context.Context, id string, status Status) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE query_results SET status = ?, updated_at = ? WHERE id = ?",
		int(status), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("updating query result: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}
