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

// Repository defines the interface for registry persistence operations.
// Operations that touch more than one table run in a single transaction.
type Repository interface {
	// GetRSU retrieves a device by id.
	// Returns ErrRSUNotFound if the device does not exist.
	GetRSU(ctx context.Context, id int64) (*RSU, error)

	// GetRSUByESN retrieves a device by ESN.
	// Returns ErrRSUNotFound if the device does not exist.
	GetRSUByESN(ctx context.Context, esn string) (*RSU, error)

	// ListRSUs retrieves all devices ordered by id.
	ListRSUs(ctx context.Context) ([]RSU, error)

	// ListOnlineRSUs retrieves devices currently marked online.
	ListOnlineRSUs(ctx context.Context) ([]RSU, error)

	// CreateRSU inserts a device and sets its id and timestamps.
	// Returns ErrRSUExists if the ESN is already registered.
	CreateRSU(ctx context.Context, r *RSU) error

	// UpdateIdentity overwrites the self-reported fields of a device.
	// Returns ErrRSUNotFound if the device does not exist.
	UpdateIdentity(ctx context.Context, id int64, rep protocol.IdentityReport) error

	// SetOnline sets a device's online flag.
	// Returns ErrRSUNotFound if the device does not exist.
	SetOnline(ctx context.Context, id int64, online bool) error

	// DeleteRSU removes a device together with its query results and
	// management settings. Delivery targets cascade.
	// Returns ErrRSUNotFound if the device does not exist.
	DeleteRSU(ctx context.Context, id int64) error

	// GetTmp retrieves a provisional device by id.
	// Returns ErrTmpNotFound if it does not exist.
	GetTmp(ctx context.Context, id int64) (*Tmp, error)

	// ListTmps retrieves all provisional devices ordered by id.
	ListTmps(ctx context.Context) ([]Tmp, error)

	// CreateTmp inserts a provisional device unless one with the same ESN
	// exists. created is false when the insert was skipped.
	CreateTmp(ctx context.Context, t *Tmp) (created bool, err error)

	// PromoteTmp inserts a device seeded from the provisional record and
	// deletes the provisional record.
	// Returns ErrTmpNotFound or ErrRSUExists.
	PromoteTmp(ctx context.Context, tmpID int64, req PromoteRequest) (*RSU, error)

	// DeleteTmpsBefore removes provisional devices created before cutoff.
	DeleteTmpsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	EdgeRepository
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const rsuColumns = `id, esn, name, version, lon, lat, status, config, online,
	model_id, area_code, created_at, updated_at`

// GetRSU retrieves a device by id.
func (r *SQLiteRepository) GetRSU(ctx context.Context, id int64) (*RSU, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+rsuColumns+" FROM rsus WHERE id = ?", id)
	d, err := scanRSU(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRSUNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying rsu by id: %w", err)
	}
	return d, nil
}

// GetRSUByESN retrieves a device by ESN.
func (r *SQLiteRepository) GetRSUByESN(ctx context.Context, esn string) (*RSU, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+rsuColumns+" FROM rsus WHERE esn = ?", esn)
	d, err := scanRSU(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRSUNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying rsu by esn: %w", err)
	}
	return d, nil
}

// ListRSUs retrieves all devices.
func (r *SQLiteRepository) ListRSUs(ctx context.Context) ([]RSU, error) {
	return r.queryRSUs(ctx, "SELECT "+rsuColumns+" FROM rsus ORDER BY id")
}

// ListOnlineRSUs retrieves devices currently marked online.
func (r *SQLiteRepository) ListOnlineRSUs(ctx context.Context) ([]RSU, error) {
	return r.queryRSUs(ctx, "SELECT "+rsuColumns+" FROM rsus WHERE online = 1 ORDER BY id")
}

// CreateRSU inserts a device.
func (r *SQLiteRepository) CreateRSU(ctx context.Context, d *RSU) error {
	now := time.Now().UTC()
	config := string(d.Config)
	if config == "" {
		config = "{}"
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO rsus (esn, name, version, lon, lat, status, config, online,
			model_id, area_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ESN, d.Name, d.Version, d.Location.Lon, d.Location.Lat, d.Status,
		config, boolToInt(d.Online), nullableInt(d.ModelID), nullableString(d.AreaCode),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrRSUExists
		}
		return fmt.Errorf("inserting rsu: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading rsu id: %w", err)
	}
	d.ID = id
	d.Config = []byte(config)
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// UpdateIdentity overwrites the self-reported fields of a device.
// The operator-assigned name is left alone.
func (r *SQLiteRepository) UpdateIdentity(ctx context.Context, id int64, rep protocol.IdentityReport) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE rsus SET version = ?, lon = ?, lat = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		rep.Version, rep.Location.Lon, rep.Location.Lat, rep.Status,
		database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating rsu identity: %w", err)
	}
	return requireRow(result, ErrRSUNotFound)
}

// SetOnline sets a device's online flag.
func (r *SQLiteRepository) SetOnline(ctx context.Context, id int64, online bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE rsus SET online = ?, updated_at = ? WHERE id = ?",
		boolToInt(online), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating rsu online: %w", err)
	}
	return requireRow(result, ErrRSUNotFound)
}

// DeleteRSU removes a device and everything that references it.
func (r *SQLiteRepository) DeleteRSU(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		steps := []struct {
			what  string
			query string
		}{
			{"query result data", `DELETE FROM query_result_data
				WHERE result_id IN (SELECT id FROM query_results WHERE rsu_id = ?)`},
			{"query results", "DELETE FROM query_results WHERE rsu_id = ?"},
			{"management settings", "DELETE FROM rsu_mng WHERE rsu_id = ?"},
		}
		for _, s := range steps {
			if _, err := tx.ExecContext(ctx, s.query, id); err != nil {
				return fmt.Errorf("deleting %s: %w", s.what, err)
			}
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM rsus WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting rsu: %w", err)
		}
		return requireRow(result, ErrRSUNotFound)
	})
}

// =============================================================================
// Provisional devices
// =============================================================================

const tmpColumns = "id, esn, name, version, lon, lat, status, created_at, updated_at"

// GetTmp retrieves a provisional device by id.
func (r *SQLiteRepository) GetTmp(ctx context.Context, id int64) (*Tmp, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+tmpColumns+" FROM rsu_tmps WHERE id = ?", id)
	t, err := scanTmp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTmpNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying provisional rsu: %w", err)
	}
	return t, nil
}

// ListTmps retrieves all provisional devices.
func (r *SQLiteRepository) ListTmps(ctx context.Context) ([]Tmp, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+tmpColumns+" FROM rsu_tmps ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying provisional rsus: %w", err)
	}
	defer rows.Close()

	var tmps []Tmp
	for rows.Next() {
		t, err := scanTmp(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provisional rsu: %w", err)
		}
		tmps = append(tmps, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provisional rsus: %w", err)
	}
	return tmps, nil
}

// CreateTmp inserts a provisional device unless its ESN is already pending.
func (r *SQLiteRepository) CreateTmp(ctx context.Context, t *Tmp) (bool, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO rsu_tmps (esn, name, version, lon, lat, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(esn) DO NOTHING`,
		t.ESN, t.Name, t.Version, t.Location.Lon, t.Location.Lat, t.Status,
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("inserting provisional rsu: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading provisional rsu id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return true, nil
}

// PromoteTmp moves a provisional device into the registry.
// The new device starts online: it has just been heard from.
func (r *SQLiteRepository) PromoteTmp(ctx context.Context, tmpID int64, req PromoteRequest) (*RSU, error) {
	var promoted *RSU
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+tmpColumns+" FROM rsu_tmps WHERE id = ?", tmpID)
		t, err := scanTmp(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTmpNotFound
		}
		if err != nil {
			return fmt.Errorf("querying provisional rsu: %w", err)
		}

		name := t.Name
		if req.Name != "" {
			name = req.Name
		}
		now := time.Now().UTC()

		result, err := tx.ExecContext(ctx, `
			INSERT INTO rsus (esn, name, version, lon, lat, status, config, online,
				model_id, area_code, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, '{}', 1, ?, ?, ?, ?)`,
			t.ESN, name, t.Version, t.Location.Lon, t.Location.Lat, t.Status,
			nullableInt(req.ModelID), nullableString(req.AreaCode),
			database.FormatTime(now), database.FormatTime(now),
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrRSUExists
			}
			return fmt.Errorf("inserting promoted rsu: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading rsu id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM rsu_tmps WHERE id = ?", tmpID); err != nil {
			return fmt.Errorf("deleting provisional rsu: %w", err)
		}

		promoted = &RSU{
			ID:        id,
			ESN:       t.ESN,
			Name:      name,
			Version:   t.Version,
			Location:  t.Location,
			Status:    t.Status,
			Config:    []byte("{}"),
			Online:    true,
			ModelID:   req.ModelID,
			AreaCode:  req.AreaCode,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// DeleteTmpsBefore removes provisional devices created before cutoff.
func (r *SQLiteRepository) DeleteTmpsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM rsu_tmps WHERE created_at < ?", database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting stale provisional rsus: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (r *SQLiteRepository) queryRSUs(ctx context.Context, query string, args ...any) ([]RSU, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rsus: %w", err)
	}
	defer rows.Close()

	var rsus []RSU
	for rows.Next() {
		d, err := scanRSU(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rsu: %w", err)
		}
		rsus = append(rsus, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rsus: %w", err)
	}
	return rsus, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRSU(s rowScanner) (*RSU, error) {
	var d RSU
	var config string
	var online int
	var modelID sql.NullInt64
	var areaCode sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&d.ID, &d.ESN, &d.Name, &d.Version, &d.Location.Lon, &d.Location.Lat,
		&d.Status, &config, &online, &modelID, &areaCode, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Config = []byte(config)
	d.Online = online != 0
	if modelID.Valid {
		d.ModelID = &modelID.Int64
	}
	if areaCode.Valid {
		d.AreaCode = &areaCode.String
	}
	d.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
	return &d, nil
}

func scanTmp(s rowScanner) (*Tmp, error) {
	var t Tmp
	var createdAt, updatedAt string

	err := s.Scan(
		&t.ID, &t.ESN, &t.Name, &t.Version, &t.Location.Lon, &t.Location.Lat,
		&t.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	t.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
	return &t, nil
}

// requireRow returns notFound when result touched no rows.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableInt returns a sql.NullInt64 for optional integer pointers.
func nullableInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
