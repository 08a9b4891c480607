package plant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// History query limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CareRecord is one executed watering run.
type CareRecord struct {
	ID             string    `json:"id"`
	PlantID        string    `json:"plant_id"`
	Action         string    `json:"action"`
	VolumeML       float64   `json:"volume_ml"`
	DurationS      float64   `json:"duration_s"`
	MoistureBefore *float64  `json:"moisture_before,omitempty"`
	Outcome        string    `json:"outcome"`
	CreatedAt      time.Time `json:"created_at"`
}

// CareHistory defines the care history persistence operations.
type CareHistory interface {
	Record(ctx context.Context, rec *CareRecord) error
	History(ctx context.Context, plantID string, limit int) ([]CareRecord, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteCareHistory persists care records to the care_history table.
type SQLiteCareHistory struct {
	db *sql.DB
}

// NewSQLiteCareHistory creates a care history repository.
func NewSQLiteCareHistory(db *sql.DB) *SQLiteCareHistory {
	return &SQLiteCareHistory{db: db}
}

// Record inserts a care record. ID and CreatedAt are generated if empty.
func (r *SQLiteCareHistory) Record(ctx context.Context, rec *CareRecord) error {
	if rec.ID == "" {
		rec.ID = "care-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO care_history (id, plant_id, action, volume_ml, duration_s, moisture_before, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlantID, rec.Action, rec.VolumeML, rec.DurationS,
		rec.MoistureBefore, rec.Outcome,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting care record: %w", err)
	}

	return nil
}

// History returns the most recent care records for a plant, newest
// first. Limit defaults to 50 and is clamped to 200.
func (r *SQLiteCareHistory) History(ctx context.Context, plantID string, limit int) ([]CareRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plant_id, action, volume_ml, duration_s, moisture_before, outcome, created_at
		 FROM care_history
		 WHERE plant_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		plantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying care history: %w", err)
	}
	defer rows.Close()

	var records []CareRecord
	for rows.Next() {
		var rec CareRecord
		var moistureBefore sql.NullFloat64
		var createdAt string

		if err := rows.Scan(&rec.ID, &rec.PlantID, &rec.Action, &rec.VolumeML,
			&rec.DurationS, &moistureBefore, &rec.Outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning care record: %w", err)
		}

		if moistureBefore.Valid {
			v := moistureBefore.Float64
			rec.MoistureBefore = &v
		}

		t, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing care record timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating care history: %w", err)
	}

	if records == nil {
		records = []CareRecord{}
	}

	return records, nil
}

// Prune deletes care records older than the cutoff and returns the
// number removed.
func (r *SQLiteCareHistory) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM care_history WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning care history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned care records: %w", err)
	}
	return n, nil
}

// parseTimestamp handles both RFC3339 and the SQLite default format
// written by the schema's strftime default.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z", s)
}
