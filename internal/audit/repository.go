// Package audit persists the control core's decision trail: safety
// denials and substitutions, mode transitions, non-completed task
// outcomes, and care escalations. Entries are queryable through the
// operator API.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event categories.
const (
	CategorySafety = "safety"
	CategoryMode   = "mode"
	CategoryTask   = "task"
	CategoryCare   = "care"
)

// Severity levels for audit entries.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is a single audit trail entry.
type Event struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Target   string `json:"target,omitempty"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which audit events to return.
type Filter struct {
	Category string    // optional: safety, mode, task, care
	Target   string    // optional: plant, station, or sensor ID
	Since    time.Time // optional: only events at or after this time
	Limit    int       // default 50, max 200
	Offset   int       // pagination offset
}

// ListResult contains the paginated audit query results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the audit persistence operations.
type Repository interface {
	Record(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit events in the audit_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates an audit event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an audit event. ID, severity, and CreatedAt are
// filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, category, action, target, severity, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Category, e.Action,
		nullableString(e.Target),
		e.Severity,
		nullableString(e.Detail),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Target != "" {
		conditions = append(conditions, "target = ?")
		args = append(args, filter.Target)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Total count for pagination. WHERE is assembled from parameterised
	// conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit events: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, category, action, target, severity, detail, created_at FROM audit_events %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var target, detail sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Category, &e.Action, &target, &e.Severity, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		if target.Valid {
			e.Target = target.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05Z", createdAt)
			if err != nil {
				return nil, fmt.Errorf("parsing audit event timestamp %q: %w", createdAt, err)
			}
		}
		e.CreatedAt = t

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
