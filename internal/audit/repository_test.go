package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupAuditDB creates an in-memory SQLite database with the
// audit_events table.
func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE audit_events (
			id         TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			action     TEXT NOT NULL,
			target     TEXT,
			severity   TEXT NOT NULL DEFAULT 'info',
			detail     TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE INDEX idx_audit_events_category ON audit_events(category, created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRecordGeneratesIDAndDefaults(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()

	e := &Event{Category: CategorySafety, Action: "deny", Target: "tomato_1", Detail: "battery: 9.5V"}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if e.ID == "" || len(e.ID) != len("aud-xxxxxxxx") {
		t.Errorf("generated ID = %q, want aud- prefix with 8 hex chars", e.ID)
	}
	if e.Severity != SeverityInfo {
		t.Errorf("severity = %q, want default info", e.Severity)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	seed := []Event{
		{Category: CategorySafety, Action: "deny", Target: "tomato_1", CreatedAt: base},
		{Category: CategorySafety, Action: "substitute", Target: "basil_1", CreatedAt: base.Add(time.Minute)},
		{Category: CategoryMode, Action: "manual->emergency_stop", CreatedAt: base.Add(2 * time.Minute)},
		{Category: CategoryTask, Action: "failed", Target: "tomato_1", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, "failed"},
		{"by category", Filter{Category: CategorySafety}, 2, "substitute"},
		{"by target", Filter{Target: "tomato_1"}, 2, "failed"},
		{"by since", Filter{Since: base.Add(2 * time.Minute)}, 2, "failed"},
		{"category and target", Filter{Category: CategorySafety, Target: "tomato_1"}, 1, "deny"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", got.Total, tt.wantTotal)
			}
			if len(got.Events) > 0 && got.Events[0].Action != tt.wantFirst {
				t.Errorf("first event action = %q, want %q", got.Events[0].Action, tt.wantFirst)
			}
		})
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Record(ctx, &Event{Category: CategoryCare, Action: "adaptation"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.List(ctx, Filter{Limit: 100000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Limit != 200 {
		t.Errorf("Limit = %d, want clamped 200", got.Limit)
	}

	got, err = repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got.Events) != 1 || got.Total != 5 {
		t.Errorf("page = %d events of total %d, want 1 of 5", len(got.Events), got.Total)
	}
}

func TestListEmptyReturnsEmptySlice(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))

	got, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Events == nil {
		t.Error("Events = nil, want empty slice")
	}
}
