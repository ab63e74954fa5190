package override

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// History page size limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// historyTimeLayout has fixed-width fractions so timestamps sort as text.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryEntry is one row of override_history.
type HistoryEntry struct {
	ID              string    `json:"id"`
	CommandID       string    `json:"command_id"`
	Event           string    `json:"event"`
	Action          Action    `json:"action"`
	EffectiveAction Action    `json:"effective_action"`
	Reason          string    `json:"reason,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Source          Source    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryFilter selects a page of history, newest first.
type HistoryFilter struct {
	Event  string // optional: applied, reverted, cancelled
	Limit  int    // default 50, max 200
	Offset int
}

// HistoryPage is a page of history with the total match count.
type HistoryPage struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// HistoryRepository stores override history.
type HistoryRepository interface {
	Record(ctx context.Context, e *HistoryEntry) error
	List(ctx context.Context, f HistoryFilter) (*HistoryPage, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteHistory is a HistoryRepository on the override_history table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history repository.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteHistory) Record(ctx context.Context, e *HistoryEntry) error {
	if e.ID == "" {
		e.ID = "ovh-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO override_history
		 (id, command_id, event, action, effective_action, reason, duration_minutes, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CommandID, e.Event, string(e.Action), string(e.EffectiveAction),
		e.Reason, e.DurationMinutes, string(e.Source),
		e.CreatedAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting override history: %w", err)
	}
	return nil
}

// List returns a page of history, newest first.
func (r *SQLiteHistory) List(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where, args := "", []any{}
	if f.Event != "" {
		where = "WHERE event = ?"
		args = append(args, f.Event)
	}

	var total int
	//nolint:gosec // where is a fixed string
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM override_history "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting override history: %w", err)
	}

	//nolint:gosec // where is a fixed string
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, event, action, effective_action, reason, duration_minutes, source, created_at
		 FROM override_history `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying override history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var action, effective, source, createdAt string
		if err := rows.Scan(&e.ID, &e.CommandID, &e.Event, &action, &effective,
			&e.Reason, &e.DurationMinutes, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning override history: %w", err)
		}
		e.Action, e.EffectiveAction, e.Source = Action(action), Action(effective), Source(source)
		if e.CreatedAt, err = time.Parse(historyTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating override history: %w", err)
	}

	return &HistoryPage{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Prune deletes entries created before the cutoff and returns how many
// were removed.
func (r *SQLiteHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM override_history WHERE created_at < ?",
		before.UTC().Format(historyTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning override history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning override history: %w", err)
	}
	return n, nil
}

// RecordHistory returns a listener that writes lifecycle events to repo.
// Restriction updates are not recorded.
func RecordHistory(repo HistoryRepository, logger Logger) func(Event) {
	return func(e Event) {
		if e.Type == EventRestrictionsUpdated {
			return
		}
		entry := &HistoryEntry{
			CommandID:       e.CommandID,
			Event:           e.Type.Short(),
			Action:          e.Action,
			EffectiveAction: e.EffectiveAction,
			Reason:          e.Reason,
			DurationMinutes: e.DurationMinutes,
			Source:          e.Source,
			CreatedAt:       e.Timestamp,
		}
		if err := repo.Record(context.Background(), entry); err != nil {
			logger.Error("recording override history failed", "type", e.Type, "error", err)
		}
	}
}
