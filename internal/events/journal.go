package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// JournalSink appends events to a SQLite database.
type JournalSink struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewJournalSink opens (or creates) the journal at dbPath. Use ":memory:" for tests.
func NewJournalSink(dbPath string) (*JournalSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A :memory: database lives on a single connection.
	db.SetMaxOpenConns(1)

	j := &JournalSink{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *JournalSink) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL,
		source TEXT NOT NULL,
		identity TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		attrs TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_identity ON events(identity);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Emit appends the event.
func (j *JournalSink) Emit(ctx context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var attrsJSON []byte
	if len(e.Attrs) > 0 {
		var err error
		if attrsJSON, err = json.Marshal(e.Attrs); err != nil {
			return fmt.Errorf("marshal attrs: %w", err)
		}
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO events (cycle_id, source, identity, event_type, timestamp, attrs) VALUES (?, ?, ?, ?, ?, ?)",
		e.CycleID, e.Source, e.Identity, string(e.Type), ts.UnixMilli(), attrsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByIdentity returns the history of one package, oldest first.
func (j *JournalSink) ByIdentity(ctx context.Context, identity string) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT cycle_id, source, identity, event_type, timestamp, attrs FROM events WHERE identity = ? ORDER BY id",
		identity,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns up to limit of the newest events, newest first.
func (j *JournalSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT cycle_id, source, identity, event_type, timestamp, attrs FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		var ts int64
		var attrsJSON []byte
		if err := rows.Scan(&e.CycleID, &e.Source, &e.Identity, &typ, &ts, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = Type(typ)
		e.Time = time.UnixMilli(ts)
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &e.Attrs); err != nil {
				return nil, fmt.Errorf("unmarshal attrs: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (j *JournalSink) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
