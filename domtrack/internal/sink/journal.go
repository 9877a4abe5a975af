package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/domtrack/domtrack/dom"
	"github.com/hazyhaar/domtrack/domtrack/internal/dbopen"
)

// JournalSchema is the wire_messages table.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS wire_messages (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	category   INTEGER,
	node_id    INTEGER,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wire_messages_page ON wire_messages(page_id, created_at);
`

// Journal appends every message to a SQLite table, decoded enough to be
// queried by page, kind and node.
type Journal struct {
	db    *sql.DB
	owned bool
	now   func() time.Time
}

// Entry is one journal row.
type Entry struct {
	ID        string
	PageID    string
	Kind      string
	Category  *int64
	NodeID    *int64
	Body      string
	CreatedAt time.Time
}

// OpenJournal opens (or creates) the SQLite database at path with WAL and
// a busy timeout, and applies the schema.
func OpenJournal(path string) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j, err := NewJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	j.owned = true
	return j, nil
}

// NewJournal uses an existing database. The caller keeps ownership of db.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(JournalSchema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Send(ctx context.Context, msg string) error {
	kind := "raw"
	var cat, node sql.NullInt64
	if m, err := dom.Decode(msg); err == nil {
		if m.IsDiagnostic() {
			kind = "diagnostic"
		} else {
			kind = m.Kind.String()
			cat = sql.NullInt64{Int64: int64(m.Category), Valid: true}
			node = sql.NullInt64{Int64: int64(m.ID), Valid: true}
		}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO wire_messages (id, page_id, kind, category, node_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV7()).String(), PageID(ctx), kind, cat, node, msg, j.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for pageID, newest first. An empty
// pageID matches every page.
func (j *Journal) Recent(ctx context.Context, pageID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, page_id, kind, category, node_id, body, created_at
		FROM wire_messages
		WHERE ? = '' OR page_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, pageID, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var cat, node sql.NullInt64
		var ms int64
		if err := rows.Scan(&e.ID, &e.PageID, &e.Kind, &cat, &node, &e.Body, &ms); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if cat.Valid {
			e.Category = &cat.Int64
		}
		if node.Valid {
			e.NodeID = &node.Int64
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j.owned {
		return j.db.Close()
	}
	return nil
}
