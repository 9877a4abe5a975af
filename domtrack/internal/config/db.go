package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Schema for the tracked_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS tracked_pages (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL,
	categories       TEXT DEFAULT '[]',
	tick_interval_ms INTEGER DEFAULT 500,
	track_fixed      INTEGER DEFAULT 0,
	status           TEXT DEFAULT 'active',
	updated_at       INTEGER NOT NULL
);
`

// LoadPages reads all active pages from the database, defaults applied.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, categories, tick_interval_ms, track_fixed
		FROM tracked_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		var catsJSON string
		var tickMs int64
		var fixed int

		if err := rows.Scan(&p.ID, &p.URL, &catsJSON, &tickMs, &fixed); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		if err := json.Unmarshal([]byte(catsJSON), &p.Categories); err != nil {
			return nil, fmt.Errorf("config: page %q: categories: %w", p.ID, err)
		}
		p.TickInterval = time.Duration(tickMs) * time.Millisecond
		p.TrackFixed = fixed != 0
		p.ApplyDefaults()
		if _, err := p.ParsedCategories(); err != nil {
			return nil, fmt.Errorf("config: page %q: %w", p.ID, err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
