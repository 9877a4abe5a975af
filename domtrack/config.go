package domtrack

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/domtrack/domtrack/internal/config"
	"github.com/hazyhaar/domtrack/domtrack/internal/dbopen"
)

// Config is the top-level domtrack configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to track.
type PageConfig = config.PageConfig

// ScanConfig controls insertion debouncing.
type ScanConfig = config.ScanConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// HTTPConfig enables the status API.
type HTTPConfig = config.HTTPConfig

// OpenPagesDB opens the SQLite database at path and ensures the
// tracked_pages table exists. The pool holds a single connection so that
// PRAGMA data_version, used to detect edits, is read consistently.
func OpenPagesDB(path string) (*sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(config.Schema))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// LoadPages reads active pages from the tracked_pages table.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	return config.LoadPages(ctx, db)
}
