// Package watch polls a SQLite database for changes and runs a reload
// action, debounced. domtrack uses it to pick up edits to the
// tracked_pages table while running.
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Detector reads a version token. Two different values mean the database
// changed.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the poller.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action
	// fires. 0 fires on the poll that saw the change.
	Debounce time.Duration
	// Detector defaults to DataVersion.
	Detector Detector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = DataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Poller watches one database.
type Poller struct {
	db      *sql.DB
	opts    Options
	version int64
}

// New creates a Poller. Call Run to start it.
func New(db *sql.DB, opts Options) *Poller {
	opts.defaults()
	return &Poller{db: db, opts: opts}
}

// Run blocks until ctx is done. After each detected change, once the
// debounce window passes quietly, action runs. A failing action leaves
// the version unchanged so the next poll retries it.
func (p *Poller) Run(ctx context.Context, action func(context.Context) error) {
	log := p.opts.Logger

	if v, err := p.opts.Detector(ctx, p.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		p.version = v
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var timer *time.Timer
	var timerCh <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := p.opts.Detector(ctx, p.db)
			if err != nil {
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == p.version || cur == pending {
				continue
			}
			pending = cur
			if p.opts.Debounce <= 0 {
				p.fire(ctx, action, pending)
				pending = -1
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(p.opts.Debounce)
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if pending >= 0 {
				p.fire(ctx, action, pending)
				pending = -1
			}
		}
	}
}

func (p *Poller) fire(ctx context.Context, action func(context.Context) error, ver int64) {
	start := time.Now()
	if err := action(ctx); err != nil {
		p.opts.Logger.Error("watch: reload failed", "version", ver, "error", err)
		return
	}
	p.version = ver
	p.opts.Logger.Info("watch: reloaded", "version", ver, "duration", time.Since(start))
}

// DataVersion reads PRAGMA data_version, which moves when another
// connection commits to the same file.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// UserVersion reads PRAGMA user_version, bumped explicitly by writers.
func UserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}
