// Package domtrack tracks interactive DOM nodes (text inputs and links)
// on live pages, assigns them stable per-category identifiers and streams
// geometry and fixed-identity changes as compact wire messages.
//
// The tracking core lives in domtrack/dom and knows nothing about
// browsers. This package drives it: a Watcher owns Chrome, one Session per
// page and the output sinks.
package domtrack

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/domtrack/domtrack/internal/browser"
	"github.com/hazyhaar/domtrack/domtrack/internal/config"
	"github.com/hazyhaar/domtrack/domtrack/internal/sink"
	"github.com/hazyhaar/domtrack/domtrack/internal/watch"
)

// Watcher is the top-level orchestrator. It manages the browser, the page
// sessions and the sinks.
type Watcher struct {
	cfg      *config.Config
	mgr      *browser.Manager
	sinkR    *sink.Router
	sessions map[string]*Session // keyed by page ID
	pages    map[string]config.PageConfig
	sources  map[string]string // page ID -> SyncPages source
	open     func(ctx context.Context, page config.PageConfig) (Source, error)
	mu       sync.Mutex
	logger   *slog.Logger
}

// New creates a Watcher from configuration.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             browser.ParseMode(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})

	w := &Watcher{
		cfg:      cfg,
		mgr:      mgr,
		sinkR:    sink.NewRouter(logger, sinks...),
		sessions: make(map[string]*Session),
		pages:    make(map[string]config.PageConfig),
		sources:  make(map[string]string),
		logger:   logger,
	}
	w.open = w.openTab
	return w
}

// Start launches the browser and begins tracking all configured pages.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("domtrack: start browser: %w", err)
	}

	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.stopAllSessions,
		AfterRecycle:  func(*rod.Browser) { w.reconnectSessions(ctx) },
	})

	if err := w.SyncPages(ctx, SourceConfig, w.cfg.Pages); err != nil {
		w.logger.Error("domtrack: failed to observe pages", "error", err)
	}
	return nil
}

// ObservePage opens page in a new tab and starts its session. An existing
// session for the same page id is replaced.
func (w *Watcher) ObservePage(ctx context.Context, page config.PageConfig) error {
	page.ApplyDefaults()
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.sessions[page.ID]; ok {
		old.Stop()
		delete(w.sessions, page.ID)
	}
	if err := w.observePageLocked(ctx, page); err != nil {
		return err
	}
	w.pages[page.ID] = page
	return nil
}

// Page sources passed to SyncPages.
const (
	SourceConfig = "config"
	SourceDB     = "db"
)

// SyncPages makes the pages owned by source equal to pages: new pages are
// opened, changed ones restarted and pages missing from the list stopped.
// A page id already owned by another source is skipped.
func (w *Watcher) SyncPages(ctx context.Context, source string, pages []config.PageConfig) error {
	want := make(map[string]config.PageConfig, len(pages))
	for _, p := range pages {
		p.ApplyDefaults()
		want[p.ID] = p
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, src := range w.sources {
		if src != source {
			continue
		}
		if _, ok := want[id]; ok {
			continue
		}
		if sess, ok := w.sessions[id]; ok {
			sess.Stop()
			delete(w.sessions, id)
		}
		delete(w.pages, id)
		delete(w.sources, id)
		w.logger.Info("domtrack: page removed", "page_id", id, "source", source)
	}

	var errs []error
	for id, p := range want {
		if src, ok := w.sources[id]; ok && src != source {
			w.logger.Warn("domtrack: page id owned by another source", "page_id", id, "owner", src, "source", source)
			continue
		}
		if cur, ok := w.pages[id]; ok && samePage(cur, p) {
			if _, running := w.sessions[id]; running {
				w.sources[id] = source
				continue
			}
		}
		if sess, ok := w.sessions[id]; ok {
			sess.Stop()
			delete(w.sessions, id)
		}
		// Keep the page so a failed open is retried by the next sync or recycle.
		w.pages[id] = p
		w.sources[id] = source
		if err := w.observePageLocked(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// WatchPagesDB syncs the pages of the tracked_pages table in db now and
// after every change, until ctx is done.
func (w *Watcher) WatchPagesDB(ctx context.Context, db *sql.DB, interval time.Duration) error {
	reload := func(ctx context.Context) error {
		pages, err := config.LoadPages(ctx, db)
		if err != nil {
			return err
		}
		return w.SyncPages(ctx, SourceDB, pages)
	}
	if err := reload(ctx); err != nil {
		return fmt.Errorf("domtrack: load pages: %w", err)
	}
	p := watch.New(db, watch.Options{Interval: interval, Debounce: interval, Logger: w.logger})
	go p.Run(ctx, reload)
	return nil
}

// WatchConfigFile applies page changes of the YAML file at path until ctx
// is done. Browser, scan and sink settings need a restart.
func (w *Watcher) WatchConfigFile(ctx context.Context, path string) {
	err := config.WatchFile(ctx, path, 0, w.logger, func(cfg *config.Config) {
		if err := w.SyncPages(ctx, SourceConfig, cfg.Pages); err != nil {
			w.logger.Error("domtrack: apply config pages", "error", err)
		}
	})
	if err != nil {
		w.logger.Error("domtrack: watch config file", "path", path, "error", err)
	}
}

func samePage(a, b config.PageConfig) bool {
	return a.URL == b.URL &&
		a.TickInterval == b.TickInterval &&
		a.TrackFixed == b.TrackFixed &&
		slices.Equal(a.Categories, b.Categories)
}

// Stop shuts down all sessions, the sinks and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, sess := range w.sessions {
		sess.Stop()
		w.logger.Info("domtrack: stopped session", "page_id", id)
	}
	w.sessions = make(map[string]*Session)

	if err := w.sinkR.Close(); err != nil {
		w.logger.Warn("domtrack: close sinks", "error", err)
	}
	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("domtrack: close browser", "error", err)
	}
}

// Pages returns the status of every session, ordered by page id.
func (w *Watcher) Pages(ctx context.Context) []PageStatus {
	w.mu.Lock()
	sessions := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.mu.Unlock()

	out := make([]PageStatus, 0, len(sessions))
	for _, s := range sessions {
		st, err := s.Status(ctx)
		if err != nil {
			continue
		}
		st.Nodes = nil
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Page returns the full status of one page, nodes included.
func (w *Watcher) Page(ctx context.Context, pageID string) (PageStatus, bool) {
	w.mu.Lock()
	s, ok := w.sessions[pageID]
	w.mu.Unlock()
	if !ok {
		return PageStatus{}, false
	}
	st, err := s.Status(ctx)
	if err != nil {
		return PageStatus{}, false
	}
	return st, true
}

// openTab opens page in a new browser tab.
func (w *Watcher) openTab(ctx context.Context, page config.PageConfig) (Source, error) {
	tab, err := browser.OpenTab(ctx, w.mgr, page.URL, page.ID)
	if err != nil {
		return nil, fmt.Errorf("domtrack: open tab: %w", err)
	}
	return &tabSource{tab: tab}, nil
}

func (w *Watcher) observePageLocked(ctx context.Context, page config.PageConfig) error {
	src, err := w.open(ctx, page)
	if err != nil {
		return err
	}

	sess, err := NewSession(page, src, w.sinkR, w.cfg.Scan, w.logger)
	if err != nil {
		src.Close()
		return err
	}
	if err := sess.Start(ctx); err != nil {
		src.Close()
		return fmt.Errorf("domtrack: start session: %w", err)
	}

	w.sessions[page.ID] = sess
	w.logger.Info("domtrack: observing page",
		"url", page.URL, "page_id", page.ID, "session_id", sess.ID())
	return nil
}

func (w *Watcher) stopAllSessions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sess := range w.sessions {
		sess.Stop()
	}
	w.sessions = make(map[string]*Session)
}

// reconnectSessions reopens every known page after a recycle. Identifiers
// restart at 0: the new tab is a new document.
func (w *Watcher) reconnectSessions(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, page := range w.pages {
		if err := w.observePageLocked(ctx, page); err != nil {
			w.logger.Error("domtrack: reconnect session failed",
				"url", page.URL, "error", err)
		}
	}
}
