package domtrack

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/domtrack/domtrack/dom"
	"github.com/hazyhaar/domtrack/domtrack/internal/browser"
	"github.com/hazyhaar/domtrack/domtrack/internal/config"
	"github.com/hazyhaar/domtrack/domtrack/internal/sink"
)

// Found is a node discovered by a scan together with its category.
type Found struct {
	Node     dom.Node
	Category dom.Category
}

// Source is the page a Session tracks nodes on.
type Source interface {
	// Scan returns nodes that qualify for tracking and are not tagged yet.
	Scan(ctx context.Context) ([]Found, error)
	// WatchInsertions calls onInsert whenever nodes are inserted into the
	// page and onReset when the whole document is replaced.
	WatchInsertions(ctx context.Context, onInsert, onReset func()) error
	Close() error
}

// tabSource adapts a browser tab to Source.
type tabSource struct {
	tab *browser.Tab
}

func (s *tabSource) Scan(ctx context.Context) ([]Found, error) {
	cands, err := s.tab.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Found, 0, len(cands))
	for _, c := range cands {
		if cat, ok := c.Category(); ok {
			out = append(out, Found{Node: c.Element, Category: cat})
		}
	}
	return out, nil
}

func (s *tabSource) WatchInsertions(ctx context.Context, onInsert, onReset func()) error {
	return s.tab.WatchInsertions(ctx, onInsert, onReset)
}

func (s *tabSource) Close() error { return s.tab.Close() }

// NodeStatus is the last known state of one tracked node.
type NodeStatus struct {
	Category string       `json:"category"`
	Type     uint         `json:"type"`
	ID       uint         `json:"id"`
	Visible  bool         `json:"visible"`
	Fixed    bool         `json:"fixed"`
	FixedID  string       `json:"fixed_id,omitempty"`
	Rects    [][4]float64 `json:"rects"`
}

// PageStatus summarises a page session.
type PageStatus struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	SessionID string         `json:"session_id"`
	StartedAt time.Time      `json:"started_at"`
	Counts    map[string]int `json:"counts"`
	Nodes     []NodeStatus   `json:"nodes,omitempty"`
}

// Session tracks the nodes of one page. All registry access happens on
// the session goroutine; other goroutines talk to it through channels.
// A document reset replaces the registry and the session id.
type Session struct {
	id      atomic.Value // string
	page    config.PageConfig
	cats    []dom.Category
	src     Source
	disp    *dom.Dispatcher
	scanCfg config.ScanConfig
	logger  *slog.Logger

	events   chan struct{}
	resets   chan struct{}
	statusCh chan chan PageStatus
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time
}

// NewSession creates a session for page reading from src and delivering
// wire messages to out.
func NewSession(page config.PageConfig, src Source, out dom.Sink, scan config.ScanConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page.ApplyDefaults()
	cats, err := page.ParsedCategories()
	if err != nil {
		return nil, fmt.Errorf("domtrack: session %s: %w", page.ID, err)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	s := &Session{
		page:     page,
		cats:     cats,
		src:      src,
		disp:     dom.NewDispatcher(out, dom.WithLogger(logger), dom.WithFixedTracking(page.TrackFixed)),
		scanCfg:  scan,
		logger:   logger.With("page_id", page.ID),
		events:   make(chan struct{}, 1024),
		resets:   make(chan struct{}, 1),
		statusCh: make(chan chan PageStatus),
		done:     make(chan struct{}),
	}
	s.id.Store(id)
	return s, nil
}

func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("domtrack: session id: %w", err)
	}
	return id.String(), nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.Load().(string) }

// PageID returns the configured page id.
func (s *Session) PageID() string { return s.page.ID }

// Start subscribes to insertions and runs the session loop until Stop or
// until ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(sink.WithPageID(ctx, s.page.ID))
	if err := s.src.WatchInsertions(ctx, s.onInsert, s.onReset); err != nil {
		s.cancel()
		return fmt.Errorf("domtrack: watch insertions: %w", err)
	}
	s.started = time.Now()
	go s.loop(ctx)
	return nil
}

// Stop ends the loop and closes the source.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.src.Close(); err != nil {
		s.logger.Debug("domtrack: close source", "error", err)
	}
}

// Status returns a snapshot of the session's registry.
func (s *Session) Status(ctx context.Context) (PageStatus, error) {
	reply := make(chan PageStatus, 1)
	select {
	case s.statusCh <- reply:
	case <-s.done:
		return PageStatus{}, fmt.Errorf("domtrack: session %s stopped", s.page.ID)
	case <-ctx.Done():
		return PageStatus{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return PageStatus{}, ctx.Err()
	}
}

func (s *Session) onInsert() {
	select {
	case s.events <- struct{}{}:
	default:
		// Full: a scan is already due.
	}
}

func (s *Session) onReset() {
	select {
	case s.resets <- struct{}{}:
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	reg := dom.NewRegistry(s.disp, s.cats...)
	deb := newScanDebouncer(s.scanCfg.Window, s.scanCfg.MaxPending)
	ticker := time.NewTicker(s.page.TickInterval)
	defer ticker.Stop()

	s.scan(ctx, reg)
	s.logger.Info("domtrack: session started",
		"session_id", s.ID(), "url", s.page.URL, "nodes", s.count(reg))

	for {
		select {
		case <-ctx.Done():
			deb.reset()
			s.logger.Info("domtrack: session stopped", "session_id", s.ID())
			return

		case <-s.resets:
			deb.reset()
			reg = s.resetRegistry(ctx, reg)

		case <-s.events:
			if deb.add() {
				s.scan(ctx, reg)
			}

		case <-deb.timerC():
			deb.reset()
			s.scan(ctx, reg)

		case <-ticker.C:
			if n := s.disp.Tick(ctx, reg); n > 0 {
				s.logger.Debug("domtrack: tick", "changed", n)
			}

		case reply := <-s.statusCh:
			reply <- s.snapshot(reg)
		}
	}
}

// resetRegistry drops every node of the replaced document and tracks the
// new one from identifier 0 under a fresh session id.
func (s *Session) resetRegistry(ctx context.Context, old *dom.Registry) *dom.Registry {
	prev := s.ID()
	if id, err := newSessionID(); err != nil {
		s.logger.Warn("domtrack: reset keeps session id", "error", err)
	} else {
		s.id.Store(id)
	}
	reg := dom.NewRegistry(s.disp, s.cats...)
	s.scan(ctx, reg)
	s.logger.Info("domtrack: document replaced",
		"previous_session_id", prev, "session_id", s.ID(),
		"dropped", s.count(old), "nodes", s.count(reg))
	return reg
}

// scan registers every untagged qualifying node in document order.
func (s *Session) scan(ctx context.Context, reg *dom.Registry) int {
	found, err := s.src.Scan(ctx)
	if err != nil {
		s.logger.Warn("domtrack: scan failed", "error", err)
		return 0
	}
	created := 0
	for _, f := range found {
		if !s.tracks(f.Category) {
			continue
		}
		if _, err := reg.Create(ctx, f.Node, f.Category); err != nil {
			s.logger.Debug("domtrack: create failed", "category", f.Category, "error", err)
			continue
		}
		created++
	}
	return created
}

func (s *Session) tracks(c dom.Category) bool {
	for _, t := range s.cats {
		if t == c {
			return true
		}
	}
	return false
}

func (s *Session) count(reg *dom.Registry) int {
	n := 0
	for _, c := range s.cats {
		n += reg.Len(c)
	}
	return n
}

func (s *Session) snapshot(reg *dom.Registry) PageStatus {
	st := PageStatus{
		ID:        s.page.ID,
		URL:       s.page.URL,
		SessionID: s.ID(),
		StartedAt: s.started,
		Counts:    make(map[string]int, len(s.cats)),
	}
	for _, c := range s.cats {
		st.Counts[c.String()] = reg.Len(c)
	}
	for tn := range reg.All() {
		fixedID, fixed := tn.FixedID()
		st.Nodes = append(st.Nodes, NodeStatus{
			Category: tn.Category().String(),
			Type:     uint(tn.Category()),
			ID:       tn.ID(),
			Visible:  tn.Visible(),
			Fixed:    fixed,
			FixedID:  fixedID,
			Rects:    dom.AdjustRects(tn.Rects()),
		})
	}
	return st
}
