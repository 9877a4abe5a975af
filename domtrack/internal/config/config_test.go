package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domtrack/domtrack/dom"
	"github.com/hazyhaar/domtrack/domtrack/internal/dbopen"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - url: https://example.com/login
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Stealth != "headless" || cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("browser defaults: %+v", cfg.Browser)
	}
	if cfg.Scan.Window != 100*time.Millisecond || cfg.Scan.MaxPending != 256 {
		t.Errorf("scan defaults: %+v", cfg.Scan)
	}
	p := cfg.Pages[0]
	if p.ID != "https://example.com/login" || p.TickInterval != 500*time.Millisecond {
		t.Errorf("page defaults: %+v", p)
	}
	cats, _ := p.ParsedCategories()
	if len(cats) != 2 || cats[0] != dom.TextInput || cats[1] != dom.Link {
		t.Errorf("default categories: %v", cats)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domtrack.yaml")
	os.WriteFile(path, []byte(`
browser:
  stealth: headful
  resource_blocking: [images, fonts]
pages:
  - id: search
    url: https://example.com
    categories: [text_input]
    tick_interval: 250ms
    track_fixed: true
scan:
  window: 50ms
sinks:
  - type: stdout
  - type: journal
    path: /tmp/j.db
http:
  addr: ":8090"
`), 0o644)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Stealth != "headful" || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	p := cfg.Pages[0]
	if p.ID != "search" || p.TickInterval != 250*time.Millisecond || !p.TrackFixed {
		t.Errorf("page: %+v", p)
	}
	if cfg.Scan.Window != 50*time.Millisecond {
		t.Errorf("scan window: %v", cfg.Scan.Window)
	}
	if len(cfg.Sinks) != 2 || cfg.HTTP.Addr != ":8090" {
		t.Errorf("sinks/http: %+v %+v", cfg.Sinks, cfg.HTTP)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing url":     "pages: [{id: a}]",
		"duplicate id":    "pages: [{id: a, url: x}, {id: a, url: y}]",
		"bad category":    "pages: [{url: x, categories: [button]}]",
		"unknown sink":    "sinks: [{type: nats}]",
		"webhook no url":  "sinks: [{type: webhook}]",
		"journal no path": "sinks: [{type: journal}]",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadPages(t *testing.T) {
	db, err := dbopen.Open(dbopen.Memory, dbopen.WithSchema(Schema))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	db.Exec(`INSERT INTO tracked_pages (id, url, categories, tick_interval_ms, track_fixed, status, updated_at)
		VALUES ('a', 'https://a.example', '["link"]', 1000, 1, 'active', ?),
		       ('b', 'https://b.example', '[]', 0, 0, 'active', ?),
		       ('c', 'https://c.example', '[]', 0, 0, 'paused', ?)`, now, now, now)

	pages, err := LoadPages(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages: got %d, want 2 active", len(pages))
	}
	if pages[0].ID != "a" || pages[0].TickInterval != time.Second || !pages[0].TrackFixed {
		t.Errorf("page a: %+v", pages[0])
	}
	if strings.Join(pages[0].Categories, ",") != "link" {
		t.Errorf("page a categories: %v", pages[0].Categories)
	}
	if pages[1].TickInterval != 500*time.Millisecond || len(pages[1].Categories) != 2 {
		t.Errorf("page b defaults: %+v", pages[1])
	}
}

func TestWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domtrack.yaml")
	if err := os.WriteFile(path, []byte("pages:\n  - url: https://a.example\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, 20*time.Millisecond, nil, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("pages: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("pages:\n  - url: https://a.example\n  - url: https://b.example\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if len(c.Pages) != 2 || c.Pages[1].ID != "https://b.example" {
			t.Errorf("reloaded pages: %+v", c.Pages)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after edit")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFile: %v", err)
	}
}
