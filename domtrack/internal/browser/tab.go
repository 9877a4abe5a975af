package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domtrack/domtrack/dom"
)

// candidateSelector matches elements that may qualify for tracking and
// are not tagged yet. Attribute names match case-insensitively in HTML.
const candidateSelector = `input:not([nodeid]), textarea:not([nodeid]), a[href]:not([nodeid])`

// Tab is one navigated page.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	manager *Manager
}

// OpenTab creates a stealth page, applies resource blocking and
// navigates to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := blockResources(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, PageID: pageID, manager: mgr}, nil
}

// Candidate is an untagged element found by Candidates.
type Candidate struct {
	Element   *Element
	TagName   string
	InputType string
	HasHref   bool
}

// Category classifies the candidate.
func (c Candidate) Category() (dom.Category, bool) {
	return dom.Classify(c.TagName, c.InputType, c.HasHref)
}

// Candidates returns the page's untagged inputs, textareas and links in
// document order.
func (t *Tab) Candidates(ctx context.Context) ([]Candidate, error) {
	els, err := t.Page.Context(ctx).Elements(candidateSelector)
	if err != nil {
		return nil, fmt.Errorf("browser: query candidates: %w", err)
	}

	out := make([]Candidate, 0, len(els))
	for _, el := range els {
		res, err := el.Context(ctx).Eval(`() => ({
			tag: this.tagName,
			type: this.getAttribute('type') || '',
			href: this.hasAttribute('href'),
		})`)
		if err != nil {
			// Detached between query and describe.
			continue
		}
		out = append(out, Candidate{
			Element:   NewElement(el),
			TagName:   res.Value.Get("tag").Str(),
			InputType: res.Value.Get("type").Str(),
			HasHref:   res.Value.Get("href").Bool(),
		})
	}
	return out, nil
}

// WatchInsertions calls onInsert for every CDP childNodeInserted event
// and onReset for every documentUpdated event until ctx is done.
// DOM.getDocument with depth -1 is required first: CDP only reports
// insertions under nodes it has already sent to the client.
func (t *Tab) WatchInsertions(ctx context.Context, onInsert, onReset func()) error {
	if err := (proto.DOMEnable{}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: DOM.enable: %w", err)
	}
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: DOM.getDocument: %w", err)
	}

	wait := t.Page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			if e.Node != nil && e.Node.NodeType == 1 {
				onInsert()
			}
		},
		func(e *proto.DOMDocumentUpdated) {
			// The document was replaced: every element handle is dead.
			// Re-request the tree so later insertions are reported again,
			// off the event goroutine.
			go func() {
				if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(t.Page.Context(ctx)); err != nil {
					t.manager.cfg.Logger.Debug("browser: DOM.getDocument after reset", "error", err)
				}
				onReset()
			}()
		},
	)
	go wait()
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
