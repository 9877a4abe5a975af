package dom

import (
	"context"
	"fmt"
)

// Tag names written on (or read from) tracked DOM nodes.
const (
	TagCategory = "nodeType"
	TagID       = "nodeID"
	// TagFixed is owned by the page: its presence marks a node pinned to
	// the viewport. domtrack only reads it.
	TagFixed = "fixedID"
)

// Node is the DOM element behind a TrackedNode. The page owns it; domtrack
// holds a reference and writes tags on it for reverse lookup only.
type Node interface {
	ClientRects(ctx context.Context) ([]Rect, error)
	Tag(ctx context.Context, name string) (value string, ok bool, err error)
	SetTag(ctx context.Context, name, value string) error
}

// Notifier receives change events and lookup diagnostics.
// *Dispatcher is the production implementation.
type Notifier interface {
	Notify(ctx context.Context, tn *TrackedNode, kind ChangeKind)
	Report(ctx context.Context, err error)
}

// TrackedNode is one DOM element under observation.
type TrackedNode struct {
	category Category
	id       uint
	tagged   bool
	node     Node
	rects    []Rect
	visible  bool
	fixedID  string
	fixed    bool
	notify   Notifier
}

func (tn *TrackedNode) Category() Category { return tn.category }
func (tn *TrackedNode) ID() uint           { return tn.id }
func (tn *TrackedNode) Node() Node         { return tn.node }

// Visible is reserved for visibility tracking and always true.
func (tn *TrackedNode) Visible() bool { return tn.visible }

// Rects returns a copy of the last observed geometry.
func (tn *TrackedNode) Rects() []Rect {
	out := make([]Rect, len(tn.rects))
	copy(out, tn.rects)
	return out
}

// FixedID returns the fixed-position identifier, if the node has one.
func (tn *TrackedNode) FixedID() (string, bool) { return tn.fixedID, tn.fixed }

// CheckFixedStatus reports whether the node is pinned to the viewport.
// It never emits a notification.
func (tn *TrackedNode) CheckFixedStatus() bool { return tn.fixed }

// RefreshGeometry re-reads the node's client rects. When they differ from
// the last observation they replace it, an UpdatedRects message is
// emitted and true is returned. A failed fetch leaves the node untouched.
func (tn *TrackedNode) RefreshGeometry(ctx context.Context) (bool, error) {
	fresh, err := tn.node.ClientRects(ctx)
	if err != nil {
		return false, fmt.Errorf("dom: refresh %s/%d: %w", tn.category, tn.id, err)
	}
	if EqualRects(fresh, tn.rects) {
		return false, nil
	}
	tn.rects = fresh
	tn.notify.Notify(ctx, tn, UpdatedRects)
	return true, nil
}

// AdjustedRects refreshes the geometry, then returns it as wire tuples.
func (tn *TrackedNode) AdjustedRects(ctx context.Context) ([][4]float64, error) {
	if _, err := tn.RefreshGeometry(ctx); err != nil {
		return nil, err
	}
	return AdjustRects(tn.rects), nil
}

// RefreshFixed re-reads the fixed tag and emits UpdatedFixed when its
// presence or value changed.
func (tn *TrackedNode) RefreshFixed(ctx context.Context) (bool, error) {
	v, ok, err := tn.node.Tag(ctx, TagFixed)
	if err != nil {
		return false, fmt.Errorf("dom: refresh fixed %s/%d: %w", tn.category, tn.id, err)
	}
	if !ok {
		v = ""
	}
	if ok == tn.fixed && v == tn.fixedID {
		return false, nil
	}
	tn.fixedID, tn.fixed = v, ok
	tn.notify.Notify(ctx, tn, UpdatedFixed)
	return true, nil
}

// Update runs the geometry check then the fixed check.
func (tn *TrackedNode) Update(ctx context.Context) (bool, error) {
	moved, err := tn.RefreshGeometry(ctx)
	if err != nil {
		return false, err
	}
	pinned, err := tn.RefreshFixed(ctx)
	if err != nil {
		return moved, err
	}
	return moved || pinned, nil
}
