package dom

import (
	"context"
	"errors"
	"testing"
)

func TestTrackedNode_Scenario(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()

	node := newFakeNode(Rect{X: 0, Y: 0, Width: 10, Height: 5, Top: 0, Left: 0, Bottom: 5, Right: 10})
	tn, err := reg.Create(ctx, node, TextInput)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.msgs) != 1 || rec.msgs[0] != "DOM#add#0#0#" {
		t.Fatalf("added: got %v", rec.msgs)
	}
	if !tn.Visible() {
		t.Error("new node must be visible")
	}

	// Same size and origin: no change.
	node.rects = []Rect{NewRect(0, 0, 10, 5)}
	changed, err := tn.RefreshGeometry(ctx)
	if err != nil || changed {
		t.Fatalf("unchanged refresh: got (%v, %v)", changed, err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("unchanged refresh emitted %v", rec.msgs[1:])
	}

	// Moved, same size.
	node.rects = []Rect{NewRect(5, 5, 10, 5)}
	changed, err = tn.RefreshGeometry(ctx)
	if err != nil || !changed {
		t.Fatalf("moved refresh: got (%v, %v)", changed, err)
	}
	if got := rec.msgs[len(rec.msgs)-1]; got != "DOM#upd#0#0#1#[5,5,10,15];#" {
		t.Errorf("update: got %q", got)
	}
	if r := tn.Rects(); len(r) != 1 || r[0].X != 5 || r[0].Y != 5 {
		t.Errorf("last rects not replaced with fresh geometry: %+v", r)
	}

	// The stored baseline must be the fresh value: a second refresh is quiet.
	changed, _ = tn.RefreshGeometry(ctx)
	if changed || len(rec.msgs) != 2 {
		t.Errorf("refresh after update: changed=%v msgs=%v", changed, rec.msgs)
	}
}

func TestTrackedNode_AdjustedRectsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 10, 5))
	tn, _ := reg.Create(ctx, node, Link)
	rec.reset()

	node.rects = []Rect{NewRect(1, 2, 3, 4), NewRect(0, 10, 3, 4)}
	first, err := tn.AdjustedRects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tn.AdjustedRects(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.msgs) != 1 {
		t.Fatalf("updates: got %d, want 1 (%v)", len(rec.msgs), rec.msgs)
	}
	if rec.msgs[0] != "DOM#upd#1#0#1#[2,1,6,4];[10,0,14,3];#" {
		t.Errorf("update: got %q", rec.msgs[0])
	}
	if len(first) != 2 || first[0] != second[0] || first[1] != second[1] {
		t.Errorf("AdjustedRects drifted: %v vs %v", first, second)
	}
}

func TestTrackedNode_RefreshErrorKeepsBaseline(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 1, 1))
	tn, _ := reg.Create(ctx, node, TextInput)
	rec.reset()

	node.fetchErr = errDetached
	changed, err := tn.RefreshGeometry(ctx)
	if !errors.Is(err, errDetached) || changed {
		t.Fatalf("RefreshGeometry: got (%v, %v)", changed, err)
	}
	if r := tn.Rects(); len(r) != 1 || !r[0].Equal(NewRect(0, 0, 1, 1)) {
		t.Errorf("baseline mutated on failure: %+v", r)
	}
	if _, err := tn.AdjustedRects(ctx); !errors.Is(err, errDetached) {
		t.Errorf("AdjustedRects: got %v", err)
	}
	if len(rec.msgs) != 0 {
		t.Errorf("messages on failure: %v", rec.msgs)
	}
}

func TestTrackedNode_FixedStatus(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 1, 1))
	tn, _ := reg.Create(ctx, node, Link)
	rec.reset()

	if tn.CheckFixedStatus() {
		t.Fatal("new node reported fixed")
	}

	node.tags[TagFixed] = "3"
	changed, err := tn.RefreshFixed(ctx)
	if err != nil || !changed {
		t.Fatalf("RefreshFixed: got (%v, %v)", changed, err)
	}
	if !tn.CheckFixedStatus() {
		t.Error("CheckFixedStatus: want true")
	}
	if id, ok := tn.FixedID(); !ok || id != "3" {
		t.Errorf("FixedID: got (%q, %v)", id, ok)
	}

	// CheckFixedStatus alone never emits.
	tn.CheckFixedStatus()
	if changed, _ := tn.RefreshFixed(ctx); changed {
		t.Error("RefreshFixed without change reported a change")
	}

	delete(node.tags, TagFixed)
	tn.RefreshFixed(ctx)

	want := []string{"DOM#upd#1#0#1#1#", "DOM#upd#1#0#1#0#"}
	if len(rec.msgs) != 2 || rec.msgs[0] != want[0] || rec.msgs[1] != want[1] {
		t.Errorf("messages: got %v, want %v", rec.msgs, want)
	}
}

func TestTrackedNode_Update(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 1, 1))
	tn, _ := reg.Create(ctx, node, TextInput)
	rec.reset()

	if changed, err := tn.Update(ctx); err != nil || changed {
		t.Fatalf("Update on quiet node: got (%v, %v)", changed, err)
	}

	node.rects = []Rect{NewRect(0, 1, 1, 1)}
	node.tags[TagFixed] = "hdr"
	if changed, err := tn.Update(ctx); err != nil || !changed {
		t.Fatalf("Update: got (%v, %v)", changed, err)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("Update: got %v, want rects then fixed", rec.msgs)
	}
	if rec.msgs[0] != "DOM#upd#0#0#1#[1,0,2,1];#" || rec.msgs[1] != "DOM#upd#0#0#1#1#" {
		t.Errorf("Update messages: %v", rec.msgs)
	}
}
