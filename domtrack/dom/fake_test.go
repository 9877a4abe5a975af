package dom

import (
	"context"
	"errors"
)

// fakeNode is an in-memory DOM element.
type fakeNode struct {
	rects    []Rect
	tags     map[string]string
	fetchErr error
	tagErr   error
	failTag  string // SetTag fails with tagErr for this name only
	fetches  int
}

func newFakeNode(rects ...Rect) *fakeNode {
	return &fakeNode{rects: rects, tags: map[string]string{}}
}

func (n *fakeNode) ClientRects(context.Context) ([]Rect, error) {
	n.fetches++
	if n.fetchErr != nil {
		return nil, n.fetchErr
	}
	out := make([]Rect, len(n.rects))
	copy(out, n.rects)
	return out, nil
}

func (n *fakeNode) Tag(_ context.Context, name string) (string, bool, error) {
	v, ok := n.tags[name]
	return v, ok, nil
}

func (n *fakeNode) SetTag(_ context.Context, name, value string) error {
	if n.tagErr != nil && (n.failTag == "" || n.failTag == name) {
		return n.tagErr
	}
	n.tags[name] = value
	return nil
}

// recorder is a Sink keeping every message.
type recorder struct {
	msgs []string
	err  error
}

func (r *recorder) Send(_ context.Context, msg string) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) reset() { r.msgs = nil }

var errDetached = errors.New("node detached")

func newTestRegistry(cats ...Category) (*Registry, *Dispatcher, *recorder) {
	rec := &recorder{}
	d := NewDispatcher(rec)
	return NewRegistry(d, cats...), d, rec
}
