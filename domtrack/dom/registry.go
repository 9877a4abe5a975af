// Package dom is the registry and change-notification core of domtrack.
//
// A Registry keeps one ordered collection of TrackedNodes per Category and
// hands out identifiers that never change. TrackedNodes poll their DOM
// element for geometry, and every detected change is encoded into a
// '#'-delimited wire message and pushed to a Sink by the Dispatcher.
//
// The package is single-threaded: a Registry, its nodes and their
// Dispatcher must be driven from one goroutine.
package dom

import (
	"context"
	"fmt"
	"iter"
	"strconv"
)

// Registry owns the TrackedNodes of one page session.
type Registry struct {
	lists  map[Category][]*TrackedNode
	order  []Category
	notify Notifier
}

// NewRegistry creates a registry for the given categories, or for
// DefaultCategories when none are given. Events go to n.
func NewRegistry(n Notifier, cats ...Category) *Registry {
	if n == nil {
		n = nopNotifier{}
	}
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	r := &Registry{lists: make(map[Category][]*TrackedNode, len(cats)), notify: n}
	for _, c := range cats {
		if _, dup := r.lists[c]; dup {
			continue
		}
		r.lists[c] = nil
		r.order = append(r.order, c)
	}
	return r
}

// Create starts tracking node under cat. The node's current geometry
// becomes its baseline, the node is tagged with (cat, id) and an Added
// message is emitted. On error nothing is registered.
//
// A node this registry already tracks is not tagged again: Create
// reports ErrAlreadyTracked and returns the existing entry with it.
func (r *Registry) Create(ctx context.Context, node Node, cat Category) (*TrackedNode, error) {
	list, ok := r.lists[cat]
	if !ok {
		return nil, r.fail(ctx, fmt.Errorf("dom: create: %w: no collection for type=%d", ErrUnknownCategory, cat))
	}

	prev, err := r.owner(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("dom: create: %w", err)
	}
	if prev != nil {
		return prev, r.fail(ctx, fmt.Errorf("dom: create: %w: id=%d type=%d", ErrAlreadyTracked, prev.id, prev.category))
	}

	rects, err := node.ClientRects(ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: create: fetch rects: %w", err)
	}

	// nodeID goes first: Lookup needs both tags, so a node whose second
	// write failed still reads as untracked.
	id := uint(len(list))
	if err := node.SetTag(ctx, TagID, strconv.FormatUint(uint64(id), 10)); err != nil {
		return nil, fmt.Errorf("dom: create: tag %s: %w", TagID, err)
	}
	if err := node.SetTag(ctx, TagCategory, strconv.FormatUint(uint64(cat), 10)); err != nil {
		return nil, fmt.Errorf("dom: create: tag %s: %w", TagCategory, err)
	}

	tn := &TrackedNode{
		category: cat,
		id:       id,
		tagged:   true,
		node:     node,
		rects:    rects,
		visible:  true,
		notify:   r.notify,
	}
	r.lists[cat] = append(list, tn)

	r.notify.Notify(ctx, tn, Added)
	return tn, nil
}

// List returns the collection for cat in identifier order. The slice is
// a copy; the nodes are shared.
func (r *Registry) List(ctx context.Context, cat Category) ([]*TrackedNode, error) {
	list, ok := r.lists[cat]
	if !ok {
		return nil, r.fail(ctx, fmt.Errorf("dom: list: %w: no collection for type=%d", ErrUnknownCategory, cat))
	}
	out := make([]*TrackedNode, len(list))
	copy(out, list)
	return out, nil
}

// Get returns the node with identifier id in cat.
func (r *Registry) Get(ctx context.Context, cat Category, id uint) (*TrackedNode, error) {
	list, ok := r.lists[cat]
	if !ok {
		return nil, r.fail(ctx, fmt.Errorf("dom: get: %w: no collection for type=%d", ErrUnknownCategory, cat))
	}
	if id >= uint(len(list)) {
		return nil, r.fail(ctx, fmt.Errorf("dom: get: %w: node with id=%d does not exist for type=%d", ErrIndexOutOfRange, id, cat))
	}
	return list[id], nil
}

// Lookup resolves a DOM node back to its TrackedNode through the tags
// written by Create.
func (r *Registry) Lookup(ctx context.Context, node Node) (*TrackedNode, error) {
	typ, okType, err := node.Tag(ctx, TagCategory)
	if err != nil {
		return nil, fmt.Errorf("dom: lookup: read %s: %w", TagCategory, err)
	}
	idStr, okID, err := node.Tag(ctx, TagID)
	if err != nil {
		return nil, fmt.Errorf("dom: lookup: read %s: %w", TagID, err)
	}
	if !okType || !okID {
		return nil, r.fail(ctx, fmt.Errorf("dom: lookup: %w: node carries no %s/%s tags", ErrUntrackedNode, TagCategory, TagID))
	}

	cat, err := strconv.ParseUint(typ, 10, 32)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("dom: lookup: %w: bad %s=%q", ErrUntrackedNode, TagCategory, typ))
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("dom: lookup: %w: bad %s=%q", ErrUntrackedNode, TagID, idStr))
	}
	return r.Get(ctx, Category(cat), uint(id))
}

// owner returns the entry of this registry that node's tags resolve to,
// or nil when the tags are absent, malformed or point at another element.
// Unlike Lookup it reports nothing.
func (r *Registry) owner(ctx context.Context, node Node) (*TrackedNode, error) {
	typ, okType, err := node.Tag(ctx, TagCategory)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TagCategory, err)
	}
	idStr, okID, err := node.Tag(ctx, TagID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TagID, err)
	}
	if !okType || !okID {
		return nil, nil
	}
	cat, err1 := strconv.ParseUint(typ, 10, 32)
	id, err2 := strconv.ParseUint(idStr, 10, 32)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	list := r.lists[Category(cat)]
	if id >= uint64(len(list)) || list[id].node != node {
		return nil, nil
	}
	return list[id], nil
}

// Categories returns the tracked categories in registration order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of nodes tracked under cat (0 if unknown).
func (r *Registry) Len(cat Category) int { return len(r.lists[cat]) }

// All yields every node, category by category, in identifier order.
func (r *Registry) All() iter.Seq[*TrackedNode] {
	return func(yield func(*TrackedNode) bool) {
		for _, c := range r.order {
			for _, tn := range r.lists[c] {
				if !yield(tn) {
					return
				}
			}
		}
	}
}

func (r *Registry) fail(ctx context.Context, err error) error {
	r.notify.Report(ctx, err)
	return err
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *TrackedNode, ChangeKind) {}
func (nopNotifier) Report(context.Context, error)                   {}
