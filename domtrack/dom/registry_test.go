package dom

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestCreate_SequentialIdentifiers(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()

	const n = 5
	for i := 0; i < n; i++ {
		node := newFakeNode(NewRect(float64(i), 0, 10, 10))
		tn, err := reg.Create(ctx, node, Link)
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		if tn.ID() != uint(i) {
			t.Errorf("Create #%d: id %d", i, tn.ID())
		}
		if node.tags[TagCategory] != "1" || node.tags[TagID] != itoa(i) {
			t.Errorf("Create #%d: tags %v", i, node.tags)
		}
	}

	list, err := reg.List(ctx, Link)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != n {
		t.Fatalf("List: got %d nodes, want %d", len(list), n)
	}
	for i, tn := range list {
		if tn.ID() != uint(i) {
			t.Errorf("List[%d]: id %d", i, tn.ID())
		}
	}
	if reg.Len(TextInput) != 0 {
		t.Errorf("Len(TextInput): got %d, want 0", reg.Len(TextInput))
	}
	if len(rec.msgs) != n {
		t.Errorf("messages: got %d, want %d added", len(rec.msgs), n)
	}
}

func TestCreate_CategoriesAreIndependent(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()

	a, _ := reg.Create(ctx, newFakeNode(), TextInput)
	b, _ := reg.Create(ctx, newFakeNode(), Link)
	c, _ := reg.Create(ctx, newFakeNode(), TextInput)

	if a.ID() != 0 || b.ID() != 0 || c.ID() != 1 {
		t.Errorf("ids: got %d %d %d, want 0 0 1", a.ID(), b.ID(), c.ID())
	}
	want := []string{"DOM#add#0#0#", "DOM#add#1#0#", "DOM#add#0#1#"}
	if strings.Join(rec.msgs, " ") != strings.Join(want, " ") {
		t.Errorf("messages: got %v, want %v", rec.msgs, want)
	}
}

func TestCreate_UnknownCategory(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 1, 1))

	_, err := reg.Create(ctx, node, Category(7))
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("Create: got %v, want ErrUnknownCategory", err)
	}
	if len(node.tags) != 0 {
		t.Errorf("node tagged despite failure: %v", node.tags)
	}
	if node.fetches != 0 {
		t.Errorf("geometry fetched despite unknown category")
	}
	if len(rec.msgs) != 1 || !strings.HasPrefix(rec.msgs[0], DiagnosticPrefix) {
		t.Errorf("diagnostic: got %v", rec.msgs)
	}
}

func TestCreate_FetchFailureRegistersNothing(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode()
	node.fetchErr = errDetached

	if _, err := reg.Create(ctx, node, TextInput); !errors.Is(err, errDetached) {
		t.Fatalf("Create: got %v, want errDetached", err)
	}
	if reg.Len(TextInput) != 0 || len(rec.msgs) != 0 || len(node.tags) != 0 {
		t.Errorf("partial state: len=%d msgs=%v tags=%v", reg.Len(TextInput), rec.msgs, node.tags)
	}

	// The failed attempt must not burn an identifier.
	tn, err := reg.Create(ctx, newFakeNode(), TextInput)
	if err != nil || tn.ID() != 0 {
		t.Errorf("next Create: got id=%v err=%v, want id=0", tn, err)
	}
}

func TestCreate_TagFailureRegistersNothing(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode()
	node.tagErr = errors.New("read-only document")

	if _, err := reg.Create(ctx, node, Link); err == nil {
		t.Fatal("Create: expected error")
	}
	if reg.Len(Link) != 0 || len(rec.msgs) != 0 {
		t.Errorf("partial state: len=%d msgs=%v", reg.Len(Link), rec.msgs)
	}
}

func TestCreate_PartialTagReadsUntracked(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	node := newFakeNode(NewRect(0, 0, 4, 4))
	node.tagErr = errors.New("attribute quota")
	node.failTag = TagCategory

	if _, err := reg.Create(ctx, node, Link); err == nil {
		t.Fatal("Create: expected error")
	}
	if _, ok := node.tags[TagCategory]; ok {
		t.Errorf("category tag written before failure: %v", node.tags)
	}
	if reg.Len(Link) != 0 || len(rec.msgs) != 0 {
		t.Errorf("partial state: len=%d msgs=%v", reg.Len(Link), rec.msgs)
	}
	if _, err := reg.Lookup(ctx, node); !errors.Is(err, ErrUntrackedNode) {
		t.Errorf("Lookup(half tagged): got %v, want ErrUntrackedNode", err)
	}
	rec.reset()

	// Once tagging works again the node registers normally.
	node.tagErr = nil
	tn, err := reg.Create(ctx, node, Link)
	if err != nil {
		t.Fatalf("retry Create: %v", err)
	}
	if tn.ID() != 0 || node.tags[TagCategory] != "1" || node.tags[TagID] != "0" {
		t.Errorf("retry: id=%d tags=%v", tn.ID(), node.tags)
	}
	if len(rec.msgs) != 1 || rec.msgs[0] != "DOM#add#1#0#" {
		t.Errorf("messages: got %v", rec.msgs)
	}
}

func TestCreate_AlreadyTracked(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	reg.Create(ctx, newFakeNode(), TextInput)
	node := newFakeNode(NewRect(0, 0, 10, 10))
	first, err := reg.Create(ctx, node, TextInput)
	if err != nil {
		t.Fatal(err)
	}
	rec.reset()

	for _, cat := range []Category{TextInput, Link} {
		again, err := reg.Create(ctx, node, cat)
		if !errors.Is(err, ErrAlreadyTracked) {
			t.Fatalf("Create(%v) again: got %v, want ErrAlreadyTracked", cat, err)
		}
		if again != first {
			t.Errorf("Create(%v) again: returned a different entry", cat)
		}
	}
	if reg.Len(TextInput) != 2 || reg.Len(Link) != 0 {
		t.Errorf("lengths: text=%d link=%d, want 2 and 0", reg.Len(TextInput), reg.Len(Link))
	}
	if node.tags[TagCategory] != "0" || node.tags[TagID] != "1" {
		t.Errorf("tags rewritten: %v", node.tags)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("messages: got %v, want two diagnostics", rec.msgs)
	}
	for _, m := range rec.msgs {
		if !strings.HasPrefix(m, DiagnosticPrefix) {
			t.Errorf("non-diagnostic message: %q", m)
		}
	}
	rec.reset()

	// A single move still produces a single update.
	node.rects = []Rect{NewRect(5, 5, 10, 10)}
	for tn := range reg.All() {
		tn.RefreshGeometry(ctx)
	}
	if len(rec.msgs) != 1 || !strings.HasPrefix(rec.msgs[0], "DOM#upd#0#1#1#[") {
		t.Errorf("updates after move: got %v", rec.msgs)
	}
}

func TestCreate_ForeignTagsAreReplaced(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()

	// Tags left by an earlier registry do not point at a node here.
	node := newFakeNode()
	node.tags[TagCategory] = "1"
	node.tags[TagID] = "0"
	other := newFakeNode()
	reg.Create(ctx, other, Link)
	rec.reset()

	tn, err := reg.Create(ctx, node, Link)
	if err != nil {
		t.Fatal(err)
	}
	if tn.ID() != 1 || node.tags[TagID] != "1" {
		t.Errorf("got id=%d tags=%v, want id 1", tn.ID(), node.tags)
	}
	if len(rec.msgs) != 1 || rec.msgs[0] != "DOM#add#1#1#" {
		t.Errorf("messages: got %v", rec.msgs)
	}
}

func TestGet_Bounds(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()
	for i := 0; i < 3; i++ {
		reg.Create(ctx, newFakeNode(), TextInput)
	}
	rec.reset()

	if tn, err := reg.Get(ctx, TextInput, 2); err != nil || tn.ID() != 2 {
		t.Errorf("Get(len-1): got %v, %v", tn, err)
	}
	for _, id := range []uint{3, 4} {
		if _, err := reg.Get(ctx, TextInput, id); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Get(%d): got %v, want ErrIndexOutOfRange", id, err)
		}
	}
	if _, err := reg.Get(ctx, Category(42), 0); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("Get(unknown): got %v, want ErrUnknownCategory", err)
	}

	if len(rec.msgs) != 3 {
		t.Fatalf("diagnostics: got %d, want 3", len(rec.msgs))
	}
	if !strings.Contains(rec.msgs[0], "id=3") || !strings.Contains(rec.msgs[0], "type=0") {
		t.Errorf("diagnostic text: %q", rec.msgs[0])
	}
}

func TestList_UnknownCategory(t *testing.T) {
	reg, _, _ := newTestRegistry(TextInput)
	if _, err := reg.List(context.Background(), Link); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("List(Link) on text-only registry: got %v", err)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry()

	reg.Create(ctx, newFakeNode(), Link)
	node := newFakeNode(NewRect(1, 1, 1, 1))
	want, _ := reg.Create(ctx, node, Link)
	rec.reset()

	got, err := reg.Lookup(ctx, node)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Lookup: got %v/%d, want %v/%d", got.Category(), got.ID(), want.Category(), want.ID())
	}

	stranger := newFakeNode()
	if _, err := reg.Lookup(ctx, stranger); !errors.Is(err, ErrUntrackedNode) {
		t.Errorf("Lookup(untracked): got %v, want ErrUntrackedNode", err)
	}

	half := newFakeNode()
	half.tags[TagID] = "0"
	if _, err := reg.Lookup(ctx, half); !errors.Is(err, ErrUntrackedNode) {
		t.Errorf("Lookup(id tag only): got %v, want ErrUntrackedNode", err)
	}

	forged := newFakeNode()
	forged.tags[TagCategory] = "1"
	forged.tags[TagID] = "9"
	if _, err := reg.Lookup(ctx, forged); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Lookup(forged id): got %v, want ErrIndexOutOfRange", err)
	}

	for _, m := range rec.msgs {
		if !strings.HasPrefix(m, DiagnosticPrefix) {
			t.Errorf("non-diagnostic message on failed lookup: %q", m)
		}
	}
}

func TestAll_Order(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(Link, TextInput)
	reg.Create(ctx, newFakeNode(), TextInput)
	reg.Create(ctx, newFakeNode(), Link)
	reg.Create(ctx, newFakeNode(), Link)

	var got []string
	for tn := range reg.All() {
		got = append(got, tn.Category().String()+"/"+itoa(int(tn.ID())))
	}
	want := "link/0 link/1 text_input/0"
	if strings.Join(got, " ") != want {
		t.Errorf("All: got %v, want %s", got, want)
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
