package dom

// Rect is a bounding box in page coordinates, as reported by the DOM's
// getClientRects(). Top, Left, Bottom and Right are derived from X, Y,
// Width and Height.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// NewRect builds a Rect from its origin and size, filling the edges.
func NewRect(x, y, width, height float64) Rect {
	return Rect{
		Top:    y,
		Left:   x,
		Bottom: y + height,
		Right:  x + width,
		Width:  width,
		Height: height,
		X:      x,
		Y:      y,
	}
}

// Equal compares size and origin only. The edges are redundant with them.
func (r Rect) Equal(o Rect) bool {
	return r.Width == o.Width && r.Height == o.Height && r.X == o.X && r.Y == o.Y
}

// EqualRects reports whether two geometry snapshots describe the same
// layout. Sizes are checked before origins: a resize is the more common
// change and fails fast.
func EqualRects(a, b []Rect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Width != b[i].Width || a[i].Height != b[i].Height {
			return false
		}
	}
	for i := range a {
		if a[i].X != b[i].X || a[i].Y != b[i].Y {
			return false
		}
	}
	return true
}

// Adjuster maps a page-space Rect to the [top, left, bottom, right] tuple
// sent on the wire.
type Adjuster func(Rect) [4]float64

// PageCoordinates is the default Adjuster: edges are passed through as
// reported by the page. Window offset and device pixel ratio are not
// applied.
func PageCoordinates(r Rect) [4]float64 {
	return [4]float64{r.Top, r.Left, r.Bottom, r.Right}
}

// AdjustRects maps every rect through PageCoordinates.
func AdjustRects(rects []Rect) [][4]float64 {
	return adjustWith(PageCoordinates, rects)
}

func adjustWith(adj Adjuster, rects []Rect) [][4]float64 {
	out := make([][4]float64, len(rects))
	for i, r := range rects {
		out[i] = adj(r)
	}
	return out
}
