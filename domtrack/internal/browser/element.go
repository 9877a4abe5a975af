package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/domtrack/domtrack/dom"
)

const clientRectsJS = `() => Array.from(this.getClientRects(), r => ({
	top: r.top, left: r.left, bottom: r.bottom, right: r.right,
	width: r.width, height: r.height, x: r.x, y: r.y,
}))`

// Element is a dom.Node backed by a live Rod element.
type Element struct {
	el *rod.Element
}

// NewElement wraps el.
func NewElement(el *rod.Element) *Element {
	return &Element{el: el}
}

// Rod returns the underlying element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) ClientRects(ctx context.Context) ([]dom.Rect, error) {
	res, err := e.el.Context(ctx).Eval(clientRectsJS)
	if err != nil {
		return nil, fmt.Errorf("browser: getClientRects: %w", err)
	}
	var rects []dom.Rect
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &rects); err != nil {
		return nil, fmt.Errorf("browser: decode client rects: %w", err)
	}
	return rects, nil
}

func (e *Element) Tag(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("browser: get attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) SetTag(ctx context.Context, name, value string) error {
	_, err := e.el.Context(ctx).Eval(`(k, v) => this.setAttribute(k, v)`, name, value)
	if err != nil {
		return fmt.Errorf("browser: set attribute %s: %w", name, err)
	}
	return nil
}

var _ dom.Node = (*Element)(nil)
