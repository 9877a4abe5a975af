package sink

import "context"

// Func is called for each message.
type Func func(ctx context.Context, msg string) error

// Callback delivers messages via a Go function call, for hosts embedding
// domtrack in the same binary.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, msg string) error {
	if c.fn != nil {
		return c.fn(ctx, msg)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
