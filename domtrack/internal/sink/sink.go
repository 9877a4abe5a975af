// Package sink defines the host-side outputs for domtrack wire messages.
package sink

import "context"

// Sink delivers wire messages to the embedding host. Send is called
// synchronously from a page session; implementations must not retry.
type Sink interface {
	Send(ctx context.Context, msg string) error
	Close() error
}

type pageKey struct{}

// WithPageID tags ctx with the page a message originates from.
func WithPageID(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, pageKey{}, pageID)
}

// PageID returns the page id set by WithPageID, or "".
func PageID(ctx context.Context) string {
	v, _ := ctx.Value(pageKey{}).(string)
	return v
}
