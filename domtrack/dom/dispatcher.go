package dom

import (
	"context"
	"log/slog"
)

// Sink receives encoded wire messages. Delivery is fire-and-forget from
// the Dispatcher's point of view: errors are logged, never retried.
type Sink interface {
	Send(ctx context.Context, msg string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg string) error

func (f SinkFunc) Send(ctx context.Context, msg string) error { return f(ctx, msg) }

// Dispatcher encodes change events and hands them to a Sink. It also
// drives the polling tick over a Registry.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	trackFixed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFixedTracking makes Tick also re-read the fixed tag of every node.
func WithFixedTracking(on bool) Option {
	return func(d *Dispatcher) { d.trackFixed = on }
}

// NewDispatcher creates a Dispatcher delivering to s.
func NewDispatcher(s Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{sink: s, logger: slog.Default()}
	if d.sink == nil {
		d.sink = SinkFunc(func(context.Context, string) error { return nil })
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Notify encodes and sends one event. An encoding failure means a node
// escaped the registry invariants: it is logged and nothing is sent.
func (d *Dispatcher) Notify(ctx context.Context, tn *TrackedNode, kind ChangeKind) {
	msg, err := Encode(tn, kind)
	if err != nil {
		d.logger.Error("dom: invariant violated, message dropped", "kind", kind, "error", err)
		return
	}
	d.send(ctx, msg)
}

// Report sends a diagnostic line for a failed lookup.
func (d *Dispatcher) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	d.send(ctx, DiagnosticPrefix+err.Error())
}

// Tick refreshes every node in reg and returns how many changed. Changed
// nodes have already emitted their own message. Nodes whose geometry
// cannot be read are skipped until the next tick.
func (d *Dispatcher) Tick(ctx context.Context, reg *Registry) int {
	changed := 0
	for tn := range reg.All() {
		if ctx.Err() != nil {
			break
		}
		var ok bool
		var err error
		if d.trackFixed {
			ok, err = tn.Update(ctx)
		} else {
			ok, err = tn.RefreshGeometry(ctx)
		}
		if err != nil {
			d.logger.Debug("dom: refresh failed", "category", tn.category, "id", tn.id, "error", err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed
}

func (d *Dispatcher) send(ctx context.Context, msg string) {
	if err := d.sink.Send(ctx, msg); err != nil {
		d.logger.Warn("dom: sink send failed", "error", err)
	}
}
