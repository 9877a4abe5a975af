package domtrack

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/domtrack/domtrack/internal/sink"
)

// Sink is the output interface for wire messages.
type Sink = sink.Sink

// Journal is the SQLite message journal.
type Journal = sink.Journal

// JournalEntry is one journal row.
type JournalEntry = sink.Entry

// NewStdoutSink creates a sink writing one message per line.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink. Delivery is attempted once.
// perSecond > 0 caps the request rate.
func NewWebhookSink(url string, perSecond float64, burst int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url,
		sink.WithWebhookLogger(logger),
		sink.WithWebhookRateLimit(perSecond, burst),
	)
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, msg string) error) Sink {
	return sink.NewCallback(fn)
}

// OpenJournal opens the SQLite journal at path.
func OpenJournal(path string) (*Journal, error) {
	return sink.OpenJournal(path)
}

// WithPageID tags ctx with the page messages originate from.
func WithPageID(ctx context.Context, pageID string) context.Context {
	return sink.WithPageID(ctx, pageID)
}

// BuildSinks creates the sinks listed in cfg. The journal, if any, is also
// returned so its history can be served. With no sinks configured, stdout
// is used.
func BuildSinks(cfg *Config, logger *slog.Logger) ([]Sink, *Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		sinks   []Sink
		journal *Journal
	)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.RateLimit, sc.Burst, logger))
		case "journal":
			if journal != nil {
				return nil, nil, fmt.Errorf("domtrack: only one journal sink is supported")
			}
			j, err := OpenJournal(sc.Path)
			if err != nil {
				for _, s := range sinks {
					s.Close()
				}
				return nil, nil, fmt.Errorf("domtrack: open journal: %w", err)
			}
			journal = j
			sinks = append(sinks, j)
		default:
			logger.Warn("domtrack: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, NewStdoutSink(nil))
	}
	return sinks, journal, nil
}
