package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// PageIDHeader carries the originating page on webhook requests.
const PageIDHeader = "X-Domtrack-Page"

// ErrRateLimited is returned by Send for a message dropped over budget.
var ErrRateLimited = errors.New("webhook: rate limit exceeded")

// Webhook POSTs each message as text/plain to a URL. A message is
// attempted once: a lost message is superseded by the next change.
type Webhook struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookTimeout sets the per-request timeout. Default: 5s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.Timeout = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWebhookRateLimit caps requests per second. Messages over the
// budget are dropped, never queued: Send must not stall the session
// loop. perSecond <= 0 means unlimited.
func WithWebhookRateLimit(perSecond float64, burst int) WebhookOption {
	return func(w *Webhook) {
		if perSecond <= 0 {
			w.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, msg string) error {
	if w.limiter != nil && !w.limiter.Allow() {
		w.logger.Warn("webhook: message dropped", "reason", "rate limit", "page_id", PageID(ctx))
		return ErrRateLimited
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(msg))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if id := PageID(ctx); id != "" {
		req.Header.Set(PageIDHeader, id)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logger.Warn("webhook: bad status", "status", resp.StatusCode, "page_id", PageID(ctx))
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
