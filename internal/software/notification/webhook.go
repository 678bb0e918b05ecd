package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ride-settlement/internal/general/gateway"
)

// ErrWebhook is a non-2xx answer from a webhook.
var ErrWebhook = errors.New("webhook rejected notification")

// ErrNoWebhooks is returned when there is nowhere to deliver to; such notifications
// exhaust their retries and land on the failed exchange.
var ErrNoWebhooks = errors.New("no webhooks configured")

// Deliverer sends one notification to its destinations.
type Deliverer interface {
	Deliver(ctx context.Context, env Envelope) error
}

// WebhookDeliverer POSTs the notification body to every configured URL. The delivery
// fails if any URL fails; receivers deduplicate on X-Message-Id.
type WebhookDeliverer struct {
	urls   []string
	client *http.Client
}

// NewWebhookDeliverer creates a deliverer with the given per-request timeout.
func NewWebhookDeliverer(urls []string, timeout time.Duration) *WebhookDeliverer {
	return &WebhookDeliverer{urls: append([]string(nil), urls...), client: gateway.NewHTTPClient(timeout)}
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, env Envelope) error {
	if len(w.urls) == 0 {
		return ErrNoWebhooks
	}
	var errs []error
	for _, url := range w.urls {
		if err := w.post(ctx, url, env); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WebhookDeliverer) post(ctx context.Context, url string, env Envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(env.Payload()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-Id", env.MessageID())
	req.Header.Set("X-Event", env.OriginalRoutingKey())
	req.Header.Set("X-Attempt", strconv.Itoa(env.Attempt()))

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhook, resp.StatusCode)
	}
	return nil
}
