// Package notify dispatches rule actions: webhook alerts and remote
// remediation scripts. Outbound webhook calls are guarded by a
// per-URL sliding-window rate limiter.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/metrics"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

const webhookTimeout = 10 * time.Second

// Notifier posts a formatted alert to a webhook URL, shaping the JSON
// payload per the target's flavor.
type Notifier struct {
	client  *http.Client
	limiter *RateLimiter
	log     *logrus.Entry
}

// New builds a Notifier. limiter may be nil to disable rate limiting.
func New(limiter *RateLimiter, log *logrus.Entry) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: webhookTimeout},
		limiter: limiter,
		log:     log,
	}
}

// Send posts text to url, shaped for flavor, and reports whether the
// webhook accepted it (HTTP 200 or 204).
func (n *Notifier) Send(ctx context.Context, url, text, flavor string) (bool, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx, url); err != nil {
			return false, err
		}
	}

	payload := payloadFor(flavor, text)
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("%w: marshal webhook payload: %v", sentinelerr.ErrNotifier, err)
	}

	start := time.Now()
	defer func() { metrics.WebhookDuration.WithLabelValues(flavor).Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: build webhook request: %v", sentinelerr.ErrNotifier, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: webhook request to %s: %v", sentinelerr.ErrNotifier, url, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
	if ok {
		n.log.WithField("flavor", flavor).Info("webhook sent")
	} else {
		n.log.WithField("status", resp.StatusCode).Warn("webhook rejected")
	}
	return ok, nil
}

// payloadFor shapes the JSON body for the target's webhook dialect.
func payloadFor(flavor, text string) map[string]string {
	switch flavor {
	case "discord":
		return map[string]string{
			"content":  text,
			"username": "Headless Sentinel",
		}
	case "slack":
		return map[string]string{
			"text":       text,
			"username":   "Headless Sentinel",
			"icon_emoji": ":shield:",
		}
	default:
		return map[string]string{
			"message": text,
			"source":  "Headless Sentinel",
		}
	}
}
