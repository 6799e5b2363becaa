// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// WebhookNotifier POSTs alerts as JSON to an arbitrary endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the channel.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify delivers one alert.
func (n *WebhookNotifier) Notify(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return n.post(ctx, n.url, body)
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LockNoticeNotifier POSTs lock notices to a host-application endpoint,
// which owns the actual user contact channel (email, in-app message).
type LockNoticeNotifier struct {
	url    string
	client *http.Client
}

// NewLockNoticeNotifier creates the principal channel.
func NewLockNoticeNotifier(url string, timeout time.Duration) *LockNoticeNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LockNoticeNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the channel.
func (n *LockNoticeNotifier) Name() string { return "lock-notice" }

// NotifyLock delivers one lock notice.
func (n *LockNoticeNotifier) NotifyLock(ctx context.Context, notice *LockNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal lock notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver lock notice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lock notice endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// DiscordNotifier posts alerts as Discord embeds.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a Discord channel.
func NewDiscordNotifier(webhookURL string, timeout time.Duration) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the channel.
func (n *DiscordNotifier) Name() string { return "discord" }

// Discord embed colors per tier.
var discordColors = map[Tier]int{
	TierIPBlock:     0xe74c3c, // red
	TierAccountLock: 0xe67e22, // orange
	TierRateLimit:   0xf1c40f, // yellow
	TierAdminAlert:  0x3498db, // blue
	TierWarn:        0x95a5a6, // grey
}

// Notify delivers one alert as an embed.
func (n *DiscordNotifier) Notify(ctx context.Context, alert *Alert) error {
	type field struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	type embed struct {
		Title     string  `json:"title"`
		Color     int     `json:"color"`
		Fields    []field `json:"fields"`
		Timestamp string  `json:"timestamp"`
	}

	fields := []field{
		{Name: "Identity", Value: alert.IdentityKey, Inline: true},
		{Name: "Score", Value: fmt.Sprintf("%d (%s)", alert.Score, alert.Classification), Inline: true},
		{Name: "Reason", Value: alert.Reason},
	}
	if len(alert.Indicators) > 0 {
		fields = append(fields, field{Name: "Indicators", Value: fmt.Sprintf("%v", alert.Indicators)})
	}

	payload := map[string]any{
		"embeds": []embed{{
			Title:     fmt.Sprintf("Threat response: %s", alert.Tier),
			Color:     discordColors[alert.Tier],
			Fields:    fields,
			Timestamp: alert.Timestamp.Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal embed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned %d", resp.StatusCode)
	}
	return nil
}

// BreakerNotifier wraps a channel with a circuit breaker so a dead
// notification endpoint stops consuming request-path time.
//
// Configuration: 3 concurrent requests in half-open state, 1 minute
// measurement window, 2 minute recovery timeout, opens at a 60% failure
// rate with at least 10 requests.
type BreakerNotifier struct {
	inner Notifier
	cb    *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerNotifier wraps a channel.
func NewBreakerNotifier(inner Notifier) *BreakerNotifier {
	name := "notifier-" + inner.Name()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("channel", inner.Name()).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateString(from)
			toStr := breakerStateString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerNotifier{inner: inner, cb: cb}
}

// Name identifies the wrapped channel.
func (n *BreakerNotifier) Name() string { return n.inner.Name() }

// Notify delivers one alert through the breaker.
func (n *BreakerNotifier) Notify(ctx context.Context, alert *Alert) error {
	name := "notifier-" + n.inner.Name()

	_, err := n.cb.Execute(func() (struct{}, error) {
		return struct{}{}, n.inner.Notify(ctx, alert)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		}
		return err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	return nil
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
