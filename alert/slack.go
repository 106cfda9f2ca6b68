// Package alert fires best-effort external notifications for arbitrage
// events. It reuses go-resty/resty rather than a hand-rolled Slack RTM
// client, since a webhook POST is all a one-shot arbitrage ping needs.
package alert

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/wdg3/prism/multibook"
)

// SlackNotifier posts a compact arbitrage summary to a Slack incoming
// webhook URL. It is safe for concurrent use.
type SlackNotifier struct {
	client     *resty.Client
	webhookURL string
}

// NewSlackNotifier returns a notifier posting to webhookURL. An empty
// webhookURL disables Notify (it becomes a no-op), so callers can wire
// this unconditionally and let configuration decide whether it fires.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		client:     resty.New(),
		webhookURL: webhookURL,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Notify posts a one-line summary of e to the configured webhook. Errors
// are returned, not panicked: a failed notification is diagnostic
// plumbing, not a condition that should ever take down ingestion.
func (n *SlackNotifier) Notify(ctx context.Context, e multibook.ArbitrageEvent) error {
	if n.webhookURL == "" {
		return nil
	}
	text := fmt.Sprintf(
		"arbitrage #%d on %s: spread idx %d raw=%d pct=%.4f%% (best seen %.4f%%)",
		e.ArbCount, e.Pair, e.SpreadIdx, e.Spread.Raw, e.Spread.Percentage*100, e.BestSeenPct*100,
	)
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(slackPayload{Text: text}).
		Post(n.webhookURL)
	if err != nil {
		return fmt.Errorf("alert: post to slack webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert: slack webhook returned %s", resp.Status())
	}
	return nil
}
