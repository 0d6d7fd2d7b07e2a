// Package notify sends Slack alerts for remediation events, zombie-scan
// completions, and dead-lettered jobs. Grounded on wisbric-nightowl's
// pkg/slack/notifier.go, narrowed from its full interactive-alert surface
// (acknowledge/escalate buttons, modals, DMs) down to the single best-effort
// SendAlert this job system needs (SPEC_FULL.md §4.6, §9).
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts severity-colored alerts to a configured Slack channel. A
// Notifier with an empty bot token is a no-op (Enabled reports false and
// SendAlert is skipped), matching §6's "otherwise logs only" config note.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New builds a Notifier. If botToken is empty the notifier is disabled.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Enabled reports whether the notifier has a usable client and channel.
func (n *Notifier) Enabled() bool {
	return n.client != nil && n.channel != ""
}

// SendAlert posts a severity-prefixed message to the configured channel.
// Returns (false, nil) when disabled rather than an error, since the
// handler.NotificationSink contract treats "not configured" as a skip, not
// a failure (§4.6 step 9).
func (n *Notifier) SendAlert(ctx context.Context, title, message, severity string) (bool, error) {
	if !n.Enabled() {
		n.logger.DebugContext(ctx, "slack notifier disabled, skipping alert", "title", title)
		return false, nil
	}

	text := fmt.Sprintf("%s *%s*\n%s", emoji(severity), title, message)
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		return false, fmt.Errorf("notify: post alert: %w", err)
	}
	return true, nil
}

func emoji(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	default:
		return "🔵"
	}
}
