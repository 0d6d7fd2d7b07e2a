package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// NotificationPayload is the expected payload for a notification job.
type NotificationPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// NotificationResult is the result record persisted on success.
type NotificationResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// NotificationHandler implements the notification job type.
type NotificationHandler struct {
	Sink NotificationSink
}

func NewNotificationHandler(sink NotificationSink) *NotificationHandler {
	return &NotificationHandler{Sink: sink}
}

func (h *NotificationHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	var payload NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.Message == "" {
		return nil, fmt.Errorf("notification: %w: message is required", ErrInvalidPayload)
	}
	if payload.Severity == "" {
		payload.Severity = "info"
	}

	if h.Sink == nil || !h.Sink.Enabled() {
		return json.Marshal(NotificationResult{Status: "skipped", Reason: "slack_not_configured"})
	}

	sent, err := h.Sink.SendAlert(ctx, payload.Title, payload.Message, payload.Severity)
	if err != nil {
		return nil, fmt.Errorf("notification: send alert: %w", err)
	}
	if !sent {
		return json.Marshal(NotificationResult{Status: "skipped", Reason: "sink_declined"})
	}

	return json.Marshal(NotificationResult{Status: "sent"})
}
