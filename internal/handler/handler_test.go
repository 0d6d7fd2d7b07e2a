package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

func TestRegistry_ResolveUnregisteredType_ReturnsErrUnknownHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Resolve(jobstore.TypeDunning)
	require.ErrorIs(t, err, ErrUnknownHandler)
}

func TestRegistry_ResolveRegisteredType_ReturnsTheSameHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h := HandlerFunc(func(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
		return nil, nil
	})
	r.Register(jobstore.TypeNotification, h)

	got, err := r.Resolve(jobstore.TypeNotification)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestIsConfigError_MatchesInvalidPayloadOnly(t *testing.T) {
	t.Parallel()

	require.True(t, IsConfigError(ErrInvalidPayload))
	// A message that merely mentions ErrInvalidPayload's text without
	// wrapping it via %w must not match errors.Is.
	require.False(t, IsConfigError(errors.New("wrapped: "+ErrInvalidPayload.Error())))
	require.False(t, IsConfigError(errors.New("some transient error")))
}

type fakeSink struct {
	enabled bool
	sent    bool
	err     error
}

func (f fakeSink) Enabled() bool { return f.enabled }

func (f fakeSink) SendAlert(ctx context.Context, title, message, severity string) (bool, error) {
	return f.sent, f.err
}

func TestNotificationHandler_RejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	h := NewNotificationHandler(nil)
	job := jobstore.Job{Payload: json.RawMessage(`{"title":"x"}`)}

	_, err := h.Execute(context.Background(), job, nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNotificationHandler_SkipsWhenSinkDisabled(t *testing.T) {
	t.Parallel()

	h := NewNotificationHandler(fakeSink{enabled: false})
	job := jobstore.Job{Payload: json.RawMessage(`{"message":"hello"}`)}

	out, err := h.Execute(context.Background(), job, nil)
	require.NoError(t, err)

	var result NotificationResult
	require.NoError(t, json.Unmarshal(out, &result))
	require.Equal(t, "skipped", result.Status)
	require.Equal(t, "slack_not_configured", result.Reason)
}

func TestNotificationHandler_SkipsWhenSinkDeclines(t *testing.T) {
	t.Parallel()

	h := NewNotificationHandler(fakeSink{enabled: true, sent: false})
	job := jobstore.Job{Payload: json.RawMessage(`{"message":"hello"}`)}

	out, err := h.Execute(context.Background(), job, nil)
	require.NoError(t, err)

	var result NotificationResult
	require.NoError(t, json.Unmarshal(out, &result))
	require.Equal(t, "skipped", result.Status)
	require.Equal(t, "sink_declined", result.Reason)
}

func TestNotificationHandler_DefaultsSeverityToInfo(t *testing.T) {
	t.Parallel()

	var gotSeverity string
	h := NewNotificationHandler(recordingSink{onSend: func(title, message, severity string) {
		gotSeverity = severity
	}})
	job := jobstore.Job{Payload: json.RawMessage(`{"message":"hello"}`)}

	_, err := h.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	require.Equal(t, "info", gotSeverity)
}

type recordingSink struct {
	onSend func(title, message, severity string)
}

func (r recordingSink) Enabled() bool { return true }

func (r recordingSink) SendAlert(ctx context.Context, title, message, severity string) (bool, error) {
	r.onSend(title, message, severity)
	return true, nil
}

func TestBillingHandler_RejectsMissingSubscriptionID(t *testing.T) {
	t.Parallel()

	h := NewBillingHandler(nil)
	job := jobstore.Job{Payload: json.RawMessage(`{}`)}

	_, err := h.Execute(context.Background(), job, nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBillingHandler_RejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	h := NewBillingHandler(nil)
	job := jobstore.Job{Payload: json.RawMessage(`not json`)}

	_, err := h.Execute(context.Background(), job, nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
}
