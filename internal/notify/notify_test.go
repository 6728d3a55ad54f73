// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/notify"
	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/mail"
	"github.com/taibuivan/unilink/internal/platform/mail/mailtest"
	"github.com/taibuivan/unilink/internal/platform/mq"
	"github.com/taibuivan/unilink/internal/users/auth"
)

var smtpSettings = mail.Settings{Host: "smtp.example.com", Port: 587, Username: "mailer", Password: "s3cret", From: "no-reply@example.com"}

/*
TestTransportStatus verifies mode selection and that no values leak.
*/
func TestTransportStatus(t *testing.T) {
	tests := []struct {
		name     string
		settings mail.Settings
		queued   bool
		mode     string
	}{
		{"smtp", smtpSettings, false, notify.ModeSMTP},
		{"queue", smtpSettings, true, notify.ModeQueue},
		{"missing host", mail.Settings{From: "no-reply@example.com"}, true, notify.ModeDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := notify.NewTransportStatus(tt.settings, tt.queued)
			assert.Equal(t, tt.mode, status.Mode)

			encoded, err := json.Marshal(status)
			require.NoError(t, err)
			assert.NotContains(t, string(encoded), "s3cret")
			assert.NotContains(t, string(encoded), "smtp.example.com")
		})
	}
}

/*
TestDispatcher_SendPasswordReset verifies the link format and recipient.
*/
func TestDispatcher_SendPasswordReset(t *testing.T) {
	recorder := &mailtest.Recorder{}
	dispatcher := notify.NewDispatcher(recorder, "https://app.example.com/", notify.NewTransportStatus(smtpSettings, false))

	user := &auth.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	token := "abc+/=def"

	err := dispatcher.SendPasswordReset(context.Background(), user, token, time.Now().Add(30*time.Minute))
	require.NoError(t, err)

	message, ok := recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", message.To)
	assert.Contains(t, message.Body, "Hello alice")

	link := "https://app.example.com/reset-password?token=" + url.QueryEscape(token)
	assert.Contains(t, message.Body, link)
	assert.Equal(t, link, dispatcher.ResetLink(token))
}

/*
TestDispatcher_SendPasswordResetFailure verifies transport errors are passed through.
*/
func TestDispatcher_SendPasswordResetFailure(t *testing.T) {
	recorder := &mailtest.Recorder{}
	recorder.FailWith(apperr.TransportFailure("Mail delivery failed", errors.New("dial tcp: refused")))
	dispatcher := notify.NewDispatcher(recorder, "https://app.example.com", notify.TransportStatus{})

	err := dispatcher.SendPasswordReset(context.Background(), &auth.User{Email: "alice@example.com"}, "t", time.Now())
	assert.True(t, apperr.HasCode(err, "TRANSPORT_FAILURE"))
}

/*
TestDispatcher_SendTest verifies recipient validation.
*/
func TestDispatcher_SendTest(t *testing.T) {
	recorder := &mailtest.Recorder{}
	dispatcher := notify.NewDispatcher(recorder, "https://app.example.com", notify.NewTransportStatus(smtpSettings, false))

	err := dispatcher.SendTest(context.Background(), "not-an-email")
	assert.True(t, apperr.HasCode(err, "VALIDATION_ERROR"))
	assert.Empty(t, recorder.Messages())

	require.NoError(t, dispatcher.SendTest(context.Background(), " ops@example.com "))
	message, _ := recorder.Last()
	assert.Equal(t, "ops@example.com", message.To)
	assert.Contains(t, message.Body, "smtp transport")
}

/*
TestDisabledSender verifies the disabled transport error.
*/
func TestDisabledSender(t *testing.T) {
	err := notify.DisabledSender{}.Send(context.Background(), mail.Message{To: "a@example.com"})
	assert.ErrorIs(t, err, mail.ErrNotConfigured)
}

// # Queue

type fakeBroker struct {
	published [][]byte
	err       error
	deliver   []mq.Message
}

func (broker *fakeBroker) Publish(_ context.Context, queue string, data []byte, _ map[string]string) (string, error) {
	if broker.err != nil {
		return "", broker.err
	}
	broker.published = append(broker.published, data)
	return "msg-1", nil
}

func (broker *fakeBroker) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for _, message := range broker.deliver {
		_ = handler(ctx, message)
	}
	return context.Canceled
}

/*
TestQueueMailer_RoundTrip verifies that the worker delivers what the mailer queued.
*/
func TestQueueMailer_RoundTrip(t *testing.T) {
	broker := &fakeBroker{}
	mailer := notify.NewQueueMailer(broker, "mail.outbound")

	require.NoError(t, mailer.Send(context.Background(), mail.Message{To: "alice@example.com", Subject: "Hi", Body: "Body"}))
	require.Len(t, broker.published, 1)

	broker.deliver = []mq.Message{
		{ID: "1", Data: broker.published[0]},
		{ID: "2", Data: []byte("{not json")},
	}

	recorder := &mailtest.Recorder{}
	worker := notify.NewWorker(broker, "mail.outbound", recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, worker.Run(context.Background()))

	messages := recorder.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "alice@example.com", messages[0].To)
}

/*
TestQueueMailer_BrokerDown verifies a publish failure is a transport failure.
*/
func TestQueueMailer_BrokerDown(t *testing.T) {
	mailer := notify.NewQueueMailer(&fakeBroker{err: errors.New("connection reset")}, "mail.outbound")

	err := mailer.Send(context.Background(), mail.Message{To: "alice@example.com"})
	require.True(t, apperr.HasCode(err, "TRANSPORT_FAILURE"))
	assert.False(t, strings.Contains(apperr.As(err).Message, "connection reset"))
}

/*
TestWorker_HandleRetry verifies that delivery failures are returned for redelivery.
*/
func TestWorker_HandleRetry(t *testing.T) {
	recorder := &mailtest.Recorder{}
	recorder.FailWith(errors.New("relay down"))
	worker := notify.NewWorker(&fakeBroker{}, "q", recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload, err := json.Marshal(mail.Message{To: "alice@example.com"})
	require.NoError(t, err)

	assert.Error(t, worker.Handle(context.Background(), mq.Message{ID: "1", Data: payload}))
}

/*
TestWorker_HandleFinalFailure verifies that a failed redelivery is logged at
error level before the broker dead-letters it.
*/
func TestWorker_HandleFinalFailure(t *testing.T) {
	recorder := &mailtest.Recorder{}
	recorder.FailWith(errors.New("relay down"))

	var logs strings.Builder
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError}))
	worker := notify.NewWorker(&fakeBroker{}, "mail.outbound", recorder, logger)

	payload, err := json.Marshal(mail.Message{To: "alice@example.com"})
	require.NoError(t, err)

	require.Error(t, worker.Handle(context.Background(), mq.Message{ID: "1", Data: payload}))
	assert.Empty(t, logs.String())

	require.Error(t, worker.Handle(context.Background(), mq.Message{ID: "1", Data: payload, Redelivered: true}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs.String()), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "mail_worker_dead_lettered", entry["msg"])
	assert.Equal(t, "mail.outbound", entry["queue"])
}
