// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/mail"
	"github.com/taibuivan/unilink/internal/platform/mq"
)

// # Queue-backed Sender

// QueueMailer is a [mail.Sender] that defers delivery to the mail worker.
//
// A successful Send only means the broker accepted the message.
type QueueMailer struct {
	publisher mq.Publisher
	queue     string
}

var _ mail.Sender = (*QueueMailer)(nil)

// NewQueueMailer publishes outbound mail onto queue.
func NewQueueMailer(publisher mq.Publisher, queue string) *QueueMailer {
	return &QueueMailer{publisher: publisher, queue: queue}
}

// Send serializes message and publishes it.
func (mailer *QueueMailer) Send(ctx context.Context, message mail.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("notify_queue_marshal_failed: %w", err)
	}

	if _, err := mailer.publisher.Publish(ctx, mailer.queue, payload, map[string]string{"kind": "mail"}); err != nil {
		return apperr.TransportFailure("Mail queue is unavailable", err)
	}
	return nil
}

// # Worker

// Subscriber consumes a queue until its context ends.
type Subscriber interface {
	Subscribe(ctx context.Context, queue string, handler mq.Handler) error
}

// Worker drains the mail queue into an SMTP [mail.Sender].
type Worker struct {
	subscriber Subscriber
	queue      string
	sender     mail.Sender
	logger     *slog.Logger
}

// NewWorker creates a [Worker].
func NewWorker(subscriber Subscriber, queue string, sender mail.Sender, logger *slog.Logger) *Worker {
	return &Worker{subscriber: subscriber, queue: queue, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (worker *Worker) Run(ctx context.Context) error {
	worker.logger.Info("mail_worker_started", slog.String("queue", worker.queue))

	err := worker.subscriber.Subscribe(ctx, worker.queue, worker.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mail_worker_subscribe_failed: %w", err)
	}

	worker.logger.Info("mail_worker_stopped")
	return nil
}

/*
Handle delivers one queued message.

Description: Undecodable payloads are dropped, since retrying cannot fix them.
Delivery failures are returned so the broker redelivers the message once; a
failed redelivery is logged at error level as the broker then dead-letters it.
*/
func (worker *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var message mail.Message
	if err := json.Unmarshal(msg.Data, &message); err != nil || message.To == "" {
		worker.logger.Error("mail_worker_dropped_invalid_message", slog.String("message_id", msg.ID))
		return nil
	}

	if err := worker.sender.Send(ctx, message); err != nil {
		if msg.Redelivered {
			worker.logger.Error("mail_worker_dead_lettered",
				slog.String("message_id", msg.ID),
				slog.String("queue", worker.queue),
				slog.String("error", err.Error()),
			)
			return err
		}
		worker.logger.Warn("mail_worker_delivery_failed",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	worker.logger.Info("mail_worker_delivered", slog.String("message_id", msg.ID))
	return nil
}
