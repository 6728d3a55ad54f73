// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig holds the connection settings for [NewRabbitMQClient].
type RabbitMQConfig struct {
	URL           string
	PrefetchCount int
}

// RabbitMQClient wraps a RabbitMQ connection/channel pair.
//
// Queues are durable and messages persistent, so queued mail survives a broker restart.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// amqp channels must not be used for concurrent publishes
	publishMu sync.Mutex
}

var _ Backend = (*RabbitMQClient)(nil)

// NewRabbitMQClient dials the broker and opens a channel.
func NewRabbitMQClient(cfg RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("mq: rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("mq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: channel: %w", err)
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("mq: qos: %w", err)
		}
	}

	return &RabbitMQClient{conn: conn, channel: ch}, nil
}

// Publish sends a persistent JSON message to the named queue.
func (client *RabbitMQClient) Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(queue) == "" {
		return "", errors.New("mq: queue name is required")
	}

	client.publishMu.Lock()
	defer client.publishMu.Unlock()

	if _, err := client.declareQueue(queue); err != nil {
		return "", fmt.Errorf("mq: declare %s: %w", queue, err)
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	messageID := uuid.NewString()
	err := client.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("mq: publish: %w", err)
	}
	return messageID, nil
}

// Subscribe consumes messages from the named queue until ctx is cancelled.
//
// A failed delivery is requeued once; a second failure dead-letters it to
// [DeadLetterQueue] so a poison message cannot spin the worker forever.
func (client *RabbitMQClient) Subscribe(ctx context.Context, queue string, handler Handler) error {
	if strings.TrimSpace(queue) == "" {
		return errors.New("mq: queue name is required")
	}

	if _, err := client.declareQueue(queue); err != nil {
		return fmt.Errorf("mq: declare %s: %w", queue, err)
	}

	consumerTag := "consumer-" + uuid.NewString()
	deliveries, err := client.channel.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("mq: consume: %w", err)
	}
	defer func() {
		_ = client.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("mq: delivery channel closed")
			}
			message := Message{
				ID:          delivery.MessageId,
				Data:        delivery.Body,
				Attributes:  headersToAttributes(delivery.Headers),
				Redelivered: delivery.Redelivered,
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the underlying channel and connection.
func (client *RabbitMQClient) Close() error {
	if client.channel != nil {
		_ = client.channel.Close()
	}
	if client.conn != nil {
		return client.conn.Close()
	}
	return nil
}

// DeadLetterQueue names the queue that collects messages rejected from queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

// queueArguments routes rejected messages through the default exchange to
// the queue's dead-letter queue.
func queueArguments(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(queue),
	}
}

func (client *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	if _, err := client.channel.QueueDeclare(DeadLetterQueue(name), true, false, false, false, nil); err != nil {
		return amqp.Queue{}, err
	}
	return client.channel.QueueDeclare(name, true, false, false, false, queueArguments(name))
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
