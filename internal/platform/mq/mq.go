// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package mq provides a broker-agnostic queue abstraction with a RabbitMQ backend.
package mq

import "context"

// Message represents a payload delivered to subscribers.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	Redelivered bool
}

// Handler processes a message. Return an error to signal a retry.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes payloads onto a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error)
}

// Backend defines the broker operations used by the app.
type Backend interface {
	Publisher
	Subscribe(ctx context.Context, queue string, handler Handler) error
	Close() error
}
