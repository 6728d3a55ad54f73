// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package mailtest provides a recording [mail.Sender] for tests.
package mailtest

import (
	"context"
	"sync"

	"github.com/taibuivan/unilink/internal/platform/mail"
)

// Recorder captures every message it is asked to send.
type Recorder struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

var _ mail.Sender = (*Recorder)(nil)

// Send records message, or returns the configured failure.
func (recorder *Recorder) Send(_ context.Context, message mail.Message) error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if recorder.err != nil {
		return recorder.err
	}
	recorder.messages = append(recorder.messages, message)
	return nil
}

// FailWith makes subsequent sends return err. Pass nil to recover.
func (recorder *Recorder) FailWith(err error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.err = err
}

// Messages returns a copy of what was sent so far.
func (recorder *Recorder) Messages() []mail.Message {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]mail.Message(nil), recorder.messages...)
}

// Last returns the most recent message, or false when none was sent.
func (recorder *Recorder) Last() (mail.Message, bool) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if len(recorder.messages) == 0 {
		return mail.Message{}, false
	}
	return recorder.messages[len(recorder.messages)-1], true
}
