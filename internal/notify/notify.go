/*
Copyright © 2025 Docker, Inc.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package notify announces pushed images on NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when none is configured.
const DefaultSubject = "image-pipeline.pushed"

// ImagePushed is published once per successful push.
type ImagePushed struct {
	RunID       string    `json:"run_id"`
	Environment string    `json:"environment"`
	Commit      string    `json:"commit"`
	Images      []string  `json:"images"`
	Digest      string    `json:"digest"`
	PushedAt    time.Time `json:"pushed_at"`
}

// Publisher sends raw payloads to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier serializes events and hands them to a Publisher.
type Notifier struct {
	publisher Publisher
	subject   string
	close     func()
}

// Connect dials url and returns a notifier publishing on subject.
func Connect(url, subject string) (*Notifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("image-pipeline"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	n := New(nc, subject)
	n.close = func() {
		_ = nc.Drain()
	}
	return n, nil
}

// New wraps an existing publisher.
func New(publisher Publisher, subject string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{publisher: publisher, subject: subject}
}

// Subject is where events are published.
func (n *Notifier) Subject() string {
	return n.subject
}

// Notify publishes event. The context only bounds the wait for a flush when
// the publisher supports it.
func (n *Notifier) Notify(ctx context.Context, event ImagePushed) error {
	if len(event.Images) == 0 {
		return errors.New("event has no images")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.subject, err)
	}
	if flusher, ok := n.publisher.(interface {
		FlushWithContext(context.Context) error
	}); ok {
		if err := flusher.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flushing %s: %w", n.subject, err)
		}
	}
	return nil
}

// Close drains the underlying connection if Connect opened it.
func (n *Notifier) Close() {
	if n.close != nil {
		n.close()
	}
}
