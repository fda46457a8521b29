// Package broker fans published envelopes out to filtered subscribers,
// either by direct invocation or through a durable queue.
package broker

import (
	"context"
	"time"
)

// Message is one copy of a published envelope. Body is never inspected
// here; routing only looks at Attributes.
type Message struct {
	ID          string
	Body        []byte
	Attributes  map[string]string
	PublishedAt time.Time
}

func (m Message) clone() Message {
	body := make([]byte, len(m.Body))
	copy(body, m.Body)
	attrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	return Message{ID: m.ID, Body: body, Attributes: attrs, PublishedAt: m.PublishedAt}
}

// Handler processes a single message delivered in direct mode.
type Handler func(ctx context.Context, msg Message) error

// BatchHandler processes a batch drained from a queue. A non-nil error
// fails the whole batch.
type BatchHandler func(ctx context.Context, msgs []Message) error
