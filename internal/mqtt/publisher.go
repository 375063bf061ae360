package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/provenance/internal/stream"
)

// TokenPublisher is the part of the Paho client the publisher needs.
type TokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "provenance"

// payload is the JSON body of a published event.
type payload struct {
	Event string `json:"event"`
	Node  int64  `json:"node,omitempty"`
	Edge  int64  `json:"edge,omitempty"`
	TS    int64  `json:"ts"`
}

// Publisher publishes stream messages to <prefix>/<graph id>/<event> at
// QoS 0 without the retained flag.
type Publisher struct {
	client  TokenPublisher
	prefix  string
	timeout time.Duration
}

// NewPublisher creates a publisher. An empty prefix means DefaultPrefix.
func NewPublisher(client TokenPublisher, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{client: client, prefix: prefix, timeout: publishTimeout}
}

// Topic returns the topic m is published on.
func (p *Publisher) Topic(m stream.Message) string {
	return p.prefix + "/" + m.Graph + "/" + m.Event
}

// Publish sends one message and waits up to the publish timeout for the
// broker handoff.
func (p *Publisher) Publish(m stream.Message) error {
	body, err := json.Marshal(payload{Event: m.Event, Node: m.Node, Edge: m.Edge, TS: m.TS})
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Event, err)
	}
	topic := p.Topic(m)
	token := p.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(p.timeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run publishes every message of b until ctx is cancelled or b is closed.
//
// ERROR HANDLING: a failed publish is logged and dropped. The graph loop
// never waits on the broker.
func (p *Publisher) Run(ctx context.Context, b *stream.Broadcaster) error {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-sub:
			if !ok {
				return nil
			}
			if err := p.Publish(m); err != nil {
				slog.Warn("mqtt publish failed",
					"graph", m.Graph,
					"event", m.Event,
					"error", err,
				)
			}
		}
	}
}
