// Package mqtt bridges provenance graph events to an MQTT broker.
package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBroker is used when no broker URL is configured.
const DefaultBroker = "tcp://localhost:1883"

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	broker string
	mu     sync.Mutex
}

// NewClient creates a client for broker but does not connect.
func NewClient(broker, clientID string) *Client {
	if broker == "" {
		broker = DefaultBroker
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	return &Client{client: paho.NewClient(opts), broker: broker}
}

// Broker returns the broker URL.
func (c *Client) Broker() string {
	return c.broker
}

// Connect attempts to connect to the broker without blocking indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return &TimeoutError{Op: "connect", Topic: c.broker}
	}
	return token.Error()
}

// Publish implements TokenPublisher.
func (c *Client) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	return c.client.Publish(topic, qos, retained, payload)
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.Disconnect(1000)
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError indicates a broker operation did not complete in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}
