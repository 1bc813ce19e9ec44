package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is how many messages are queued while disconnected.
const DefaultBufferSize = 64

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string // topic prefix; the LWT goes to SystemTopic(Prefix)
	BufferSize int
}

type subscription struct {
	qos     byte
	handler Handler
}

// RealClient publishes to and subscribes on an actual MQTT broker.
// While the connection is down, publications are queued and replayed in
// order after reconnecting.
type RealClient struct {
	client paho.Client
	prefix string

	mu      sync.Mutex
	offline *offlineQueue
	subs    map[string]subscription
}

// NewRealClient creates a client connected to the given broker.
func NewRealClient(opts Options) (*RealClient, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	c := &RealClient{
		prefix:  opts.Prefix,
		offline: newOfflineQueue(size),
		subs:    make(map[string]subscription),
	}

	lwt, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format lwt: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(SystemTopic(opts.Prefix), string(lwt), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

// onConnect restores subscriptions and replays buffered messages.
func (c *RealClient) onConnect(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	pending := c.offline.drain()
	c.mu.Unlock()

	for topic, s := range subs {
		pc.Subscribe(topic, s.qos, wrap(s.handler))
	}
	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("mqtt: replaying queued messages")
	}
	for _, msg := range pending {
		pc.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	}
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

// Publish sends a message, or queues it while disconnected.
func (c *RealClient) Publish(msg Message) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.offline.push(msg)
		c.mu.Unlock()
		return nil
	}

	token := c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.Publish(Message{
		Topic:    SystemTopic(c.prefix),
		Payload:  payload,
		QoS:      1,
		Retained: event.Retained,
	})
}

// Subscribe registers h for topic. The subscription survives reconnects.
func (c *RealClient) Subscribe(topic string, qos byte, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: h}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, wrap(h))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for a reconnect.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline.len()
}

// Dropped returns how many queued messages were discarded because the
// offline queue was full.
func (c *RealClient) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline.dropped
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
