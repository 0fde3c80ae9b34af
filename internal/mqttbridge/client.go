package mqttbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"hifibridge/internal/config"
	"hifibridge/pkg/logging"
)

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// ClientAPI is the broker surface the bridge needs. It lets the bridge be
// tested without a live broker.
type ClientAPI interface {
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Subscribe(topic string, qos byte, h Handler) error
}

const publishTimeout = 5 * time.Second

type subscription struct {
	qos     byte
	handler Handler
}

// Client wraps a paho client. Subscriptions and the birth message are replayed
// on every reconnect.
type Client struct {
	cli mqtt.Client
	qos byte

	mu          sync.Mutex
	subs        map[string]subscription
	birth       []byte
	statusTopic string
}

// Connect dials the broker. The last will marks the bridge offline on the
// status topic if the connection drops uncleanly.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		qos:         cfg.QoS,
		subs:        make(map[string]subscription),
		birth:       []byte(StatusOnline),
		statusTopic: StatusTopic(cfg.TopicPrefix),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(c.statusTopic, StatusOffline, cfg.QoS, true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logging.Warn("MQTT", "Connection to %s lost: %v", cfg.Broker, err)
	}

	c.cli = mqtt.NewClient(opts)
	token := c.cli.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
		}
	case <-ctx.Done():
		c.cli.Disconnect(0)
		return nil, ctx.Err()
	}
	return c, nil
}

func (c *Client) onConnect(cli mqtt.Client) {
	logging.Info("MQTT", "Connected to broker")

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			logging.Error("MQTT", err, "Failed to resubscribe to %s", topic)
		}
	}
	if err := c.Publish(c.statusTopic, c.qos, true, c.birth); err != nil {
		logging.Error("MQTT", err, "Failed to publish status")
	}
}

// Publish sends payload and waits for the broker to acknowledge it.
func (c *Client) Publish(topic string, qos byte, retain bool, payload []byte) error {
	t := c.cli.Publish(topic, qos, retain, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return t.Error()
}

// Subscribe registers h for topic. The subscription survives reconnects.
func (c *Client) Subscribe(topic string, qos byte, h Handler) error {
	s := subscription{qos: qos, handler: h}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()
	return c.subscribe(topic, s)
}

func (c *Client) subscribe(topic string, s subscription) error {
	t := c.cli.Subscribe(topic, s.qos, func(_ mqtt.Client, m mqtt.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	if err := t.Error(); err != nil {
		return err
	}
	logging.Debug("MQTT", "Subscribed to %s", topic)
	return nil
}

// Disconnect closes the connection after publishing the offline status.
func (c *Client) Disconnect() {
	if err := c.Publish(c.statusTopic, c.qos, true, []byte(StatusOffline)); err != nil {
		logging.Warn("MQTT", "Failed to publish offline status: %v", err)
	}
	c.cli.Disconnect(250)
}
