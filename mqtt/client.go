package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt not connected")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrSubscribeFailed  = errors.New("mqtt subscribe failed")
)

// MessageHandler handles one received message. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	handler MessageHandler
}

// Client wraps a paho client. Subscriptions are restored after a reconnect.
type Client struct {
	client pahomqtt.Client

	mu            sync.RWMutex
	subscriptions map[string]subscription
}

// Connect connects to the broker described by opts. The connection handlers
// set on opts are replaced.
func Connect(opts *pahomqtt.ClientOptions) (*Client, error) {
	c := &Client{
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Info("MQTT connected")
		c.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		log.Info("MQTT reconnecting")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, 0, c.wrapHandler(sub.handler))
	}
}

func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: [%v] timeout after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: [%v] %w", ErrPublishFailed, topic, err)
	}

	return nil
}

func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, 0, c.wrapHandler(handler))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: [%v] timeout after %v", ErrSubscribeFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: [%v] %w", ErrSubscribeFailed, topic, err)
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, handler: handler}
	c.mu.Unlock()

	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("unsubscribing [%v]: timeout after %v", topic, publishTimeout)
	}

	return token.Error()
}

func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("topic", msg.Topic()).Errorf("MQTT handler panic: %v", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			log.WithField("topic", msg.Topic()).Errorf("MQTT handler failed: %v", err)
		}
	}
}
