// client.go: paho based implementation of Client.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
	"github.com/tphakala/fallguard/internal/observability/metrics"
)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	metrics        *metrics.MQTTMetrics
	log            logger.Logger

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewClient creates a new MQTT client from the application settings.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) (Client, error) {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Retain = settings.MQTT.Retain
	if settings.MQTT.ClientID != "" {
		cfg.ClientID = settings.MQTT.ClientID
	}
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	if settings.MQTT.ConnectTimeout > 0 {
		cfg.ConnectTimeout = settings.MQTT.ConnectTimeout
	}
	return NewClientWithConfig(cfg, m)
}

// NewClientWithConfig creates a new MQTT client. metrics may be nil.
func NewClientWithConfig(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid broker URL %q", cfg.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &client{
		config:        cfg,
		metrics:       m,
		log:           GetLogger(),
		subscriptions: make(map[string]subscription),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
// When the broker is unreachable within ConnectTimeout an error is returned,
// but the client keeps retrying in the background.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil {
		return nil
	}

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Context("broker", c.config.Broker).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectDelay)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.config.ReconnectDelay)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return errors.Newf("connection to %s timed out, retrying in background", c.config.Broker).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		timer := c.metrics.StartPublishTimer()
		defer timer.ObserveDuration()
	}

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	var err error
	switch {
	case !waitToken(ctx, token, c.config.PublishTimeout):
		err = errors.Newf("publish to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	case token.Error() != nil:
		err = errors.New(token.Error()).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.RecordPublish(topic, len(payload), err)
	}
	return err
}

// Subscribe registers handler for topic and subscribes immediately when connected.
func (c *client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: c.config.QoS, handler: handler}
	internal := c.internalClient
	c.mu.Unlock()

	if internal == nil || !internal.IsConnected() {
		// applied by onConnect
		return nil
	}
	return c.subscribe(ctx, internal, topic, subscription{qos: c.config.QoS, handler: handler})
}

func (c *client) subscribe(ctx context.Context, internal paho.Client, topic string, sub subscription) error {
	token := internal.Subscribe(topic, sub.qos, func(_ paho.Client, msg paho.Message) {
		if c.metrics != nil {
			c.metrics.RecordReceived(topic, len(msg.Payload()))
		}
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return errors.Newf("subscribe to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryMQTTSubscribe).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTSubscribe).
			Context("topic", topic).
			Build()
	}
	c.log.Debug("subscribed", logger.String("topic", topic))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	internal := c.internalClient
	c.mu.Unlock()
	return internal != nil && internal.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	internal := c.internalClient
	c.internalClient = nil
	c.mu.Unlock()

	if internal == nil {
		return
	}
	internal.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	if c.metrics != nil {
		c.metrics.SetConnected(false)
	}
	c.log.Info("disconnected from MQTT broker", logger.String("broker", c.config.Broker))
}

// Topic returns the prefix for published messages.
func (c *client) Topic() string {
	return c.config.Topic
}

func (c *client) onConnect(internal paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.SetConnected(true)
	}

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		subs[topic] = sub
	}
	c.mu.Unlock()

	// A clean session drops subscriptions, so restore them on every connect.
	// The handler runs on paho's goroutine and must not wait on it.
	go func() {
		for topic, sub := range subs {
			ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
			if err := c.subscribe(ctx, internal, topic, sub); err != nil {
				c.log.Error("failed to restore subscription",
					logger.String("topic", topic),
					logger.Error(err))
			}
			cancel()
		}
	}()
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	if c.metrics != nil {
		c.metrics.ConnectionLost()
	}
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	if c.metrics != nil {
		c.metrics.Reconnecting()
	}
}

// waitToken waits for token completion, the timeout or ctx, whichever comes first.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
