// Package mqtt provides an abstraction for MQTT client functionality.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/fallguard/internal/logger"
)

// MessageHandler receives a message from a subscribed topic. It runs on the
// client's network goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()

	// Topic returns the prefix for published messages.
	Topic() string
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // prefix for published messages
	Retain   bool   // true to retain published messages at the broker
	QoS      byte

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "fallguard",
		Topic:             "fallguard",
		QoS:               1,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 2 * time.Minute,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// GetLogger returns the mqtt package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
