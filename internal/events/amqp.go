// Package events forwards domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "routing.events"

type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Channel is the part of *amqp.Channel the forwarder publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder publishes every bus event to Exchange with the event key as routing key.
type AMQPForwarder struct {
	ch      Channel
	logger  Logger
	timeout time.Duration
}

func NewAMQPForwarder(ch Channel, logger Logger) *AMQPForwarder {
	return &AMQPForwarder{ch: ch, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the forwarder to every event of bus.
func (f *AMQPForwarder) Attach(bus *events.Bus) error {
	return bus.SubscribeAll(f.Forward)
}

// Forward publishes one event.
func (f *AMQPForwarder) Forward(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err = f.ch.PublishWithContext(ctx, Exchange, string(ev.Key), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    ev.At.UTC(),
		Body:         body,
		Headers:      amqp.Table{"x-source": "routingd"},
	})
	if err != nil {
		f.logger.Errorf("Failed to forward event %s for order %s: %v", ev.Key, ev.OrderID, err)
		return errors.Wrapf(err, "failed to publish %s", ev.Key)
	}
	return nil
}

// Connection owns the broker connection and the channel used for publishing.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url and declares the durable topic exchange.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to declare exchange %s", Exchange)
	}
	return &Connection{conn: conn, ch: ch}, nil
}

func (c *Connection) Channel() *amqp.Channel { return c.ch }

func (c *Connection) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
