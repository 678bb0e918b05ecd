package rabbitmq

import (
	"context"
	"time"

	"ride-settlement/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmTimeout bounds the wait for a publisher confirm.
const confirmTimeout = 5 * time.Second

// PublishOptions carries per-message AMQP properties.
type PublishOptions struct {
	Transient bool // persistent unless set
	MessageID string
	Headers   amqp.Table
}

// MQPublisher adapts Client to ports.Publisher.
type MQPublisher struct {
	Client *Client
}

// NewMQPublisher constructs an MQPublisher using the provided RabbitMQ client.
func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

// Publish sends msg to the exchange and waits for the broker confirm.
func (publisher *MQPublisher) Publish(ctx context.Context, exchange, routingKey string, msg ports.Message) error {
	return publisher.Client.Publish(ctx, exchange, routingKey, msg.Body, PublishOptions{
		MessageID: msg.MessageID,
		Headers:   amqp.Table(msg.Headers),
	})
}

// Publish publishes a JSON body and returns once the broker acked it.
// Any failure is reported as ErrTransport; the caller decides whether to retry.
func (client *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts PublishOptions) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return transportErr("connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return transportErr("publish channel is not open")
	}

	mode := amqp.Persistent
	if opts.Transient {
		mode = amqp.Transient
	}

	// one publish in flight per channel keeps confirms aligned with publishes
	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: mode,
			ContentType:  "application/json",
			MessageId:    opts.MessageID,
			Timestamp:    time.Now().UTC(),
			Headers:      opts.Headers,
			Body:         body,
		},
	); err != nil {
		return wrapTransport("publish", err)
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return transportErr("publish channel closed before confirm")
		}
		if !c.Ack {
			return transportErr("publish to %s/%s not acknowledged", exchange, routingKey)
		}
	case <-ctx.Done():
		// keep the confirm stream aligned: consume the late confirm before releasing the lock
		select {
		case <-confirms:
		case <-time.After(2 * time.Second):
		}
		return wrapTransport("await confirm", ctx.Err())
	}

	return nil
}
