package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-settlement/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// handlerTimeout bounds a single delivery handler.
	handlerTimeout = 30 * time.Second
	// requeueDelay slows redelivery of a failing message so it does not spin.
	requeueDelay = time.Second
)

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, transportErr("connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, wrapTransport("open channel", err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, wrapTransport(fmt.Sprintf("set QoS (prefetch=%d)", prefetch), err)
	}

	return ch, nil
}

// Subscribe consumes queue until ctx is cancelled. When the channel or connection drops it
// waits the reconnect delay and subscribes again.
func (client *Client) Subscribe(ctx context.Context, queue, consumerTag string, prefetch int, handler ports.DeliveryHandler) error {
	for {
		err := client.Consume(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}

		client.logger.Error(client.logCtx, "rabbitmq_consumer_lost", "Consumer stopped; resubscribing",
			errOrUnknown(err), map[string]any{"queue": queue, "consumer": consumerTag})

		select {
		case <-ctx.Done():
			return nil
		case <-client.closed:
			return errors.New("rabbitmq: client closed")
		case <-time.After(client.reconnectDelay):
		}
	}
}

// Consume starts consuming messages from a queue with manual acks. It returns when ctx is
// cancelled (nil) or when the channel closes (error).
func (client *Client) Consume(ctx context.Context, queue, consumerTag string, prefetch int, handler ports.DeliveryHandler) error {
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return wrapTransport(fmt.Sprintf("consume(%s)", queue), err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return wrapTransport("channel closed while consuming "+queue, cerr)
			}
			return transportErr("channel closed while consuming %s", queue)

		case d, ok := <-deliveries:
			if !ok {
				return transportErr("delivery stream for %s ended", queue)
			}

			hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
			herr := runHandler(hCtx, handler, toDelivery(d))
			cancel()

			if err := settle(ctx, d, herr); err != nil {
				return wrapTransport("settle delivery", err)
			}
			if herr != nil {
				client.logger.Error(ctx, "delivery_nacked", "Handler failed; delivery nacked", herr, map[string]any{
					"queue":      queue,
					"messageId":  d.MessageId,
					"routingKey": d.RoutingKey,
					"requeued":   !IsRejected(herr),
				})
			}
		}
	}
}

// runHandler converts a handler panic into a rejection so a poison message cannot crash-loop.
func runHandler(ctx context.Context, handler ports.DeliveryHandler, d ports.Delivery) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Reject(fmt.Errorf("handler panic: %v", p))
		}
	}()
	return handler(ctx, d)
}

// settle acks on success, nacks without requeue on rejection, and otherwise nacks with
// requeue after a short pause.
func settle(ctx context.Context, d amqp.Delivery, herr error) error {
	switch {
	case herr == nil:
		return d.Ack(false)
	case IsRejected(herr):
		return d.Nack(false, false)
	default:
		select {
		case <-ctx.Done():
		case <-time.After(requeueDelay):
		}
		return d.Nack(false, true)
	}
}

func toDelivery(d amqp.Delivery) ports.Delivery {
	return ports.Delivery{
		Body:        d.Body,
		MessageID:   d.MessageId,
		RoutingKey:  d.RoutingKey,
		Exchange:    d.Exchange,
		Headers:     map[string]any(d.Headers),
		Redelivered: d.Redelivered,
	}
}

func errOrUnknown(err error) error {
	if err == nil {
		return errors.New("consumer returned without error")
	}
	return err
}
