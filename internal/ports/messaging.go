package ports

import "context"

// Message is an outgoing broker message.
type Message struct {
	Body      []byte
	MessageID string
	Headers   map[string]any
}

// Delivery is an incoming broker message as handlers see it.
type Delivery struct {
	Body        []byte
	MessageID   string
	RoutingKey  string
	Exchange    string
	Headers     map[string]any
	Redelivered bool
}

// Publisher publishes persistent messages and returns once the broker confirmed them.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
}

// DeliveryHandler processes one delivery. A nil error acks it; other errors nack it,
// with requeue unless the error is marked as a rejection by the transport package.
type DeliveryHandler func(ctx context.Context, d Delivery) error

// Subscriber consumes a queue until ctx is cancelled, resubscribing after channel loss.
type Subscriber interface {
	Subscribe(ctx context.Context, queue, consumerTag string, prefetch int, handler DeliveryHandler) error
}
