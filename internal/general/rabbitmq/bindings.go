package rabbitmq

import (
	"fmt"
	"time"

	"ride-settlement/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange kinds
const (
	KindTopic  = "topic"
	KindDirect = "direct"
	KindFanout = "fanout"
)

type Exchange struct {
	Name string
	Kind string
}

type Queue struct {
	Name string
	Args amqp.Table
}

type Binding struct {
	Queue    string
	Exchange string
	Key      string
}

// Topology is the set of durable exchanges, queues and bindings (re)declared on every connect.
type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
	Bindings  []Binding
}

// SettlementTopology declares the saga, command and notification paths.
// retryDelay is the dwell time of a notification in the retry queue before it is
// dead-lettered back to the notifications queue.
func SettlementTopology(retryDelay time.Duration) Topology {
	return Topology{
		Exchanges: []Exchange{
			{contracts.ExchangeSaga, KindTopic},
			{contracts.ExchangeCommands, KindDirect},
			{contracts.ExchangeNotificationsRetry, KindDirect},
			{contracts.ExchangeNotificationsFailed, KindFanout},
		},
		Queues: []Queue{
			{Name: contracts.QueueSagaEvents},
			{Name: contracts.QueueProcessPayment},
			{Name: contracts.QueueNotifications},
			{Name: contracts.QueueNotificationsRetry, Args: amqp.Table{
				"x-message-ttl":             retryDelay.Milliseconds(),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": contracts.QueueNotifications,
			}},
			{Name: contracts.QueueNotificationsFailed},
		},
		Bindings: []Binding{
			{contracts.QueueSagaEvents, contracts.ExchangeSaga, contracts.RouteSagaAll},
			{contracts.QueueProcessPayment, contracts.ExchangeCommands, contracts.RouteProcessPayment},
			{contracts.QueueNotifications, contracts.ExchangeSaga, contracts.RouteSagaSuccess},
			{contracts.QueueNotifications, contracts.ExchangeSaga, contracts.RouteSagaFailed},
			{contracts.QueueNotificationsRetry, contracts.ExchangeNotificationsRetry, contracts.QueueNotificationsRetry},
			{contracts.QueueNotificationsFailed, contracts.ExchangeNotificationsFailed, ""},
		},
	}
}

// declarer is the subset of *amqp.Channel used for topology setup.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareTopology(ch declarer, t Topology) error {
	// 1. Exchanges
	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}

	// 2. Queues
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, q.Args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}

	// 3. Bindings
	for _, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.Key, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}
