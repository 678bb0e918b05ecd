package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type fakeDeclarer struct {
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  []Binding
	failOn    string
}

func newFakeDeclarer() *fakeDeclarer {
	return &fakeDeclarer{exchanges: map[string]string{}, queues: map[string]amqp.Table{}}
}

func (f *fakeDeclarer) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if !durable {
		return errors.New("exchanges must be durable")
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeDeclarer) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if name == f.failOn {
		return amqp.Queue{}, errors.New("boom")
	}
	if !durable {
		return amqp.Queue{}, errors.New("queues must be durable")
	}
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings = append(f.bindings, Binding{Queue: name, Exchange: exchange, Key: key})
	return nil
}

func TestDeclareTopology_Settlement(t *testing.T) {
	d := newFakeDeclarer()
	require.NoError(t, declareTopology(d, SettlementTopology(10*time.Second)))

	require.Equal(t, KindTopic, d.exchanges[contracts.ExchangeSaga])
	require.Equal(t, KindDirect, d.exchanges[contracts.ExchangeCommands])
	require.Equal(t, KindFanout, d.exchanges[contracts.ExchangeNotificationsFailed])

	retry := d.queues[contracts.QueueNotificationsRetry]
	require.Equal(t, int64(10000), retry["x-message-ttl"])
	require.Equal(t, "", retry["x-dead-letter-exchange"])
	require.Equal(t, contracts.QueueNotifications, retry["x-dead-letter-routing-key"])

	require.Contains(t, d.bindings, Binding{contracts.QueueSagaEvents, contracts.ExchangeSaga, "payment.#"})
	require.Contains(t, d.bindings, Binding{contracts.QueueProcessPayment, contracts.ExchangeCommands, "process_payment"})
	require.Contains(t, d.bindings, Binding{contracts.QueueNotifications, contracts.ExchangeSaga, "payment.success"})
	require.Contains(t, d.bindings, Binding{contracts.QueueNotifications, contracts.ExchangeSaga, "payment.failed"})
}

func TestDeclareTopology_StopsOnError(t *testing.T) {
	d := newFakeDeclarer()
	d.failOn = contracts.QueueProcessPayment

	err := declareTopology(d, SettlementTopology(time.Second))
	require.ErrorContains(t, err, "declare queue process_payment")
	require.Empty(t, d.bindings)
}

type ackRecord struct {
	acked, nacked, requeued bool
}

func (a *ackRecord) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecord) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *ackRecord) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func TestSettle(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var tests = []struct {
		name string
		err  error
		want ackRecord
	}{
		{name: "success acks", err: nil, want: ackRecord{acked: true}},
		{name: "rejection drops", err: Reject(errors.New("bad json")), want: ackRecord{nacked: true}},
		{name: "wrapped rejection drops", err: fmt.Errorf("decode: %w", Reject(errors.New("bad json"))), want: ackRecord{nacked: true}},
		{name: "other errors requeue", err: ErrTransport, want: ackRecord{nacked: true, requeued: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecord{}
			d := amqp.Delivery{Acknowledger: rec, DeliveryTag: 1}
			require.NoError(t, settle(cancelled, d, tt.err))
			require.Equal(t, tt.want, *rec)
		})
	}
}

func TestReject(t *testing.T) {
	require.NoError(t, Reject(nil))

	base := errors.New("poison")
	err := Reject(base)
	require.True(t, IsRejected(err))
	require.ErrorIs(t, err, base)
	require.False(t, IsRejected(base))
}

func TestRunHandler_PanicIsRejected(t *testing.T) {
	err := runHandler(context.Background(), func(context.Context, ports.Delivery) error {
		panic("nil map")
	}, ports.Delivery{})
	require.True(t, IsRejected(err))
	require.ErrorContains(t, err, "nil map")
}

func TestToDelivery(t *testing.T) {
	d := toDelivery(amqp.Delivery{
		MessageId:  "m1",
		RoutingKey: "payment.success",
		Headers:    amqp.Table{contracts.HeaderAttempt: int32(2)},
		Body:       []byte(`{}`),
	})
	require.Equal(t, "m1", d.MessageID)
	require.Equal(t, "payment.success", d.RoutingKey)
	require.Equal(t, int32(2), d.Headers[contracts.HeaderAttempt])
}
